// Package config reads server configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Addr is the listen address; the -addr flag overrides it.
	Addr string `env:"TRIPPYCARDS_ADDR" envDefault:"localhost:8080"`
	// DatabasePath points at the sqlite file holding room snapshots.
	DatabasePath string `env:"TRIPPYCARDS_DB" envDefault:"trippycards.sqlite3"`
	// EnrichmentURL is the workflow endpoint for ailink cards. Empty
	// disables dispatch.
	EnrichmentURL string `env:"TRIPPYCARDS_ENRICHMENT_URL"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
