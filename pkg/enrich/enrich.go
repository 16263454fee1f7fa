// Package enrich dispatches link-enrichment requests to an external
// workflow service. Dispatch is fire-and-forget from the actor's point
// of view: the result, if any, comes back later through the enrichment
// callback endpoint as an updateCardFields command.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Request identifies the card to enrich and where its result belongs.
type Request struct {
	CardID     string `json:"cardId"`
	URL        string `json:"url"`
	DocumentID string `json:"documentId"`
}

// Dispatcher starts an enrichment workflow for a card.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

// HTTP posts requests to a workflow endpoint.
type HTTP struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTP(endpoint string) *HTTP {
	return &HTTP{Endpoint: endpoint, Client: http.DefaultClient}
}

func (d *HTTP) Dispatch(ctx context.Context, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode enrichment request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build enrichment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := d.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to dispatch enrichment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected enrichment status code: %d", resp.StatusCode)
	}
	return nil
}

// Nop is used when no enrichment endpoint is configured; ailink cards
// then stay in their submitted status.
type Nop struct{}

func (Nop) Dispatch(_ context.Context, req Request) error {
	slog.Info("no enrichment endpoint configured, skipping", "card", req.CardID)
	return nil
}
