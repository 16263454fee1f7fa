package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/automerge/automerge-go"
	_ "github.com/mattn/go-sqlite3"

	"github.com/juanibiapina/trippycards-sub000/pkg/plan"
	"github.com/juanibiapina/trippycards-sub000/pkg/store"
	"github.com/juanibiapina/trippycards-sub000/pkg/viz"
)

// Offline inspector for room snapshots: prints the change log and the
// materialized activity, and optionally renders the change DAG to SVG.
func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))

	dbVar := flag.String("db", "trippycards.sqlite3", "the snapshot database to read")
	roomVar := flag.String("room", "", "the room id to inspect")
	svgVar := flag.Bool("svg", false, "render the change graph to a temp svg")
	flag.Parse()
	if *roomVar == "" {
		return fmt.Errorf("expected a -room id to inspect")
	}

	db, err := sql.Open("sqlite3", *dbVar)
	if err != nil {
		return err
	}
	defer db.Close()
	blobs, err := store.NewSQLite(db)
	if err != nil {
		return err
	}
	blob, err := blobs.Get(context.Background(), *roomVar)
	if err != nil {
		return err
	}
	if blob == nil {
		return fmt.Errorf("no snapshot stored for room %q", *roomVar)
	}

	doc, err := automerge.Load(blob)
	if err != nil {
		return fmt.Errorf("failed to load doc: %w", err)
	}
	slog.Info("loaded doc", "heads", doc.Heads())

	changes, err := doc.Changes()
	if err != nil {
		return fmt.Errorf("failed to generate changes: %w", err)
	}
	for i, change := range changes {
		slog.Info("change", "i", fmt.Sprintf("%4d", i), "hash", change.Hash(), "actor", change.ActorID(), "message", change.Message(), "dep", change.Dependencies())
	}

	activity, err := plan.Decode(doc)
	if err != nil {
		return fmt.Errorf("failed to materialize activity: %w", err)
	}
	if err := json.NewEncoder(os.Stdout).Encode(activity); err != nil {
		return fmt.Errorf("failed to write out: %w", err)
	}

	if *svgVar {
		svgPath, err := viz.RenderToTemp(doc)
		if err != nil {
			return fmt.Errorf("failed to render: %w", err)
		}
		slog.Info("rendered", "path", "file://"+svgPath)
	}
	return nil
}
