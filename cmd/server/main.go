package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	_ "github.com/mattn/go-sqlite3"

	"github.com/juanibiapina/trippycards-sub000/pkg/config"
	"github.com/juanibiapina/trippycards-sub000/pkg/enrich"
	"github.com/juanibiapina/trippycards-sub000/pkg/hub"
	"github.com/juanibiapina/trippycards-sub000/pkg/room"
	"github.com/juanibiapina/trippycards-sub000/pkg/store"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	addrVar := flag.String("addr", cfg.Addr, "the address to listen on")
	flag.Parse()

	slog.Info("Opening database", "path", cfg.DatabasePath)
	db, err := sql.Open("sqlite3", cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	blobs, err := store.NewSQLite(db)
	if err != nil {
		return err
	}

	var dispatcher enrich.Dispatcher = enrich.Nop{}
	if cfg.EnrichmentURL != "" {
		dispatcher = enrich.NewHTTP(cfg.EnrichmentURL)
	}

	registry := room.NewRegistry(blobs, dispatcher)
	s := &server{registry: registry, hubs: hub.NewManager(registry)}

	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			slog.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})

	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(s.health)
	r.Methods(http.MethodGet).Path("/rooms/{room}").HandlerFunc(s.getRoom)
	r.Methods(http.MethodGet).Path("/rooms/{room}/ws").HandlerFunc(s.attachRoom)
	r.Methods(http.MethodPost).Path("/rooms/{room}/cards/{card}/enrichment").HandlerFunc(s.enrichmentCallback)

	httpServer := &http.Server{Addr: *addrVar, Handler: r}

	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("listening", "addr", *addrVar)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
		}
	}()

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	_ = httpServer.Close()

	wg.Wait()
	return nil
}

type server struct {
	registry *room.Registry
	hubs     *hub.Manager
}

func (s *server) health(writer http.ResponseWriter, _ *http.Request) {
	writer.WriteHeader(http.StatusNoContent)
}

// getRoom serves the materialized activity tree as plain JSON, bypassing
// the websocket layer entirely.
func (s *server) getRoom(writer http.ResponseWriter, request *http.Request) {
	vars := mux.Vars(request)
	activity, err := s.registry.Room(vars["room"]).Materialize(request.Context())
	if err != nil {
		slog.Error("failed to materialize room", "room", vars["room"], "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(activity); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}

func (s *server) attachRoom(writer http.ResponseWriter, request *http.Request) {
	vars := mux.Vars(request)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		slog.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()

	if err := s.hubs.ServeConn(request.Context(), vars["room"], conn); err != nil {
		slog.Error("failed to serve connection", "room", vars["room"], "err", err)
	}
}

// enrichmentCallback receives the delayed result of an ailink workflow
// and merges it into the card. Results may arrive arbitrarily late or
// reference a card that is already gone; both are fine.
func (s *server) enrichmentCallback(writer http.ResponseWriter, request *http.Request) {
	vars := mux.Vars(request)
	var body struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
	}
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		slog.Error("failed to decode body", "err", err)
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	fields := make(map[string]any)
	if body.Title != nil {
		fields["title"] = *body.Title
	}
	if body.Description != nil {
		fields["description"] = *body.Description
	}
	if body.Status != nil {
		fields["status"] = *body.Status
	}
	if _, err := s.registry.Room(vars["room"]).UpdateCardFields(request.Context(), vars["card"], fields); err != nil {
		slog.Error("failed to apply enrichment result", "room", vars["room"], "card", vars["card"], "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}
