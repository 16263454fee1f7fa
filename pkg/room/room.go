// Package room hosts one document actor per activity id. An actor owns
// the canonical automerge document for its room, serializes every
// mutation, persists a snapshot after each one, and hands the resulting
// delta back to the caller.
package room

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/google/uuid"

	"github.com/juanibiapina/trippycards-sub000/pkg/enrich"
	"github.com/juanibiapina/trippycards-sub000/pkg/plan"
	"github.com/juanibiapina/trippycards-sub000/pkg/store"
)

type state int

const (
	stateUnloaded state = iota
	stateLoading
	stateReady
)

// TypeAILink marks cards that trigger an enrichment workflow on create.
const TypeAILink = "ailink"

// Room is the single-writer actor for one activity id. All commands run
// strictly one at a time; callers block while an earlier command (or the
// initial snapshot load) is in flight.
type Room struct {
	id         string
	store      store.Store
	dispatcher enrich.Dispatcher

	mu    sync.Mutex
	state state
	doc   *automerge.Doc
}

// ensureLoaded runs the load phase once: read the persisted snapshot and
// merge its changes into a fresh empty document, so a missing snapshot
// and a present one go through the same initialization path. Callers
// hold r.mu, which is what queues commands arriving mid-load.
func (r *Room) ensureLoaded(ctx context.Context) error {
	if r.state == stateReady {
		return nil
	}
	r.state = stateLoading
	doc := automerge.New()
	blob, err := r.store.Get(ctx, r.id)
	if err != nil {
		r.state = stateUnloaded
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if blob != nil {
		saved, err := automerge.Load(blob)
		if err != nil {
			r.state = stateUnloaded
			return fmt.Errorf("failed to load doc: %w", err)
		}
		changes, err := saved.Changes()
		if err != nil {
			r.state = stateUnloaded
			return fmt.Errorf("failed to read snapshot changes: %w", err)
		}
		if err := doc.Apply(changes...); err != nil {
			r.state = stateUnloaded
			return fmt.Errorf("failed to merge snapshot: %w", err)
		}
	}
	// mark the merged-in history as saved; the next incremental save
	// must cover only the next command
	_ = doc.Save()
	r.doc = doc
	r.state = stateReady
	slog.Info("room loaded", "room", r.id, "heads", doc.Heads(), "snapshot", blob != nil)
	return nil
}

// commitAndSave closes the current transaction, extracts its delta, and
// synchronously persists the full document. A failed write fails the
// command: the mutation is not acknowledged until it is durable. The
// change is already committed in memory at that point, so after a
// persistence failure the document and the stored snapshot can diverge
// by that single unacknowledged command until the next successful save
// carries it along.
func (r *Room) commitAndSave(ctx context.Context, message string) ([]byte, error) {
	if _, err := r.doc.Commit(message); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	delta := r.doc.SaveIncremental()
	if err := r.store.Put(ctx, r.id, r.doc.Save()); err != nil {
		return nil, fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return delta, nil
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// AddCard appends the card (or replaces an existing card with the same
// id wholesale). Cards of type "ailink" get a generated workflowId and
// an enrichment dispatch fired after the transaction commits; dispatch
// failure is logged and never fails or blocks the command.
func (r *Room) AddCard(ctx context.Context, card plan.Card) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	now := nowStamp()
	if card.CreatedAt == "" {
		card.CreatedAt = now
	}
	card.UpdatedAt = now
	var req *enrich.Request
	if card.Type == TypeAILink {
		if card.Fields == nil {
			card.Fields = make(map[string]any)
		}
		card.Fields["workflowId"] = uuid.NewString()
		url, _ := card.Fields["url"].(string)
		req = &enrich.Request{CardID: card.ID, URL: url, DocumentID: r.id}
	}
	if err := plan.AddCard(r.doc, card); err != nil {
		return nil, err
	}
	delta, err := r.commitAndSave(ctx, "add card")
	if err != nil {
		return nil, err
	}
	if req != nil {
		go func() {
			if err := r.dispatcher.Dispatch(context.Background(), *req); err != nil {
				slog.Error("failed to dispatch enrichment", "room", r.id, "card", req.CardID, "err", err)
			}
		}()
	}
	return delta, nil
}

// UpdateCard overwrites all fields of the card with the given id. An
// unknown id is a no-op: no delta, no persistence write.
func (r *Room) UpdateCard(ctx context.Context, card plan.Card) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	card.UpdatedAt = nowStamp()
	found, err := plan.UpdateCard(r.doc, card)
	if err != nil {
		return nil, err
	}
	if !found {
		slog.Info("ignoring update for unknown card", "room", r.id, "card", card.ID)
		return nil, nil
	}
	return r.commitAndSave(ctx, "update card")
}

// DeleteCard removes the first card with the given id. An unknown id
// leaves the tree alone but still persists the snapshot.
func (r *Room) DeleteCard(ctx context.Context, cardID string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	found, err := plan.DeleteCard(r.doc, cardID)
	if err != nil {
		return nil, err
	}
	if !found {
		slog.Info("ignoring delete for unknown card", "room", r.id, "card", cardID)
		if err := r.store.Put(ctx, r.id, r.doc.Save()); err != nil {
			return nil, fmt.Errorf("failed to persist snapshot: %w", err)
		}
		return nil, nil
	}
	return r.commitAndSave(ctx, "delete card")
}

// UpdateCardFields merges only the given fields into the card and stamps
// updatedAt. This is the callback surface for the enrichment workflow
// and must tolerate results arriving arbitrarily late, including for
// cards deleted in the meantime (an unknown id is a no-op).
func (r *Room) UpdateCardFields(ctx context.Context, cardID string, fields map[string]any) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	found, err := plan.UpdateCardFields(r.doc, cardID, fields, nowStamp())
	if err != nil {
		return nil, err
	}
	if !found {
		slog.Info("ignoring field update for unknown card", "room", r.id, "card", cardID)
		return nil, nil
	}
	return r.commitAndSave(ctx, "update card fields")
}

// UpdateName sets the activity name.
func (r *Room) UpdateName(ctx context.Context, name string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	if err := plan.SetName(r.doc, name); err != nil {
		return nil, err
	}
	return r.commitAndSave(ctx, "update name")
}

// UpdateDates sets the activity dates; endDate and startTime are only
// written when provided.
func (r *Room) UpdateDates(ctx context.Context, startDate string, endDate, startTime *string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	if err := plan.SetDates(r.doc, startDate, endDate, startTime); err != nil {
		return nil, err
	}
	return r.commitAndSave(ctx, "update dates")
}

// Materialize returns the plain activity tree for the HTTP read path and
// for initial websocket snapshots.
func (r *Room) Materialize(ctx context.Context) (plan.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return plan.Activity{}, err
	}
	return plan.Decode(r.doc)
}
