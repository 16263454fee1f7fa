// Package hub tracks the websocket peers attached to each room, turns
// inbound wire messages into document actor commands, and fans the same
// wire message out verbatim to every other peer. Peers converge through
// the shared event log; the CRDT merge underneath is what makes replays
// and snapshots agree with it.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/juanibiapina/trippycards-sub000/pkg/plan"
	"github.com/juanibiapina/trippycards-sub000/pkg/room"
)

// Wire message types. Inbound messages are relayed outbound unchanged;
// TypeActivity is only ever sent, once, when a peer attaches.
const (
	TypeActivity   = "activity"
	TypeCardCreate = "card-create"
	TypeCardUpdate = "card-update"
	TypeCardDelete = "card-delete"
	TypeName       = "name"
	TypeDates      = "dates"
)

// Message is the JSON wire shape, one object per websocket message.
// Which fields are set depends on Type.
type Message struct {
	Type      string         `json:"type"`
	Card      *plan.Card     `json:"card,omitempty"`
	CardID    string         `json:"cardId,omitempty"`
	Name      string         `json:"name,omitempty"`
	StartDate string         `json:"startDate,omitempty"`
	EndDate   *string        `json:"endDate,omitempty"`
	StartTime *string        `json:"startTime,omitempty"`
	Activity  *plan.Activity `json:"activity,omitempty"`
}

// Peer is one attached connection. Outbound messages queue on send; the
// websocket write pump drains it.
type Peer struct {
	send      chan []byte
	closeOnce sync.Once
}

func newPeer() *Peer {
	return &Peer{send: make(chan []byte, 64)}
}

// Send exposes the outbound queue to the write pump.
func (p *Peer) Send() <-chan []byte {
	return p.send
}

func (p *Peer) close() {
	p.closeOnce.Do(func() { close(p.send) })
}

// Manager holds one hub per room, created lazily alongside the actor.
type Manager struct {
	registry *room.Registry

	mu   sync.Mutex
	hubs map[string]*roomHub
}

func NewManager(registry *room.Registry) *Manager {
	return &Manager{registry: registry, hubs: make(map[string]*roomHub)}
}

func (m *Manager) hub(roomID string) *roomHub {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hubs[roomID]
	if !ok {
		h = &roomHub{
			id:    roomID,
			room:  m.registry.Room(roomID),
			peers: make(map[*Peer]bool),
		}
		m.hubs[roomID] = h
	}
	return h
}

// roomHub serializes inbound handling for one room so the broadcast
// order every peer observes matches the actor's command order exactly.
type roomHub struct {
	id   string
	room *room.Room

	process sync.Mutex
	peersMu sync.Mutex
	peers   map[*Peer]bool
}

// attach registers a new peer with the initial full-snapshot message
// already queued. Snapshot, registration, and enqueue all happen under
// the processing lock, so the peer's first outbound message is always
// the snapshot and every event committed after it follows in command
// order.
func (h *roomHub) attach(ctx context.Context) (*Peer, error) {
	h.process.Lock()
	defer h.process.Unlock()
	activity, err := h.room.Materialize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize activity: %w", err)
	}
	snapshot, err := json.Marshal(Message{Type: TypeActivity, Activity: &activity})
	if err != nil {
		return nil, fmt.Errorf("failed to encode activity snapshot: %w", err)
	}
	p := newPeer()
	h.peersMu.Lock()
	h.peers[p] = true
	h.peersMu.Unlock()
	// the queue is fresh and empty, this cannot block
	p.send <- snapshot
	return p, nil
}

func (h *roomHub) detach(p *Peer) {
	h.peersMu.Lock()
	defer h.peersMu.Unlock()
	if h.peers[p] {
		delete(h.peers, p)
		p.close()
	}
}

// handleInbound runs one inbound wire message: translate to an actor
// command, then relay the raw message to the other peers. Malformed or
// unrecognized messages are logged and dropped without closing anything.
// Commands that no-op on the tree are still relayed as given; only a
// command that fails outright (persistence failure) is suppressed.
func (h *roomHub) handleInbound(ctx context.Context, from *Peer, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Error("ignoring malformed message", "room", h.id, "err", err)
		return
	}

	h.process.Lock()
	defer h.process.Unlock()

	var err error
	switch msg.Type {
	case TypeCardCreate:
		if msg.Card == nil {
			slog.Error("ignoring card-create without card", "room", h.id)
			return
		}
		_, err = h.room.AddCard(ctx, *msg.Card)
	case TypeCardUpdate:
		if msg.Card == nil {
			slog.Error("ignoring card-update without card", "room", h.id)
			return
		}
		_, err = h.room.UpdateCard(ctx, *msg.Card)
	case TypeCardDelete:
		_, err = h.room.DeleteCard(ctx, msg.CardID)
	case TypeName:
		_, err = h.room.UpdateName(ctx, msg.Name)
	case TypeDates:
		_, err = h.room.UpdateDates(ctx, msg.StartDate, msg.EndDate, msg.StartTime)
	default:
		slog.Error("ignoring message with unknown type", "room", h.id, "type", msg.Type)
		return
	}
	if err != nil {
		slog.Error("failed to apply command", "room", h.id, "type", msg.Type, "err", err)
		return
	}
	h.broadcast(from, raw)
}

// broadcast queues raw on every peer except the sender. A peer whose
// queue is full is dropped rather than allowed to stall the room.
func (h *roomHub) broadcast(from *Peer, raw []byte) {
	h.peersMu.Lock()
	defer h.peersMu.Unlock()
	for p := range h.peers {
		if p == from {
			continue
		}
		select {
		case p.send <- raw:
		default:
			slog.Error("dropping slow peer", "room", h.id)
			delete(h.peers, p)
			p.close()
		}
	}
}
