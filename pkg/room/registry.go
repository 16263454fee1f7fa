package room

import (
	"sync"

	"github.com/juanibiapina/trippycards-sub000/pkg/enrich"
	"github.com/juanibiapina/trippycards-sub000/pkg/store"
)

// Registry hands out the one actor per activity id. Rooms are created
// lazily and load their snapshot on first command; different rooms share
// nothing and run fully in parallel.
type Registry struct {
	store      store.Store
	dispatcher enrich.Dispatcher

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRegistry(s store.Store, d enrich.Dispatcher) *Registry {
	return &Registry{
		store:      s,
		dispatcher: d,
		rooms:      make(map[string]*Room),
	}
}

// Room returns the actor for the given activity id, creating it in the
// unloaded state if this is the first reference.
func (g *Registry) Room(id string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[id]
	if !ok {
		r = &Room{id: id, store: g.store, dispatcher: g.dispatcher}
		g.rooms[id] = r
	}
	return r
}
