package room_test

import (
	"context"
	"testing"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/stretchr/testify/require"

	"github.com/juanibiapina/trippycards-sub000/pkg/enrich"
	"github.com/juanibiapina/trippycards-sub000/pkg/plan"
	"github.com/juanibiapina/trippycards-sub000/pkg/room"
	"github.com/juanibiapina/trippycards-sub000/pkg/store"
)

// recorder captures enrichment dispatches for assertion.
type recorder struct {
	requests chan enrich.Request
}

func newRecorder() *recorder {
	return &recorder{requests: make(chan enrich.Request, 4)}
}

func (r *recorder) Dispatch(_ context.Context, req enrich.Request) error {
	r.requests <- req
	return nil
}

func newTestRoom(t *testing.T) (*room.Room, *store.Memory, *recorder) {
	t.Helper()
	mem := store.NewMemory()
	rec := newRecorder()
	return room.NewRegistry(mem, rec).Room("activity-1"), mem, rec
}

func TestAddUpdateFieldsMaterialize(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRoom(t)

	delta, err := r.AddCard(ctx, plan.Card{ID: "c1", Type: "note", Fields: map[string]any{"text": "hi"}})
	require.NoError(t, err)
	require.NotEmpty(t, delta)

	delta, err = r.UpdateCardFields(ctx, "c1", map[string]any{"text": "bye"})
	require.NoError(t, err)
	require.NotEmpty(t, delta)

	a, err := r.Materialize(ctx)
	require.NoError(t, err)
	require.Len(t, a.Cards, 1)
	c := a.Cards[0]
	require.Equal(t, "c1", c.ID)
	require.Equal(t, "note", c.Type)
	require.Equal(t, "bye", c.Fields["text"])
	require.NotEmpty(t, c.CreatedAt)
	require.NotEmpty(t, c.UpdatedAt)
}

func TestUpdateCardUnknownIDIsNoop(t *testing.T) {
	ctx := context.Background()
	r, mem, _ := newTestRoom(t)

	_, err := r.AddCard(ctx, plan.Card{ID: "c1", Type: "note", Fields: map[string]any{"text": "hi"}})
	require.NoError(t, err)
	putsBefore := mem.Puts()
	before, err := r.Materialize(ctx)
	require.NoError(t, err)

	delta, err := r.UpdateCard(ctx, plan.Card{ID: "missing", Type: "note", Fields: map[string]any{"text": "x"}})
	require.NoError(t, err)
	require.Nil(t, delta)
	require.Equal(t, putsBefore, mem.Puts())

	after, err := r.Materialize(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestUpdateCardFieldsUnknownIDIsNoop(t *testing.T) {
	ctx := context.Background()
	r, mem, _ := newTestRoom(t)

	_, err := r.AddCard(ctx, plan.Card{ID: "c1", Type: "note"})
	require.NoError(t, err)
	putsBefore := mem.Puts()

	delta, err := r.UpdateCardFields(ctx, "missing", map[string]any{"text": "x"})
	require.NoError(t, err)
	require.Nil(t, delta)
	require.Equal(t, putsBefore, mem.Puts())
}

func TestDeleteCardUnknownIDStillPersists(t *testing.T) {
	ctx := context.Background()
	r, mem, _ := newTestRoom(t)

	_, err := r.AddCard(ctx, plan.Card{ID: "c1", Type: "note"})
	require.NoError(t, err)
	putsBefore := mem.Puts()

	delta, err := r.DeleteCard(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, delta)
	require.Equal(t, putsBefore+1, mem.Puts())

	a, err := r.Materialize(ctx)
	require.NoError(t, err)
	require.Len(t, a.Cards, 1)
}

func TestDeleteCard(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRoom(t)

	_, err := r.AddCard(ctx, plan.Card{ID: "c1", Type: "note"})
	require.NoError(t, err)
	_, err = r.AddCard(ctx, plan.Card{ID: "c2", Type: "note"})
	require.NoError(t, err)

	delta, err := r.DeleteCard(ctx, "c1")
	require.NoError(t, err)
	require.NotEmpty(t, delta)

	a, err := r.Materialize(ctx)
	require.NoError(t, err)
	require.Len(t, a.Cards, 1)
	require.Equal(t, "c2", a.Cards[0].ID)
}

func TestAddCardSameIDReplacesWholesale(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRoom(t)

	_, err := r.AddCard(ctx, plan.Card{ID: "x", Type: "note", Fields: map[string]any{"text": "hi"}})
	require.NoError(t, err)
	_, err = r.AddCard(ctx, plan.Card{ID: "x", Type: "poll", Fields: map[string]any{"question": "where?"}})
	require.NoError(t, err)

	a, err := r.Materialize(ctx)
	require.NoError(t, err)
	require.Len(t, a.Cards, 1)
	c := a.Cards[0]
	require.Equal(t, "poll", c.Type)
	require.Equal(t, "where?", c.Fields["question"])
	// the losing write leaves nothing behind
	require.NotContains(t, c.Fields, "text")
}

func TestUpdateCardReplacesChildren(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRoom(t)

	_, err := r.AddCard(ctx, plan.Card{
		ID:   "p",
		Type: "note",
		Children: []plan.Card{
			{ID: "old", Type: "note", CreatedAt: "a", UpdatedAt: "a"},
		},
	})
	require.NoError(t, err)

	_, err = r.UpdateCard(ctx, plan.Card{
		ID:   "p",
		Type: "note",
		Children: []plan.Card{
			{ID: "new1", Type: "note", CreatedAt: "a", UpdatedAt: "a"},
			{ID: "new2", Type: "note", CreatedAt: "a", UpdatedAt: "a"},
		},
	})
	require.NoError(t, err)

	a, err := r.Materialize(ctx)
	require.NoError(t, err)
	require.Len(t, a.Cards, 1)
	require.Len(t, a.Cards[0].Children, 2)
	require.Equal(t, "new1", a.Cards[0].Children[0].ID)
	require.Equal(t, "new2", a.Cards[0].Children[1].ID)
}

func TestUpdateNameAndDates(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRoom(t)

	_, err := r.UpdateName(ctx, "beach week")
	require.NoError(t, err)
	_, err = r.UpdateDates(ctx, "2026-09-10", nil, nil)
	require.NoError(t, err)

	a, err := r.Materialize(ctx)
	require.NoError(t, err)
	require.Equal(t, "beach week", a.Name)
	require.Equal(t, "2026-09-10", a.StartDate)
	require.Empty(t, a.EndDate)
	require.Empty(t, a.StartTime)

	end := "2026-09-14"
	start := "08:30"
	_, err = r.UpdateDates(ctx, "2026-09-10", &end, &start)
	require.NoError(t, err)

	a, err = r.Materialize(ctx)
	require.NoError(t, err)
	require.Equal(t, end, a.EndDate)
	require.Equal(t, start, a.StartTime)

	// omitting them again must not clear the stored values
	_, err = r.UpdateDates(ctx, "2026-09-11", nil, nil)
	require.NoError(t, err)
	a, err = r.Materialize(ctx)
	require.NoError(t, err)
	require.Equal(t, "2026-09-11", a.StartDate)
	require.Equal(t, end, a.EndDate)
	require.Equal(t, start, a.StartTime)
}

func TestAILinkCardDispatchesEnrichment(t *testing.T) {
	ctx := context.Background()
	r, _, rec := newTestRoom(t)

	_, err := r.AddCard(ctx, plan.Card{
		ID:     "link1",
		Type:   room.TypeAILink,
		Fields: map[string]any{"url": "https://example.com/post", "status": "processing"},
	})
	require.NoError(t, err)

	select {
	case req := <-rec.requests:
		require.Equal(t, "link1", req.CardID)
		require.Equal(t, "https://example.com/post", req.URL)
		require.Equal(t, "activity-1", req.DocumentID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected an enrichment dispatch")
	}

	a, err := r.Materialize(ctx)
	require.NoError(t, err)
	require.Len(t, a.Cards, 1)
	workflowID, _ := a.Cards[0].Fields["workflowId"].(string)
	require.NotEmpty(t, workflowID)

	// the workflow result arrives later as a plain field update
	_, err = r.UpdateCardFields(ctx, "link1", map[string]any{
		"title":  "a post",
		"status": "done",
	})
	require.NoError(t, err)
	a, err = r.Materialize(ctx)
	require.NoError(t, err)
	require.Equal(t, "done", a.Cards[0].Fields["status"])
	require.Equal(t, "a post", a.Cards[0].Fields["title"])
}

func TestSnapshotReloadReproducesDocument(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	rec := newRecorder()

	r := room.NewRegistry(mem, rec).Room("trip")
	_, err := r.UpdateName(ctx, "road trip")
	require.NoError(t, err)
	_, err = r.AddCard(ctx, plan.Card{
		ID:   "c1",
		Type: "note",
		Fields: map[string]any{
			"text": "hi",
		},
		Children: []plan.Card{{ID: "c1a", Type: "note", CreatedAt: "a", UpdatedAt: "a"}},
	})
	require.NoError(t, err)
	before, err := r.Materialize(ctx)
	require.NoError(t, err)

	// a fresh actor over the same store must materialize identically
	r2 := room.NewRegistry(mem, rec).Room("trip")
	after, err := r2.Materialize(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestPersistenceFailureFailsCommand(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.FailPuts = true
	r := room.NewRegistry(mem, newRecorder()).Room("trip")

	_, err := r.AddCard(ctx, plan.Card{ID: "c1", Type: "note"})
	require.ErrorIs(t, err, store.ErrPutFailed)
}

func TestDeltasSyncAnIndependentReplica(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRoom(t)

	replica := automerge.New()
	var deltas [][]byte

	delta, err := r.UpdateName(ctx, "road trip")
	require.NoError(t, err)
	deltas = append(deltas, delta)
	delta, err = r.AddCard(ctx, plan.Card{ID: "c1", Type: "note", Fields: map[string]any{"text": "hi"}})
	require.NoError(t, err)
	deltas = append(deltas, delta)
	delta, err = r.UpdateCardFields(ctx, "c1", map[string]any{"text": "bye"})
	require.NoError(t, err)
	deltas = append(deltas, delta)

	for _, d := range deltas {
		require.NoError(t, replica.LoadIncremental(d))
	}

	want, err := r.Materialize(ctx)
	require.NoError(t, err)
	got, err := plan.Decode(replica)
	require.NoError(t, err)
	require.Equal(t, want, got)
}
