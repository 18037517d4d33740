// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/mrgiveh/civigraph/internal/match"
	"github.com/mrgiveh/civigraph/internal/normalize"
	"github.com/mrgiveh/civigraph/internal/store"
	"github.com/mrgiveh/civigraph/pkg/types"
)

// --- test fakes ---

// fakeEmbedder maps each text to a fixture vector and counts calls.
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int32
	err     error
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&e.calls, 1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := e.vectors[text]
		if !ok {
			return nil, fmt.Errorf("no fixture vector for %q", text)
		}
		out[i] = vec
	}
	return out, nil
}

// fakeConfirmer returns a fixed decision.
type fakeConfirmer struct {
	decision Decision
	err      error
	asked    bool
}

func (c *fakeConfirmer) Confirm(_ context.Context, _, _ string, _ []types.PendingCandidate) (Decision, error) {
	c.asked = true
	return c.decision, c.err
}

func testResolver(t *testing.T, embedder match.Embedder, confirmer Confirmer, cfg types.ResolveConfig) (*store.Store, *Resolver) {
	t.Helper()
	st, err := store.NewStore(types.StoreConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	matcher := match.New(st, embedder, 0)
	resolver := New(st, matcher, normalize.New(nil), confirmer, cfg)
	return st, resolver
}

func seedAuthor(t *testing.T, st *store.Store, name string) *types.CanonicalEntity {
	t.Helper()
	e, err := st.Create(context.Background(), name, name, types.EntityAuthor)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// Fixture vectors. "alice smith" anchors at (1,0); queries are placed at
// known cosines against it.
var (
	vecAnchor = []float32{1, 0}
	vecHigh   = []float32{0.95, 0.3122499}  // cos ~0.95
	vecBand   = []float32{0.7, 0.71414285}  // cos ~0.70
	vecLow    = []float32{0.3, 0.95393923}  // cos ~0.30
	vecAt085  = []float32{0.85, 0.5267826}  // cos ~0.85, a hair above
	vecAt084  = []float32{0.84, 0.54259425} // cos ~0.84
)

// --- tests ---

func TestResolveKnownVariantShortCircuits(t *testing.T) {
	embedder := &fakeEmbedder{}
	st, r := testResolver(t, embedder, nil, types.ResolveConfig{})
	seedAuthor(t, st, "alice smith")

	res, err := r.Resolve(context.Background(), "Alice   Smith", types.EntityAuthor, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateAutoMatched || res.Entity.CanonicalName != "alice smith" || res.Score != 1 {
		t.Fatalf("known variant: %+v", res)
	}
	if atomic.LoadInt32(&embedder.calls) != 0 {
		t.Fatal("known variant must not invoke the embedding capability")
	}
}

func TestResolveAutoAccept(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"alice smith":  vecAnchor,
		"alicia smith": vecHigh,
	}}
	st, r := testResolver(t, embedder, nil, types.ResolveConfig{})
	seeded := seedAuthor(t, st, "alice smith")

	res, err := r.Resolve(context.Background(), "Alicia Smith", types.EntityAuthor, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateAutoMatched || res.Entity.ID != seeded.ID {
		t.Fatalf("auto accept: %+v", res)
	}
	if res.Score < 0.94 || res.Score > 0.96 {
		t.Fatalf("score: %v", res.Score)
	}

	// The raw form is now a variant and resolves without embedding.
	before := atomic.LoadInt32(&embedder.calls)
	again, err := r.Resolve(context.Background(), "alicia smith", types.EntityAuthor, "")
	if err != nil {
		t.Fatal(err)
	}
	if again.Entity.ID != seeded.ID || atomic.LoadInt32(&embedder.calls) != before {
		t.Fatalf("accepted variant should short-circuit: %+v", again)
	}
}

func TestResolveThresholdBoundary(t *testing.T) {
	// The auto threshold is inclusive: a score at 0.85 accepts, just below
	// it does not.
	tests := []struct {
		name      string
		query     []float32
		wantState State
	}{
		{"at threshold accepts", vecAt085, StateAutoMatched},
		{"below threshold creates", vecAt084, StateNew},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := &fakeEmbedder{vectors: map[string][]float32{
				"alice smith": vecAnchor,
				"a smith":     tt.query,
			}}
			st, r := testResolver(t, embedder, nil, types.ResolveConfig{})
			seeded := seedAuthor(t, st, "alice smith")

			res, err := r.Resolve(context.Background(), "A. Smith", types.EntityAuthor, "")
			if err != nil {
				t.Fatal(err)
			}
			if res.State != tt.wantState {
				t.Fatalf("state: want %s, got %s (score %v)", tt.wantState, res.State, res.Score)
			}
			if tt.wantState == StateAutoMatched && res.Entity.ID != seeded.ID {
				t.Fatalf("should accept the seeded entity: %+v", res)
			}
			if tt.wantState == StateNew && res.Entity.ID == seeded.ID {
				t.Fatal("should have created a fresh entity")
			}
		})
	}
}

func TestResolveBelowReviewCreatesNew(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"alice smith": vecAnchor,
		"bob jones":   vecLow,
	}}
	st, r := testResolver(t, embedder, nil, types.ResolveConfig{})
	seedAuthor(t, st, "alice smith")

	res, err := r.Resolve(context.Background(), "Bob Jones", types.EntityAuthor, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateNew || res.Entity.CanonicalName != "bob jones" {
		t.Fatalf("below review: %+v", res)
	}

	entities, err := st.EntitiesByType(context.Background(), types.EntityAuthor)
	if err != nil {
		t.Fatal(err)
	}
	if len(entities) != 2 {
		t.Fatalf("want 2 entities, got %d", len(entities))
	}
}

func TestResolveBandAutomaticCreatesNew(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"alice smith": vecAnchor,
		"a smith":     vecBand,
	}}
	st, r := testResolver(t, embedder, nil, types.ResolveConfig{Mode: types.ModeAutomatic})
	seedAuthor(t, st, "alice smith")

	res, err := r.Resolve(context.Background(), "A. Smith", types.EntityAuthor, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateNew {
		t.Fatalf("automatic mode band score should create new: %+v", res)
	}

	// Nothing parked.
	pending, err := st.ListPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("automatic mode must not park decisions: %+v", pending)
	}
}

func TestResolveBandParksWithoutConfirmer(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"alice smith": vecAnchor,
		"a smith":     vecBand,
	}}
	st, r := testResolver(t, embedder, nil, types.ResolveConfig{Mode: types.ModeInteractive})
	seeded := seedAuthor(t, st, "alice smith")

	res, err := r.Resolve(context.Background(), "A. Smith", types.EntityAuthor, "https://example.org/p1")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StatePendingConfirmation || res.Entity != nil {
		t.Fatalf("band without confirmer should park: %+v", res)
	}
	if res.Pending == nil || res.Pending.ID == "" {
		t.Fatalf("parked resolution should carry the decision: %+v", res)
	}
	if res.Pending.RecordURL != "https://example.org/p1" || res.Pending.Raw != "A. Smith" {
		t.Fatalf("parked decision: %+v", res.Pending)
	}
	if len(res.Pending.Candidates) != 1 || res.Pending.Candidates[0].EntityID != seeded.ID {
		t.Fatalf("parked candidates: %+v", res.Pending.Candidates)
	}

	// The registry is untouched: no new entity, no new variant.
	if got, _ := st.Lookup(context.Background(), "a smith", types.EntityAuthor); got != nil {
		t.Fatalf("parked name must not be registered: %+v", got)
	}
}

func TestResolveParkedNameDoesNotParkTwice(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"alice smith": vecAnchor,
		"a smith":     vecBand,
	}}
	st, r := testResolver(t, embedder, nil, types.ResolveConfig{Mode: types.ModeInteractive})
	seedAuthor(t, st, "alice smith")
	ctx := context.Background()

	first, err := r.Resolve(ctx, "A. Smith", types.EntityAuthor, "https://example.org/p1")
	if err != nil {
		t.Fatal(err)
	}

	// The unanswered name recurs in a later record: same parked entry, no
	// second queue row.
	again, err := r.Resolve(ctx, "A. Smith", types.EntityAuthor, "https://example.org/p2")
	if err != nil {
		t.Fatal(err)
	}
	if again.State != StatePendingConfirmation {
		t.Fatalf("recurrence should still be parked: %+v", again)
	}
	if again.Pending.ID != first.Pending.ID {
		t.Fatalf("recurrence parked a duplicate: %s vs %s", again.Pending.ID, first.Pending.ID)
	}

	pending, err := st.ListPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("want 1 parked decision, got %d: %+v", len(pending), pending)
	}
}

func TestResolveBandConfirmerAccepts(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"alice smith": vecAnchor,
		"a smith":     vecBand,
	}}
	confirmer := &fakeConfirmer{}
	st, r := testResolver(t, embedder, confirmer, types.ResolveConfig{Mode: types.ModeInteractive})
	seeded := seedAuthor(t, st, "alice smith")
	confirmer.decision = Decision{EntityID: seeded.ID}

	res, err := r.Resolve(context.Background(), "A. Smith", types.EntityAuthor, "")
	if err != nil {
		t.Fatal(err)
	}
	if !confirmer.asked {
		t.Fatal("confirmer should be consulted")
	}
	if res.State != StateConfirmed || res.Entity.ID != seeded.ID {
		t.Fatalf("confirmed accept: %+v", res)
	}
	if got, _ := st.Lookup(context.Background(), "a smith", types.EntityAuthor); got == nil || got.ID != seeded.ID {
		t.Fatalf("accepted raw should become a variant: %+v", got)
	}
}

func TestResolveBandConfirmerRejects(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"alice smith": vecAnchor,
		"a smith":     vecBand,
	}}
	confirmer := &fakeConfirmer{decision: Decision{}}
	st, r := testResolver(t, embedder, confirmer, types.ResolveConfig{Mode: types.ModeInteractive})
	seeded := seedAuthor(t, st, "alice smith")

	res, err := r.Resolve(context.Background(), "A. Smith", types.EntityAuthor, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateRejected || res.Entity.ID == seeded.ID {
		t.Fatalf("confirmed reject: %+v", res)
	}
	if res.Entity.CanonicalName != "a smith" {
		t.Fatalf("rejected name becomes its own entity: %+v", res.Entity)
	}
}

func TestResolveConfirmerUnavailableParks(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"alice smith": vecAnchor,
		"a smith":     vecBand,
	}}
	confirmer := &fakeConfirmer{err: &types.CapabilityUnavailableError{Capability: "confirmation"}}
	st, r := testResolver(t, embedder, confirmer, types.ResolveConfig{Mode: types.ModeInteractive})
	seedAuthor(t, st, "alice smith")

	res, err := r.Resolve(context.Background(), "A. Smith", types.EntityAuthor, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StatePendingConfirmation {
		t.Fatalf("unavailable confirmer should park: %+v", res)
	}
}

func TestResolveEmbeddingUnavailableCreatesNew(t *testing.T) {
	embedder := &fakeEmbedder{err: &types.CapabilityUnavailableError{Capability: "embedding"}}
	st, r := testResolver(t, embedder, nil, types.ResolveConfig{})
	seedAuthor(t, st, "alice smith")

	res, err := r.Resolve(context.Background(), "Alicia Smith", types.EntityAuthor, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateNew || res.Entity.CanonicalName != "alicia smith" {
		t.Fatalf("embedding outage should degrade to new: %+v", res)
	}
}

func TestResolvePending(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"alice smith": vecAnchor,
		"a smith":     vecBand,
		"j smith":     vecBand,
	}}
	st, r := testResolver(t, embedder, nil, types.ResolveConfig{Mode: types.ModeInteractive})
	seeded := seedAuthor(t, st, "alice smith")
	ctx := context.Background()

	// Park two decisions, answer one each way.
	accept, err := r.Resolve(ctx, "A. Smith", types.EntityAuthor, "")
	if err != nil {
		t.Fatal(err)
	}
	reject, err := r.Resolve(ctx, "J. Smith", types.EntityAuthor, "")
	if err != nil {
		t.Fatal(err)
	}

	entity, err := r.ResolvePending(ctx, accept.Pending.ID, seeded.ID)
	if err != nil {
		t.Fatal(err)
	}
	if entity.ID != seeded.ID {
		t.Fatalf("accepted pending: %+v", entity)
	}
	if got, _ := st.Lookup(ctx, "a smith", types.EntityAuthor); got == nil || got.ID != seeded.ID {
		t.Fatalf("accepted raw should be a variant: %+v", got)
	}

	entity, err = r.ResolvePending(ctx, reject.Pending.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if entity.ID == seeded.ID || entity.CanonicalName != "j smith" {
		t.Fatalf("rejected pending: %+v", entity)
	}

	remaining, err := st.ListPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Fatalf("answered decisions should leave the queue: %+v", remaining)
	}

	if _, err := r.ResolvePending(ctx, accept.Pending.ID, seeded.ID); err == nil {
		t.Fatal("answering the same decision twice should error")
	}
}

func TestResolveEmptyRegistryCreatesWithoutEmbedding(t *testing.T) {
	embedder := &fakeEmbedder{}
	_, r := testResolver(t, embedder, nil, types.ResolveConfig{})

	res, err := r.Resolve(context.Background(), "Alice Smith", types.EntityAuthor, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateNew || res.Entity.CanonicalName != "alice smith" {
		t.Fatalf("empty registry: %+v", res)
	}
	if atomic.LoadInt32(&embedder.calls) != 0 {
		t.Fatal("an empty registry needs no embeddings")
	}
	if !res.Degraded {
		t.Fatal("nil generator should flag the resolution degraded")
	}
}
