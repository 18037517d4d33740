// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package match

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/mrgiveh/civigraph/pkg/types"
)

// --- test fakes ---

// fakeSource serves a fixed entity slice and records embedding writes.
type fakeSource struct {
	mu       sync.Mutex
	entities []*types.CanonicalEntity
	written  map[string][]float32
}

func (s *fakeSource) EntitiesByType(_ context.Context, _ types.EntityType) ([]*types.CanonicalEntity, error) {
	return s.entities, nil
}

func (s *fakeSource) SetEmbedding(_ context.Context, entityID string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written == nil {
		s.written = make(map[string][]float32)
	}
	s.written[entityID] = vec
	return nil
}

// fakeEmbedder maps each text to a fixed vector.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

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

func entity(id, name string, seq int64, embedding []float32) *types.CanonicalEntity {
	return &types.CanonicalEntity{
		ID: id, Type: types.EntityAuthor, CanonicalName: name, Seq: seq, Embedding: embedding,
	}
}

// --- tests ---

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		if got := cosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("%s: cosineSimilarity = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestClampScore(t *testing.T) {
	if got := clampScore(-0.3); got != 0 {
		t.Errorf("negative cosine should clamp to 0, got %v", got)
	}
	if got := clampScore(1.0000001); got != 1 {
		t.Errorf("overshoot should clamp to 1, got %v", got)
	}
	if got := clampScore(0.5); got != 0.5 {
		t.Errorf("in-range score should pass through, got %v", got)
	}
}

func TestRankCandidates(t *testing.T) {
	source := &fakeSource{entities: []*types.CanonicalEntity{
		entity("e1", "alice smith", 1, []float32{1, 0}),
		entity("e2", "bob jones", 2, []float32{0, 1}),
		entity("e3", "alicia smith", 3, []float32{0.9, 0.1}),
	}}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"a smith": {1, 0},
	}}

	m := New(source, embedder, 0)
	candidates, err := m.RankCandidates(context.Background(), "a smith", types.EntityAuthor)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 3 {
		t.Fatalf("want 3 candidates, got %d", len(candidates))
	}
	if candidates[0].Entity.ID != "e1" || candidates[0].Score != 1 {
		t.Fatalf("top candidate: %+v", candidates[0])
	}
	if candidates[1].Entity.ID != "e3" {
		t.Fatalf("second candidate: %+v", candidates[1])
	}
	if candidates[2].Entity.ID != "e2" || candidates[2].Score != 0 {
		t.Fatalf("last candidate: %+v", candidates[2])
	}
}

func TestRankCandidatesEmptyRegistry(t *testing.T) {
	m := New(&fakeSource{}, &fakeEmbedder{}, 0)
	candidates, err := m.RankCandidates(context.Background(), "anyone", types.EntityAuthor)
	if err != nil {
		t.Fatal(err)
	}
	if candidates != nil {
		t.Fatalf("empty registry should rank nothing, got %+v", candidates)
	}
}

func TestRankCandidatesTieBreaksByCreationOrder(t *testing.T) {
	// Both entities have the same embedding; the earlier one must win.
	source := &fakeSource{entities: []*types.CanonicalEntity{
		entity("older", "alice smith", 1, []float32{1, 0}),
		entity("newer", "alice m smith", 2, []float32{1, 0}),
	}}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"alice smith": {1, 0},
	}}

	m := New(source, embedder, 0)
	candidates, err := m.RankCandidates(context.Background(), "alice smith", types.EntityAuthor)
	if err != nil {
		t.Fatal(err)
	}
	if candidates[0].Entity.ID != "older" || candidates[1].Entity.ID != "newer" {
		t.Fatalf("tie should keep creation order: %+v", candidates)
	}
}

func TestFillEmbeddingsCachesMissing(t *testing.T) {
	source := &fakeSource{entities: []*types.CanonicalEntity{
		entity("cached", "alice smith", 1, []float32{1, 0}),
		entity("missing1", "bob jones", 2, nil),
		entity("missing2", "carol white", 3, nil),
	}}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"query":       {1, 0},
		"bob jones":   {0, 1},
		"carol white": {0.5, 0.5},
	}}

	m := New(source, embedder, 0)
	if _, err := m.RankCandidates(context.Background(), "query", types.EntityAuthor); err != nil {
		t.Fatal(err)
	}

	if len(source.written) != 2 {
		t.Fatalf("want 2 cache writes, got %d", len(source.written))
	}
	if vec := source.written["missing1"]; len(vec) != 2 || vec[1] != 1 {
		t.Fatalf("missing1 embedding: %v", vec)
	}
	if _, ok := source.written["cached"]; ok {
		t.Fatal("cached entity must not be re-embedded")
	}
}

func TestFillEmbeddingsBatchOrderIndependent(t *testing.T) {
	// Five entities with batch size 2 forces three parallel batches; every
	// entity must still end up with its own vector.
	vectors := map[string][]float32{"query": {1, 0, 0}}
	var entities []*types.CanonicalEntity
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("author %d", i)
		vectors[name] = []float32{float32(i), 1, 0}
		entities = append(entities, entity(fmt.Sprintf("e%d", i), name, int64(i+1), nil))
	}

	source := &fakeSource{entities: entities}
	m := New(source, &fakeEmbedder{vectors: vectors}, 2)
	if _, err := m.RankCandidates(context.Background(), "query", types.EntityAuthor); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		vec := source.written[fmt.Sprintf("e%d", i)]
		if len(vec) != 3 || vec[0] != float32(i) {
			t.Fatalf("e%d got wrong vector: %v", i, vec)
		}
	}
}

func TestRankCandidatesAutoThresholdBoundary(t *testing.T) {
	// A stored float32 score of 0.85 must compare >= 0.85 in float64 after
	// normalization. Vectors chosen so cosine is exactly 0.85 in float64.
	source := &fakeSource{entities: []*types.CanonicalEntity{
		entity("e1", "alice smith", 1, []float32{1, 0}),
	}}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		// Unit-norm query at cos θ = 0.85 against (1, 0): components are
		// float32, so the score lands within 1e-7 of 0.85.
		"query": {0.85, 0.5267827},
	}}

	m := New(source, embedder, 0)
	candidates, err := m.RankCandidates(context.Background(), "query", types.EntityAuthor)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(candidates[0].Score-0.85) > 1e-6 {
		t.Fatalf("score should be ~0.85, got %v", candidates[0].Score)
	}
}
