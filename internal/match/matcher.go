// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package match ranks canonical entities by embedding similarity against a
// candidate name. Implements: prd002-resolution (R1.2-R1.4, matcher
// contract); docs/ARCHITECTURE.md § Similarity Matcher.
package match

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/mrgiveh/civigraph/pkg/types"
)

// Embedder abstracts the embedding capability. Implementations may batch
// internally; the returned vectors are positionally aligned with the input
// texts. Per prd004-capabilities R2.1.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EntitySource is the slice of the store the matcher reads: entities of one
// type in creation order, plus embedding cache writes.
type EntitySource interface {
	EntitiesByType(ctx context.Context, entityType types.EntityType) ([]*types.CanonicalEntity, error)
	SetEmbedding(ctx context.Context, entityID string, vec []float32) error
}

// Candidate is one ranked match.
type Candidate struct {
	Entity *types.CanonicalEntity
	Score  float64
}

// Matcher scores a candidate name against the cached canonical-name
// embeddings of existing entities.
type Matcher struct {
	source   EntitySource
	embedder Embedder

	// batchSize caps how many canonical names go into one embedding
	// request when filling the cache.
	batchSize int
}

// New returns a Matcher reading entities from source and embedding through
// embedder. batchSize <= 0 selects the default of 64.
func New(source EntitySource, embedder Embedder, batchSize int) *Matcher {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Matcher{source: source, embedder: embedder, batchSize: batchSize}
}

// RankCandidates embeds candidateName and returns all entities of the given
// type ordered by descending cosine similarity, scores in [0,1]. Ties keep
// creation order, earlier entity first, so matching is deterministic for a
// fixed store state (R1.3).
func (m *Matcher) RankCandidates(ctx context.Context, candidateName string, entityType types.EntityType) ([]Candidate, error) {
	entities, err := m.source.EntitiesByType(ctx, entityType)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}

	if err := m.fillEmbeddings(ctx, entities); err != nil {
		return nil, err
	}

	vecs, err := m.embedder.Embed(ctx, []string{candidateName})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding %q: got %d vectors, want 1", candidateName, len(vecs))
	}
	query := vecs[0]

	candidates := make([]Candidate, 0, len(entities))
	for _, e := range entities {
		candidates = append(candidates, Candidate{
			Entity: e,
			Score:  clampScore(cosineSimilarity(query, e.Embedding)),
		})
	}

	// Entities arrive in creation order; the stable sort preserves it
	// within equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates, nil
}

// fillEmbeddings computes and caches canonical-name embeddings for entities
// that do not have one yet. Batches run in parallel; results are written
// back by position, so batch order never affects the outcome (R1.4).
func (m *Matcher) fillEmbeddings(ctx context.Context, entities []*types.CanonicalEntity) error {
	var missing []*types.CanonicalEntity
	for _, e := range entities {
		if len(e.Embedding) == 0 {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for start := 0; start < len(missing); start += m.batchSize {
		batch := missing[start:min(start+m.batchSize, len(missing))]
		g.Go(func() error {
			names := make([]string, len(batch))
			for i, e := range batch {
				names[i] = e.CanonicalName
			}

			vecs, err := m.embedder.Embed(gctx, names)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embedding batch: got %d vectors, want %d", len(vecs), len(batch))
			}

			for i, e := range batch {
				e.Embedding = vecs[i]
				if err := m.source.SetEmbedding(gctx, e.ID, vecs[i]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
