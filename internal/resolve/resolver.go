// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resolve decides whether an observed name refers to an existing
// canonical entity or is genuinely new, and drives the batch pipeline that
// turns resolved records into graph operations.
// Implements: prd002-resolution (R1-R4);
//
//	docs/ARCHITECTURE.md § Match Resolver.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrgiveh/civigraph/internal/match"
	"github.com/mrgiveh/civigraph/internal/normalize"
	"github.com/mrgiveh/civigraph/internal/store"
	"github.com/mrgiveh/civigraph/pkg/types"
)

// State is the terminal state of one candidate's resolution.
type State string

const (
	// StateNew: no acceptable match existed; a fresh entity was created.
	StateNew State = "new"

	// StateAutoMatched: the top candidate scored at or above the auto
	// threshold, or the raw string was already a known variant.
	StateAutoMatched State = "auto_matched"

	// StatePendingConfirmation: the top score fell in the confirmation
	// band and no confirmer was attached; the decision is parked.
	StatePendingConfirmation State = "pending_confirmation"

	// StateConfirmed: a confirmer accepted a candidate in the band.
	StateConfirmed State = "confirmed"

	// StateRejected: a confirmer rejected all candidates; the name fell
	// through to a fresh entity.
	StateRejected State = "rejected"
)

// Matched reports whether the resolution ended on an existing or newly
// created entity (as opposed to being parked).
func (s State) Matched() bool {
	return s != StatePendingConfirmation
}

// Decision is a confirmer's answer for one parked name. An empty EntityID
// is a rejection.
type Decision struct {
	EntityID string
}

// Confirmer abstracts the confirmation capability for names in the
// ambiguous score band: an interactive prompt, a review queue, anything
// that can answer. Per prd004-capabilities R1.3.
type Confirmer interface {
	Confirm(ctx context.Context, raw, candidateName string, candidates []types.PendingCandidate) (Decision, error)
}

// Resolution is the outcome of resolving one raw name.
type Resolution struct {
	State State

	// Entity is the canonical identity the name resolved to. Nil when
	// State is StatePendingConfirmation.
	Entity *types.CanonicalEntity

	// Pending carries the parked decision when State is
	// StatePendingConfirmation.
	Pending *types.PendingDecision

	// Score is the top similarity score that drove the decision; zero
	// when no entities of the type existed or the hit came from the
	// variant index.
	Score float64

	// Degraded is true when the normalizer fell back to the raw name.
	Degraded bool
}

// Resolver applies the match-decision policy. The store is passed in
// explicitly, never reached through ambient state, so the whole engine can
// run against a scratch registry in tests.
type Resolver struct {
	store      *store.Store
	matcher    *match.Matcher
	normalizer *normalize.Normalizer
	confirmer  Confirmer
	cfg        types.ResolveConfig
}

// New builds a Resolver. confirmer may be nil; in interactive mode that
// parks ambiguous candidates instead of answering them inline. Zero-valued
// config fields get defaults: auto 0.85, review 0.60, top-k 5, automatic
// mode (R2.1-R2.4).
func New(st *store.Store, matcher *match.Matcher, normalizer *normalize.Normalizer, confirmer Confirmer, cfg types.ResolveConfig) *Resolver {
	if cfg.AutoThreshold <= 0 {
		cfg.AutoThreshold = 0.85
	}
	if cfg.ReviewThreshold <= 0 {
		cfg.ReviewThreshold = 0.60
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.Mode == "" {
		cfg.Mode = types.ModeAutomatic
	}
	return &Resolver{store: st, matcher: matcher, normalizer: normalizer, confirmer: confirmer, cfg: cfg}
}

// Resolve maps one raw name to a canonical entity, creating or parking as
// the policy dictates. recordURL is carried into parked decisions for
// review context. Errors are store failures or contract violations; the
// capability-failure paths degrade instead of erroring.
func (r *Resolver) Resolve(ctx context.Context, raw string, entityType types.EntityType, recordURL string) (Resolution, error) {
	// Known variant: O(1) index hit, no embedding needed (R1.1).
	if e, err := r.store.Lookup(ctx, raw, entityType); err != nil {
		return Resolution{}, err
	} else if e != nil {
		return Resolution{State: StateAutoMatched, Entity: e, Score: 1}, nil
	}

	norm := r.normalizer.Normalize(ctx, raw, entityType)

	// The normalized form may itself be a known variant even when the raw
	// form is not (department-qualified affiliations usually are).
	if norm.Candidate != normalize.Clean(raw) {
		if e, err := r.store.Lookup(ctx, norm.Candidate, entityType); err != nil {
			return Resolution{}, err
		} else if e != nil {
			if err := r.adopt(ctx, e, raw); err != nil {
				return Resolution{}, err
			}
			return Resolution{State: StateAutoMatched, Entity: e, Score: 1, Degraded: norm.Degraded}, nil
		}
	}

	candidates, err := r.matcher.RankCandidates(ctx, norm.Candidate, entityType)
	if err != nil {
		var unavailable *types.CapabilityUnavailableError
		if errors.As(err, &unavailable) {
			// Embedding down: nothing to score against, so the name is
			// treated as new rather than failing the batch (R4.1).
			return r.createNew(ctx, raw, norm, entityType, StateNew)
		}
		return Resolution{}, err
	}

	if len(candidates) == 0 || candidates[0].Score < r.cfg.ReviewThreshold {
		return r.createNew(ctx, raw, norm, entityType, StateNew)
	}

	top := candidates[0]
	if top.Score >= r.cfg.AutoThreshold {
		if err := r.accept(ctx, top.Entity, raw, norm.Candidate); err != nil {
			return Resolution{}, err
		}
		return Resolution{State: StateAutoMatched, Entity: top.Entity, Score: top.Score, Degraded: norm.Degraded}, nil
	}

	// Band between the thresholds.
	if r.cfg.Mode == types.ModeAutomatic {
		// No human in the loop: the auto threshold alone decides, and a
		// sub-threshold top score means new (R2.4).
		return r.createNew(ctx, raw, norm, entityType, StateNew)
	}

	pendingCandidates := topK(candidates, r.cfg.TopK)

	if r.confirmer != nil {
		decision, err := r.confirmer.Confirm(ctx, raw, norm.Candidate, pendingCandidates)
		if err != nil {
			var unavailable *types.CapabilityUnavailableError
			if !errors.As(err, &unavailable) {
				return Resolution{}, err
			}
			// Confirmer down: park instead of hanging (R3.1).
		} else if decision.EntityID != "" {
			e, err := r.store.Get(ctx, decision.EntityID)
			if err != nil {
				return Resolution{}, err
			}
			if err := r.accept(ctx, e, raw, norm.Candidate); err != nil {
				return Resolution{}, err
			}
			return Resolution{State: StateConfirmed, Entity: e, Score: top.Score, Degraded: norm.Degraded}, nil
		} else {
			return r.createNew(ctx, raw, norm, entityType, StateRejected)
		}
	}

	parked, err := r.store.AddPending(ctx, types.PendingDecision{
		Type:          entityType,
		Raw:           raw,
		CandidateName: norm.Candidate,
		RecordURL:     recordURL,
		Candidates:    pendingCandidates,
	})
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{State: StatePendingConfirmation, Pending: &parked, Score: top.Score, Degraded: norm.Degraded}, nil
}

// ResolvePending answers a parked decision: acceptEntityID names the
// surviving entity, empty rejects into a fresh entity. The queue entry is
// removed either way (R3.3).
func (r *Resolver) ResolvePending(ctx context.Context, pendingID, acceptEntityID string) (*types.CanonicalEntity, error) {
	d, err := r.store.GetPending(ctx, pendingID)
	if err != nil {
		return nil, err
	}

	var entity *types.CanonicalEntity
	if acceptEntityID != "" {
		if entity, err = r.store.Get(ctx, acceptEntityID); err != nil {
			return nil, err
		}
		if err := r.accept(ctx, entity, d.Raw, d.CandidateName); err != nil {
			return nil, err
		}
	} else {
		res, err := r.createNew(ctx, d.Raw, normalize.Result{Candidate: d.CandidateName}, d.Type, StateNew)
		if err != nil {
			return nil, err
		}
		entity = res.Entity
	}

	if err := r.store.RemovePending(ctx, pendingID); err != nil {
		return nil, err
	}
	return entity, nil
}

// accept records raw (and the normalized candidate) as variants of e.
// A concurrent pipeline may have claimed one of the strings since we ranked;
// the store's variant index surfaces that as DuplicateVariantError, which is
// only a contract violation if the owner is a different entity (R4.2).
func (r *Resolver) accept(ctx context.Context, e *types.CanonicalEntity, raw, candidate string) error {
	for _, form := range []string{raw, candidate} {
		if err := r.adopt(ctx, e, form); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) adopt(ctx context.Context, e *types.CanonicalEntity, form string) error {
	err := r.store.AddVariant(ctx, e.ID, form)
	var dup *types.DuplicateVariantError
	if errors.As(err, &dup) && dup.ExistingID == e.ID {
		return nil
	}
	if err != nil {
		return fmt.Errorf("recording variant %q of %s: %w", form, e.ID, err)
	}
	return nil
}

// createNew creates a fresh entity named after the normalizer's candidate.
// If a concurrent pipeline created the same name first, the duplicate error
// is resolved by adopting that entity instead (R4.2).
func (r *Resolver) createNew(ctx context.Context, raw string, norm normalize.Result, entityType types.EntityType, state State) (Resolution, error) {
	e, err := r.store.Create(ctx, raw, norm.Candidate, entityType)
	var dup *types.DuplicateVariantError
	if errors.As(err, &dup) {
		existing, err := r.store.Get(ctx, dup.ExistingID)
		if err != nil {
			return Resolution{}, err
		}
		if err := r.accept(ctx, existing, raw, norm.Candidate); err != nil {
			return Resolution{}, err
		}
		return Resolution{State: StateAutoMatched, Entity: existing, Score: 1, Degraded: norm.Degraded}, nil
	}
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{State: state, Entity: e, Degraded: norm.Degraded}, nil
}

func topK(candidates []match.Candidate, k int) []types.PendingCandidate {
	if len(candidates) < k {
		k = len(candidates)
	}
	out := make([]types.PendingCandidate, k)
	for i := 0; i < k; i++ {
		out[i] = types.PendingCandidate{
			EntityID: candidates[i].Entity.ID,
			Name:     candidates[i].Entity.CanonicalName,
			Score:    candidates[i].Score,
		}
	}
	return out
}
