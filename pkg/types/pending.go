// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// PendingCandidate is one existing entity offered as a possible match for a
// parked name.
type PendingCandidate struct {
	EntityID string  `json:"entity_id" yaml:"entity_id"`
	Name     string  `json:"name" yaml:"name"`
	Score    float64 `json:"score" yaml:"score"`
}

// PendingDecision is a suspended resolution: a candidate name that scored
// inside the confirmation band while no confirmation capability was
// attached. It survives in the store until answered, so a batch can finish
// and the decision can be replayed later. Per prd002-resolution R3.1-R3.4.
type PendingDecision struct {
	// ID identifies the parked decision.
	ID string `json:"id" yaml:"id"`

	// Type is the entity namespace of the name.
	Type EntityType `json:"type" yaml:"type"`

	// Raw is the surface form as scraped.
	Raw string `json:"raw" yaml:"raw"`

	// CandidateName is the normalizer's candidate canonical form; it
	// becomes the canonical name if the decision is rejected into a new
	// entity.
	CandidateName string `json:"candidate_name" yaml:"candidate_name"`

	// RecordURL points at the record that surfaced the name, for review
	// context.
	RecordURL string `json:"record_url,omitempty" yaml:"record_url,omitempty"`

	// Candidates are the top-k match candidates, best first.
	Candidates []PendingCandidate `json:"candidates" yaml:"candidates"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
