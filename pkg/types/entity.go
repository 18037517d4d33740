// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the civigraph pipeline.
// Implements: prd001-entity-store (CanonicalEntity, R1.1-R1.4);
//
//	prd002-resolution (Resolution states, R1.1, R2.1-R2.4);
//	prd003-graph (GraphOp, R1.1-R1.3).
//
// See docs/ARCHITECTURE.md § Data Structures.
package types

// EntityType distinguishes the three namespaces of canonical entities.
// Resolution never crosses types: an author name can only match author
// entities. Per prd001-entity-store R1.1.
type EntityType string

const (
	EntityAuthor      EntityType = "author"
	EntityAffiliation EntityType = "affiliation"
	EntityJournal     EntityType = "journal"
)

// Valid reports whether t is one of the three known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityAuthor, EntityAffiliation, EntityJournal:
		return true
	}
	return false
}

// CanonicalEntity is the single deduplicated identity record representing
// all known surface forms of one real-world author, affiliation, or journal.
// Per prd001-entity-store R1.2-R1.4.
type CanonicalEntity struct {
	// ID is a UUID assigned at creation and never reused, including after
	// the entity is retired by a merge.
	ID string `json:"id" yaml:"id"`

	// Type is the entity namespace.
	Type EntityType `json:"type" yaml:"type"`

	// CanonicalName is the standardized display string. It is always also
	// a member of Variants.
	CanonicalName string `json:"canonical_name" yaml:"canonical_name"`

	// Variants lists the raw surface-form strings known to refer to this
	// entity. Within a type a raw string belongs to at most one entity.
	Variants []string `json:"variants" yaml:"variants"`

	// Embedding is the cached vector for CanonicalName. Empty until the
	// matcher computes it; recomputed only when CanonicalName changes.
	Embedding []float32 `json:"-" yaml:"-"`

	// Seq is the creation sequence number within the store. The matcher
	// uses it to break score ties deterministically (earlier entity wins).
	Seq int64 `json:"-" yaml:"-"`
}

// HasVariant reports whether raw is already recorded as a variant.
// Comparison is exact; callers normalize before lookup against the store.
func (e *CanonicalEntity) HasVariant(raw string) bool {
	for _, v := range e.Variants {
		if v == raw {
			return true
		}
	}
	return false
}
