// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize produces a cleaned candidate canonical form from a raw
// scraped name. Implements: prd002-resolution (R2.5, normalizer contract);
//
//	docs/ARCHITECTURE.md § Name Normalizer.
package normalize

import (
	"context"
	"fmt"
	"strings"

	"github.com/mrgiveh/civigraph/pkg/types"
)

// Generator abstracts the text-generation capability so tests can supply a
// deterministic fake. Per prd004-capabilities R1.1.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Result is the outcome of normalizing one raw name.
type Result struct {
	// Candidate is the cleaned candidate canonical form.
	Candidate string

	// Degraded is true when the capability failed or returned
	// low-confidence output and Candidate fell back to the cleaned raw
	// name. Per prd002-resolution R2.5.
	Degraded bool
}

// Normalizer strips non-identity tokens (departments, postal addresses,
// honorifics, volume numbers) from raw names using the text-generation
// capability. Output is not guaranteed deterministic across calls; callers
// rely only on the candidate being good enough to embed and match.
type Normalizer struct {
	gen Generator
}

// New returns a Normalizer backed by gen. A nil gen is allowed and degrades
// every call to the cleaned raw name.
func New(gen Generator) *Normalizer {
	return &Normalizer{gen: gen}
}

// corePrompt asks the model for the core identity string only. The rules
// mirror what the registry's existing canonical names were produced with, so
// new candidates land in the same form.
const corePrompt = `Extract the core name of the %s from the following text.

Rules:
- For research organizations: keep only the university, institute, or main organization name. Remove departments, labs, addresses, and personal titles.
- For journals/conferences: keep only the journal or conference name. Remove volume, issue numbers, and extra formatting.
- For person names: keep only the name itself. Remove honorifics and degrees.

Only return the cleaned-up name without any explanations. If you can't extract a core name, return the input text unchanged.

Text: %q
Core Name:`

// promptSubject maps an entity type to the noun used in the prompt.
func promptSubject(t types.EntityType) string {
	switch t {
	case types.EntityAuthor:
		return "person"
	case types.EntityJournal:
		return "journal or conference"
	default:
		return "research organization"
	}
}

// Normalize returns a candidate canonical form for raw. On capability
// failure or low-confidence output it falls back to Clean(raw) and marks the
// result degraded; it never fails the pipeline.
func (n *Normalizer) Normalize(ctx context.Context, raw string, entityType types.EntityType) Result {
	fallback := Result{Candidate: Clean(raw), Degraded: true}
	if n.gen == nil || strings.TrimSpace(raw) == "" {
		return fallback
	}

	prompt := fmt.Sprintf(corePrompt, promptSubject(entityType), raw)
	out, err := n.gen.GenerateText(ctx, prompt)
	if err != nil {
		return fallback
	}
	if strings.Contains(strings.TrimSpace(out), "\n") {
		// Multi-line output means the model explained itself anyway.
		return fallback
	}

	candidate := Clean(out)
	if !plausible(candidate, fallback.Candidate) {
		return fallback
	}
	return Result{Candidate: candidate}
}

// plausible rejects cleaned model output that is empty or so much longer
// than the input that it likely contains an explanation instead of a name.
func plausible(candidate, cleanedRaw string) bool {
	if candidate == "" {
		return false
	}
	if len(candidate) > len(cleanedRaw)*3/2+20 {
		return false
	}
	return true
}
