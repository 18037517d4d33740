// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// RawRecord is one scraped bibliographic record as produced by the scraping
// collaborator. Title and abstract arrive already translated to English;
// names arrive as raw surface forms. Per prd002-resolution R1.1.
type RawRecord struct {
	// URL is the source page the record was scraped from. Empty for
	// manually entered records.
	URL string `json:"url" yaml:"url"`

	// Year is the publication year (Gregorian).
	Year int `json:"year" yaml:"year"`

	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// Abstract is the paper abstract.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Authors lists raw author name strings in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Affiliations lists raw affiliation strings, positionally aligned
	// with Authors. The scraper does not guarantee equal lengths; the
	// pipeline treats a mismatch as a data-quality event (R4.3).
	Affiliations []string `json:"affiliations" yaml:"affiliations"`

	// Journal is the raw journal or conference string.
	Journal string `json:"journal" yaml:"journal"`
}

// Aligned reports whether authors and affiliations can be paired
// positionally.
func (r *RawRecord) Aligned() bool {
	return len(r.Authors) == len(r.Affiliations)
}

// ResolvedRecord is a RawRecord whose names have been resolved to canonical
// identities. Authors and Affiliations keep their positional alignment; a
// nil entry marks a name whose resolution is parked awaiting confirmation.
// Per prd002-resolution R3.4.
type ResolvedRecord struct {
	Raw          RawRecord
	Authors      []*CanonicalEntity
	Affiliations []*CanonicalEntity

	// Journal is nil when the record has no journal or its resolution is
	// pending.
	Journal *CanonicalEntity

	// Degraded is true when at least one name fell back to its raw form
	// because the normalization capability failed or returned
	// low-confidence output (R2.5).
	Degraded bool
}
