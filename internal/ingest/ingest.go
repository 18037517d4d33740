// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest converts one resolved bibliographic record into an ordered
// sequence of idempotent graph operations.
// Implements: prd003-graph (R1, R2);
//
//	docs/ARCHITECTURE.md § Graph Ingestion Adapter.
package ingest

import (
	"github.com/mrgiveh/civigraph/internal/normalize"
	"github.com/mrgiveh/civigraph/pkg/types"
)

// PaperKey returns the Paper node's merge key: the URL when the record has
// one, otherwise a key derived from the cleaned title. URL-primary keying is
// deliberate — titles collide across venues, URLs do not — and the title
// fallback exists only for manually entered records without a source page
// (R1.5).
func PaperKey(record *types.RawRecord) string {
	if record.URL != "" {
		return record.URL
	}
	return "title:" + normalize.Clean(record.Title)
}

// BuildOps emits the graph operations for one resolved record, in a stable
// order: paper, journal, per-author ops, coauthorship edges. Every op is an
// upsert, so re-running the same record is a net no-op at the sink (R2.1).
//
// A record whose author and affiliation sequences misalign contributes only
// its paper and journal ops (R2.4); slots whose resolution is parked are
// skipped the same way and picked up on a later re-ingest.
func BuildOps(resolved *types.ResolvedRecord) []types.GraphOp {
	record := &resolved.Raw
	paper := types.NodeRef{Label: types.LabelPaper, Key: PaperKey(record)}

	ops := []types.GraphOp{
		types.UpsertNode(paper.Label, paper.Key, map[string]any{
			"title":    record.Title,
			"abstract": record.Abstract,
			"url":      record.URL,
			"year":     record.Year,
		}),
	}

	if resolved.Journal != nil {
		journal := types.NodeRef{Label: types.LabelJournal, Key: resolved.Journal.CanonicalName}
		ops = append(ops,
			types.UpsertNode(journal.Label, journal.Key, map[string]any{"name": journal.Key}),
			types.UpsertEdge(types.EdgePublishedAt, paper, journal),
		)
	}

	if len(resolved.Authors) != len(resolved.Affiliations) {
		return ops
	}

	// Authors deduplicated by entity id: two surface forms on the same
	// paper that resolved to one person yield one node and one WROTE edge.
	seen := make(map[string]bool)
	var authors []types.NodeRef

	for i, author := range resolved.Authors {
		if author == nil {
			continue
		}

		ref := types.NodeRef{Label: types.LabelAuthor, Key: author.CanonicalName}
		if !seen[author.ID] {
			seen[author.ID] = true
			authors = append(authors, ref)
			ops = append(ops,
				types.UpsertNode(ref.Label, ref.Key, map[string]any{"name": ref.Key}),
				types.UpsertEdge(types.EdgeWrote, ref, paper),
			)
		}

		if affil := resolved.Affiliations[i]; affil != nil {
			affilRef := types.NodeRef{Label: types.LabelAffiliation, Key: affil.CanonicalName}
			ops = append(ops,
				types.UpsertNode(affilRef.Label, affilRef.Key, map[string]any{"name": affilRef.Key}),
				types.UpsertEdge(types.EdgeAffiliatedWith, ref, affilRef),
			)
		}
	}

	ops = append(ops, coauthorOps(authors)...)
	return ops
}

// coauthorOps emits one undirected COAUTHORED edge per unordered pair of
// distinct authors. Endpoints are ordered lexicographically so the same
// pair always produces the same op regardless of author order on the paper;
// sinks merge it without direction, so re-observing a pair on a later paper
// is a no-op (R2.2, R2.3).
func coauthorOps(authors []types.NodeRef) []types.GraphOp {
	if len(authors) < 2 {
		return nil
	}

	ops := make([]types.GraphOp, 0, len(authors)*(len(authors)-1)/2)
	for i := 0; i < len(authors); i++ {
		for j := i + 1; j < len(authors); j++ {
			from, to := authors[i], authors[j]
			if to.Key < from.Key {
				from, to = to, from
			}
			ops = append(ops, types.UpsertEdge(types.EdgeCoauthored, from, to))
		}
	}
	return ops
}
