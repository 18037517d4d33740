// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"fmt"
	"io"

	"github.com/mrgiveh/civigraph/internal/ingest"
	"github.com/mrgiveh/civigraph/internal/normalize"
	"github.com/mrgiveh/civigraph/pkg/types"
)

// Sink receives the graph operations a record resolves into. Implemented by
// the in-memory sink and the Neo4j sink in internal/graph.
type Sink interface {
	Apply(ctx context.Context, ops []types.GraphOp) error
}

// BatchSummary holds counts from one pipeline run (R4.4).
type BatchSummary struct {
	Records    int // records processed
	Matched    int // names resolved to existing entities
	Created    int // names that became new entities
	Pending    int // names parked for confirmation
	Degraded   int // names whose normalization fell back to raw
	Mismatched int // records with author/affiliation misalignment
	Failed     int // records whose graph ops could not be applied
	Ops        int // graph ops emitted
}

// Pipeline runs the full resolution and ingestion loop: one record fully
// resolved and ingested before the next begins, so the registry's on-disk
// state stays race-free (docs/ARCHITECTURE.md § Scheduling).
type Pipeline struct {
	resolver *Resolver
	sink     Sink
}

// NewPipeline wires a resolver to a graph sink.
func NewPipeline(resolver *Resolver, sink Sink) *Pipeline {
	return &Pipeline{resolver: resolver, sink: sink}
}

// Run processes records in order, writing per-record progress to w.
// Resolution and registry errors abort the batch (a registry whose
// durability is uncertain must not keep absorbing writes, R4.5); sink
// failures mark the record failed and continue, matching the
// one-bad-paper-does-not-stop-the-import behavior of the graph loader.
func (p *Pipeline) Run(ctx context.Context, records []types.RawRecord, w io.Writer) (BatchSummary, error) {
	var summary BatchSummary

	for i := range records {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		record := &records[i]
		summary.Records++
		fmt.Fprintf(w, "processing %s\n", recordLabel(record))

		resolved, err := p.resolveRecord(ctx, record, &summary)
		if err != nil {
			return summary, fmt.Errorf("resolving %s: %w", recordLabel(record), err)
		}

		ops := ingest.BuildOps(resolved)
		summary.Ops += len(ops)

		if err := p.sink.Apply(ctx, ops); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", recordLabel(record), err)
			summary.Failed++
			continue
		}

		fmt.Fprintf(w, "ingested %s (%d ops)\n", recordLabel(record), len(ops))
	}

	fmt.Fprintf(w, "\nrecords: %d, matched: %d, created: %d, pending: %d, mismatched: %d, failed: %d\n",
		summary.Records, summary.Matched, summary.Created, summary.Pending, summary.Mismatched, summary.Failed)
	return summary, nil
}

// resolveRecord resolves every name on one record. A parked name leaves a
// nil slot so its ops are skipped; re-running ingest after the decision is
// answered converges because every op is idempotent (R3.4).
func (p *Pipeline) resolveRecord(ctx context.Context, record *types.RawRecord, summary *BatchSummary) (*types.ResolvedRecord, error) {
	resolved := &types.ResolvedRecord{Raw: *record}

	if normalize.Clean(record.Journal) != "" {
		res, err := p.resolveName(ctx, record.Journal, types.EntityJournal, record.URL, summary)
		if err != nil {
			return nil, err
		}
		resolved.Journal = res.Entity
		resolved.Degraded = resolved.Degraded || res.Degraded
	}

	if !record.Aligned() {
		// Misaligned author/affiliation sequences cannot be paired; the
		// paper and journal still ingest, the author side is skipped
		// entirely (R4.3). Resolving the names anyway would fabricate
		// pairings the source never asserted.
		summary.Mismatched++
		return resolved, nil
	}

	for i, author := range record.Authors {
		var authorEntity, affilEntity *types.CanonicalEntity

		if normalize.Clean(author) != "" {
			res, err := p.resolveName(ctx, author, types.EntityAuthor, record.URL, summary)
			if err != nil {
				return nil, err
			}
			authorEntity = res.Entity
			resolved.Degraded = resolved.Degraded || res.Degraded
		}

		if affil := record.Affiliations[i]; normalize.Clean(affil) != "" {
			res, err := p.resolveName(ctx, affil, types.EntityAffiliation, record.URL, summary)
			if err != nil {
				return nil, err
			}
			affilEntity = res.Entity
			resolved.Degraded = resolved.Degraded || res.Degraded
		}

		resolved.Authors = append(resolved.Authors, authorEntity)
		resolved.Affiliations = append(resolved.Affiliations, affilEntity)
	}

	return resolved, nil
}

func (p *Pipeline) resolveName(ctx context.Context, raw string, entityType types.EntityType, recordURL string, summary *BatchSummary) (Resolution, error) {
	res, err := p.resolver.Resolve(ctx, raw, entityType, recordURL)
	if err != nil {
		return Resolution{}, err
	}

	switch res.State {
	case StateAutoMatched, StateConfirmed:
		summary.Matched++
	case StateNew, StateRejected:
		summary.Created++
	case StatePendingConfirmation:
		summary.Pending++
	}
	if res.Degraded {
		summary.Degraded++
	}
	return res, nil
}

func recordLabel(record *types.RawRecord) string {
	if record.URL != "" {
		return record.URL
	}
	if record.Title != "" {
		return record.Title
	}
	return "(untitled record)"
}
