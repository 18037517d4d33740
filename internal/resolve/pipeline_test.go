// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mrgiveh/civigraph/internal/graph"
	"github.com/mrgiveh/civigraph/internal/match"
	"github.com/mrgiveh/civigraph/internal/normalize"
	"github.com/mrgiveh/civigraph/internal/store"
	"github.com/mrgiveh/civigraph/pkg/types"
)

func testPipeline(t *testing.T, embedder match.Embedder, sink Sink) (*store.Store, *Pipeline) {
	t.Helper()
	st, err := store.NewStore(types.StoreConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	resolver := New(st, match.New(st, embedder, 0), normalize.New(nil), nil, types.ResolveConfig{})
	return st, NewPipeline(resolver, sink)
}

// pipelineVectors places the two Smith surface forms on the same axis so
// they resolve to one entity, and everything else far away.
func pipelineVectors() map[string][]float32 {
	return map[string][]float32{
		"smith a":       {1, 0, 0},
		"alice smith":   {0.99, 0.14106736, 0}, // cos ~0.99 against "smith a"
		"bob jones":     {0, 1, 0},
		"mit":           {0, 0, 1},
		"nature":        {0.577, 0.577, 0.577},
		"j climate res": {0.5, 0.5, 0},
	}
}

func sampleRecord() types.RawRecord {
	return types.RawRecord{
		URL:          "https://example.org/paper/1",
		Year:         2024,
		Title:        "Entity Resolution at Scale",
		Abstract:     "We study canonicalization of scraped names.",
		Authors:      []string{"Smith, A.", "Alice Smith", "Bob Jones"},
		Affiliations: []string{"MIT", "M.I.T.", "MIT"},
		Journal:      "Nature",
	}
}

func TestPipelineDeduplicatesAuthors(t *testing.T) {
	sink := graph.NewMemorySink()
	st, p := testPipeline(t, &fakeEmbedder{vectors: pipelineVectors()}, sink)

	var out bytes.Buffer
	summary, err := p.Run(context.Background(), []types.RawRecord{sampleRecord()}, &out)
	if err != nil {
		t.Fatal(err)
	}

	// "Smith, A." and "Alice Smith" converge on one entity; one Author node,
	// one WROTE edge, one shared Affiliation.
	if got := sink.NodeCount(types.LabelAuthor); got != 2 {
		t.Fatalf("author nodes: want 2, got %d", got)
	}
	if got := sink.EdgeCount(types.EdgeWrote); got != 2 {
		t.Fatalf("WROTE edges: want 2, got %d", got)
	}
	if got := sink.NodeCount(types.LabelAffiliation); got != 1 {
		t.Fatalf("affiliation nodes: want 1, got %d", got)
	}
	if got := sink.EdgeCount(types.EdgeCoauthored); got != 1 {
		t.Fatalf("COAUTHORED edges: want 1, got %d", got)
	}
	if got := sink.NodeCount(types.LabelPaper); got != 1 {
		t.Fatalf("paper nodes: want 1, got %d", got)
	}
	if got := sink.NodeCount(types.LabelJournal); got != 1 {
		t.Fatalf("journal nodes: want 1, got %d", got)
	}

	// Both surface forms live on the merged entity's variant set.
	smith, err := st.Lookup(context.Background(), "Smith, A.", types.EntityAuthor)
	if err != nil || smith == nil {
		t.Fatalf("lookup: %v %v", smith, err)
	}
	alice, err := st.Lookup(context.Background(), "Alice Smith", types.EntityAuthor)
	if err != nil || alice == nil || alice.ID != smith.ID {
		t.Fatalf("both forms should share one entity: %+v vs %+v", smith, alice)
	}

	if summary.Records != 1 || summary.Created == 0 || summary.Matched == 0 {
		t.Fatalf("summary: %+v", summary)
	}
	if !strings.Contains(out.String(), "ingested https://example.org/paper/1") {
		t.Fatalf("progress output: %q", out.String())
	}
}

func TestPipelineIdempotentReingest(t *testing.T) {
	sink := graph.NewMemorySink()
	_, p := testPipeline(t, &fakeEmbedder{vectors: pipelineVectors()}, sink)
	ctx := context.Background()

	records := []types.RawRecord{sampleRecord()}
	if _, err := p.Run(ctx, records, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}

	nodes, edges := sink.NodeCount(""), sink.EdgeCount("")

	// Second run of the same batch: every op is an upsert, net no-op.
	summary, err := p.Run(ctx, records, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if sink.NodeCount("") != nodes || sink.EdgeCount("") != edges {
		t.Fatalf("re-ingest changed the graph: %d/%d nodes, %d/%d edges",
			nodes, sink.NodeCount(""), edges, sink.EdgeCount(""))
	}
	if summary.Created != 0 {
		t.Fatalf("re-ingest should create nothing: %+v", summary)
	}
	if summary.Matched == 0 {
		t.Fatalf("re-ingest should match everything: %+v", summary)
	}
}

func TestPipelineMisalignedRecord(t *testing.T) {
	sink := graph.NewMemorySink()
	_, p := testPipeline(t, &fakeEmbedder{vectors: pipelineVectors()}, sink)

	record := types.RawRecord{
		URL:          "https://example.org/paper/2",
		Title:        "Mismatched Metadata",
		Authors:      []string{"Smith, A.", "Bob Jones"},
		Affiliations: []string{"MIT"},
		Journal:      "J. Climate Res.",
	}

	summary, err := p.Run(context.Background(), []types.RawRecord{record}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Mismatched != 1 {
		t.Fatalf("summary: %+v", summary)
	}

	// Paper and journal land; the author side is skipped entirely.
	if got := sink.NodeCount(types.LabelPaper); got != 1 {
		t.Fatalf("paper nodes: %d", got)
	}
	if got := sink.NodeCount(types.LabelJournal); got != 1 {
		t.Fatalf("journal nodes: %d", got)
	}
	if got := sink.NodeCount(types.LabelAuthor); got != 0 {
		t.Fatalf("author nodes should be skipped: %d", got)
	}
	if got := sink.EdgeCount(types.EdgePublishedAt); got != 1 {
		t.Fatalf("PUBLISHED_AT edges: %d", got)
	}
}

// failingSink rejects every Apply.
type failingSink struct{}

func (failingSink) Apply(context.Context, []types.GraphOp) error {
	return errors.New("connection reset")
}

func TestPipelineSinkFailureContinues(t *testing.T) {
	_, p := testPipeline(t, &fakeEmbedder{vectors: pipelineVectors()}, failingSink{})

	records := []types.RawRecord{sampleRecord(), {
		URL: "https://example.org/paper/3", Title: "Second", Journal: "Nature",
	}}

	var out bytes.Buffer
	summary, err := p.Run(context.Background(), records, &out)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Failed != 2 || summary.Records != 2 {
		t.Fatalf("summary: %+v", summary)
	}
	if !strings.Contains(out.String(), "failed") {
		t.Fatalf("output should report failures: %q", out.String())
	}
}

func TestPipelineContextCancellation(t *testing.T) {
	_, p := testPipeline(t, &fakeEmbedder{vectors: pipelineVectors()}, graph.NewMemorySink())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, []types.RawRecord{sampleRecord()}, &bytes.Buffer{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestPipelineSummaryLine(t *testing.T) {
	_, p := testPipeline(t, &fakeEmbedder{vectors: pipelineVectors()}, graph.NewMemorySink())

	var out bytes.Buffer
	if _, err := p.Run(context.Background(), []types.RawRecord{sampleRecord()}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "records: 1,") {
		t.Fatalf("summary line missing: %q", out.String())
	}
}
