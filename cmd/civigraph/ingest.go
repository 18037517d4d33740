// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrgiveh/civigraph/internal/graph"
	"github.com/mrgiveh/civigraph/internal/resolve"
	"github.com/mrgiveh/civigraph/pkg/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [records.json]",
	Short: "Resolve a batch of scraped records and ingest them into the graph",
	Long: `Ingest reads a JSON array of scraped records, resolves every author,
affiliation, and journal name against the entity registry, and applies the
resulting graph operations to Neo4j. Every write is an idempotent upsert,
so re-running a batch is safe.

With --dry-run the graph operations are applied to an in-memory sink and
summarized instead of hitting Neo4j. With --interactive, ambiguous matches
prompt on the terminal; otherwise they are parked for later review via the
pending subcommand.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	records, err := readRecords(args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no records in %s", args[0])
	}

	var confirmer resolve.Confirmer
	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		confirmer = &terminalConfirmer{in: bufio.NewReader(os.Stdin), out: os.Stdout}
	}

	st, resolver, err := buildResolver(cmd, confirmer)
	if err != nil {
		return err
	}
	defer st.Close()

	sink, cleanup, err := openSink(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	pipeline := resolve.NewPipeline(resolver, sink)
	summary, err := pipeline.Run(ctx, records, os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d record(s) failed ingestion", summary.Failed)
	}
	if summary.Pending > 0 {
		fmt.Fprintf(os.Stdout, "%d name(s) parked; run 'civigraph pending list' to review\n", summary.Pending)
	}
	return nil
}

// readRecords parses a JSON array of scraped records.
func readRecords(path string) ([]types.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading records file: %w", err)
	}

	var records []types.RawRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing records file %s: %w", path, err)
	}
	return records, nil
}

// openSink returns the graph sink for this run: the in-memory sink for dry
// runs or when no Neo4j endpoint is configured, the Neo4j sink otherwise.
func openSink(ctx context.Context, cmd *cobra.Command) (resolve.Sink, func(), error) {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	cfg := graphConfig(cmd)

	if dryRun || cfg.URI == "" {
		if !dryRun {
			fmt.Fprintln(os.Stderr, "no Neo4j endpoint configured; using in-memory sink")
		}
		return graph.NewMemorySink(), func() {}, nil
	}

	sink, err := graph.NewNeo4jSink(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return sink, func() { sink.Close(ctx) }, nil
}

// terminalConfirmer prompts on the terminal for each ambiguous match.
type terminalConfirmer struct {
	in  *bufio.Reader
	out *os.File
}

// Confirm shows the candidate list and reads a selection. Entering a
// candidate number accepts it; 'n' or an empty line creates a new entity.
func (c *terminalConfirmer) Confirm(_ context.Context, raw, candidateName string, candidates []types.PendingCandidate) (resolve.Decision, error) {
	fmt.Fprintf(c.out, "\nambiguous match for %q (normalized: %q)\n", raw, candidateName)
	for i, cand := range candidates {
		fmt.Fprintf(c.out, "  [%d] %s (score %.2f)\n", i+1, cand.Name, cand.Score)
	}

	for {
		fmt.Fprintf(c.out, "accept [1-%d], or (n)ew: ", len(candidates))
		line, err := c.in.ReadString('\n')
		if err != nil {
			return resolve.Decision{}, &types.CapabilityUnavailableError{
				Capability: "confirmation",
				Err:        fmt.Errorf("reading terminal input: %w", err),
			}
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, "n") {
			return resolve.Decision{}, nil
		}

		idx, err := strconv.Atoi(line)
		if err == nil && idx >= 1 && idx <= len(candidates) {
			return resolve.Decision{EntityID: candidates[idx-1].EntityID}, nil
		}
		fmt.Fprintf(c.out, "unrecognized answer %q\n", line)
	}
}

func init() {
	ingestCmd.Flags().Bool("dry-run", false, "apply graph operations to an in-memory sink and report counts")
	ingestCmd.Flags().Bool("interactive", false, "prompt on the terminal for ambiguous matches")
	ingestCmd.Flags().Float64("auto-threshold", 0, "similarity cutoff for automatic acceptance (default 0.85)")
	ingestCmd.Flags().Float64("review-threshold", 0, "lower bound of the confirmation band (default 0.60)")
	ingestCmd.Flags().Int("top-k", 0, "candidates shown per ambiguous match (default 5)")
	ingestCmd.Flags().String("model", "", "text-generation model for name normalization")
	ingestCmd.Flags().String("embedding-model", "", "embedding model for similarity scoring")
	ingestCmd.Flags().String("api-key", "", "OpenAI API key (default: .secrets/openai-api-key)")
	ingestCmd.Flags().String("neo4j-uri", "", "Neo4j bolt endpoint (e.g. bolt://localhost:7687)")
	ingestCmd.Flags().String("neo4j-user", "", "Neo4j username (default: neo4j)")
	ingestCmd.Flags().String("neo4j-password", "", "Neo4j password (default: .secrets/neo4j-password)")
	ingestCmd.Flags().String("neo4j-database", "", "Neo4j database name")

	rootCmd.AddCommand(ingestCmd)
}
