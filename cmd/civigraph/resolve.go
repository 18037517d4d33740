// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrgiveh/civigraph/internal/resolve"
	"github.com/mrgiveh/civigraph/pkg/types"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [name]",
	Short: "Resolve a single name against the entity registry",
	Long: `Resolve maps one raw name string to a canonical entity, creating a new
entity when no acceptable match exists. The registry is updated exactly as
it would be during a batch ingest, so resolve doubles as a way to seed or
correct the registry by hand.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	typeName, _ := cmd.Flags().GetString("type")
	entityType := types.EntityType(typeName)
	if !entityType.Valid() {
		return fmt.Errorf("unknown entity type %q: use author, affiliation, or journal", typeName)
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

	res, err := resolver.Resolve(context.Background(), args[0], entityType, "")
	if err != nil {
		return err
	}

	switch res.State {
	case resolve.StatePendingConfirmation:
		fmt.Fprintf(os.Stdout, "parked for confirmation (pending id %s)\n", res.Pending.ID)
		for _, cand := range res.Pending.Candidates {
			fmt.Fprintf(os.Stdout, "  candidate %s (score %.2f)\n", cand.Name, cand.Score)
		}
	default:
		fmt.Fprintf(os.Stdout, "%s: %s (id %s, score %.2f)\n",
			res.State, res.Entity.CanonicalName, res.Entity.ID, res.Score)
		if res.Degraded {
			fmt.Fprintln(os.Stdout, "note: normalization degraded to the raw form")
		}
	}
	return nil
}

func init() {
	resolveCmd.Flags().String("type", "author", "entity type: author, affiliation, or journal")
	resolveCmd.Flags().Bool("interactive", false, "prompt on the terminal for ambiguous matches")
	resolveCmd.Flags().Float64("auto-threshold", 0, "similarity cutoff for automatic acceptance (default 0.85)")
	resolveCmd.Flags().Float64("review-threshold", 0, "lower bound of the confirmation band (default 0.60)")
	resolveCmd.Flags().Int("top-k", 0, "candidates shown per ambiguous match (default 5)")
	resolveCmd.Flags().String("model", "", "text-generation model for name normalization")
	resolveCmd.Flags().String("embedding-model", "", "embedding model for similarity scoring")
	resolveCmd.Flags().String("api-key", "", "OpenAI API key (default: .secrets/openai-api-key)")

	rootCmd.AddCommand(resolveCmd)
}
