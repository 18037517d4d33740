// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrgiveh/civigraph/internal/store"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Review parked match decisions (list, accept, reject)",
	Long: `Pending manages match decisions that were parked during ingestion because
the similarity score fell in the confirmation band and no confirmer was
available. Accept attaches the name to an existing entity; reject creates
a new one. Either way the decision leaves the queue, and re-ingesting the
affected records fills in the graph edges that were skipped.`,
}

// --- list subcommand ---

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List parked decisions, oldest first",
	RunE:  runPendingList,
}

func runPendingList(cmd *cobra.Command, args []string) error {
	st, err := store.NewStore(storeConfig(cmd))
	if err != nil {
		return err
	}
	defer st.Close()

	decisions, err := st.ListPending(context.Background())
	if err != nil {
		return err
	}

	if len(decisions) == 0 {
		fmt.Println("No pending decisions.")
		return nil
	}

	for _, d := range decisions {
		fmt.Fprintf(os.Stdout, "%s  %s %q", d.ID, d.Type, d.Raw)
		if d.RecordURL != "" {
			fmt.Fprintf(os.Stdout, "  (from %s)", d.RecordURL)
		}
		fmt.Fprintln(os.Stdout)
		for _, cand := range d.Candidates {
			fmt.Fprintf(os.Stdout, "    %s  %s (score %.2f)\n", cand.EntityID, cand.Name, cand.Score)
		}
	}
	fmt.Fprintf(os.Stdout, "\n%d pending decision(s)\n", len(decisions))
	return nil
}

// --- accept subcommand ---

var pendingAcceptCmd = &cobra.Command{
	Use:   "accept [pending-id] [entity-id]",
	Short: "Attach a parked name to an existing entity",
	Args:  cobra.ExactArgs(2),
	RunE:  runPendingAccept,
}

func runPendingAccept(cmd *cobra.Command, args []string) error {
	st, resolver, err := buildResolver(cmd, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	entity, err := resolver.ResolvePending(context.Background(), args[0], args[1])
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "accepted: now a variant of %s (id %s)\n", entity.CanonicalName, entity.ID)
	return nil
}

// --- reject subcommand ---

var pendingRejectCmd = &cobra.Command{
	Use:   "reject [pending-id]",
	Short: "Reject all candidates and create a new entity for the parked name",
	Args:  cobra.ExactArgs(1),
	RunE:  runPendingReject,
}

func runPendingReject(cmd *cobra.Command, args []string) error {
	st, resolver, err := buildResolver(cmd, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	entity, err := resolver.ResolvePending(context.Background(), args[0], "")
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "rejected: created new entity %s (id %s)\n", entity.CanonicalName, entity.ID)
	return nil
}

func init() {
	pendingCmd.AddCommand(pendingListCmd)
	pendingCmd.AddCommand(pendingAcceptCmd)
	pendingCmd.AddCommand(pendingRejectCmd)

	rootCmd.AddCommand(pendingCmd)
}
