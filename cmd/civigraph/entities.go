// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrgiveh/civigraph/internal/store"
	"github.com/mrgiveh/civigraph/pkg/types"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Manage the canonical entity registry (list, merge, export, import)",
	Long: `Entities inspects and maintains the registry of canonical authors,
affiliations, and journals. Use subcommands to list entities, merge
duplicates discovered after the fact, export the registry for review, or
import a registry file from the legacy JSON format.`,
}

// --- list subcommand ---

var entitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List canonical entities and their variant counts",
	RunE:  runEntitiesList,
}

func runEntitiesList(cmd *cobra.Command, args []string) error {
	st, err := store.NewStore(storeConfig(cmd))
	if err != nil {
		return err
	}
	defer st.Close()

	entityTypes := []types.EntityType{types.EntityAuthor, types.EntityAffiliation, types.EntityJournal}
	if typeName, _ := cmd.Flags().GetString("type"); typeName != "" {
		et := types.EntityType(typeName)
		if !et.Valid() {
			return fmt.Errorf("unknown entity type %q: use author, affiliation, or journal", typeName)
		}
		entityTypes = []types.EntityType{et}
	}

	var entities []*types.CanonicalEntity
	for _, et := range entityTypes {
		batch, err := st.EntitiesByType(context.Background(), et)
		if err != nil {
			return err
		}
		entities = append(entities, batch...)
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entities)
	}

	if len(entities) == 0 {
		fmt.Println("No entities in the registry.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-12s  %-40s  %s\n", "ID", "Type", "Canonical Name", "Variants")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for _, e := range entities {
		name := e.CanonicalName
		if len(name) > 40 {
			name = name[:37] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-36s  %-12s  %-40s  %d\n", e.ID, e.Type, name, len(e.Variants))
	}
	fmt.Fprintf(os.Stdout, "\n%d entities\n", len(entities))
	return nil
}

// --- merge subcommand ---

var entitiesMergeCmd = &cobra.Command{
	Use:   "merge [primary-id] [duplicate-id]",
	Short: "Merge a duplicate entity into a primary one",
	Long: `Merge moves every variant of the duplicate entity onto the primary one
and deletes the duplicate. Both entities must be the same type. Later
occurrences of any variant resolve to the primary entity.`,
	Args: cobra.ExactArgs(2),
	RunE: runEntitiesMerge,
}

func runEntitiesMerge(cmd *cobra.Command, args []string) error {
	st, err := store.NewStore(storeConfig(cmd))
	if err != nil {
		return err
	}
	defer st.Close()

	merged, err := st.Merge(context.Background(), args[0], args[1])
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "merged into %s (%d variants)\n", merged.CanonicalName, len(merged.Variants))
	return nil
}

// --- export subcommand ---

var entitiesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the registry to YAML or JSON",
	RunE:  runEntitiesExport,
}

func runEntitiesExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	cfg := storeConfig(cmd)
	st, err := store.NewStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	switch format {
	case "yaml", "":
		if err := st.ExportYAML(context.Background()); err != nil {
			return err
		}
		fmt.Println("Exported to", filepath.Join(cfg.DataDir, "export.yaml"))
	case "json":
		if err := st.ExportJSON(context.Background()); err != nil {
			return err
		}
		fmt.Println("Exported to", filepath.Join(cfg.DataDir, "export.json"))
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	return nil
}

// --- import subcommand ---

var entitiesImportCmd = &cobra.Command{
	Use:   "import [registry.json]",
	Short: "Import entities from a legacy JSON registry file",
	Long: `Import reads a registry file in the legacy JSON format (a list of
entries, each with a type, standard name, and variant list) and adds its
entities to the store. Entities whose canonical name is already registered
are skipped, so importing the same file twice is safe.`,
	Args: cobra.ExactArgs(1),
	RunE: runEntitiesImport,
}

func runEntitiesImport(cmd *cobra.Command, args []string) error {
	st, err := store.NewStore(storeConfig(cmd))
	if err != nil {
		return err
	}
	defer st.Close()

	summary, err := st.ImportLegacyJSON(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "imported %d entities, skipped %d\n", summary.Imported, summary.Skipped)
	return nil
}

func init() {
	entitiesListCmd.Flags().String("type", "", "filter by entity type: author, affiliation, journal")
	entitiesListCmd.Flags().Bool("json", false, "output entities as JSON")

	entitiesExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	entitiesCmd.AddCommand(entitiesListCmd)
	entitiesCmd.AddCommand(entitiesMergeCmd)
	entitiesCmd.AddCommand(entitiesExportCmd)
	entitiesCmd.AddCommand(entitiesImportCmd)

	rootCmd.AddCommand(entitiesCmd)
}
