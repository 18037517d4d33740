// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the civigraph CLI.
// Implements: prd001-entity-store, prd002-resolution, prd003-graph
// (CLI surface). See docs/ARCHITECTURE.md § Pipeline Interface.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mrgiveh/civigraph/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns fallback when set, otherwise the secret value for
// key, otherwise "".
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the civigraph CLI.
var rootCmd = &cobra.Command{
	Use:   "civigraph",
	Short: "Entity resolution and graph ingestion for scraped bibliographic records",
	Long: `civigraph maintains a registry of canonical entities (authors, affiliations,
journals) and ingests scraped bibliographic records into a citation graph.
Incoming name strings are resolved against the registry by embedding
similarity, so the many surface forms of one real-world entity converge on
a single graph node, and every graph write is an idempotent upsert, so
re-ingesting a batch never duplicates nodes or edges.

Each operation is a subcommand: ingest runs the full pipeline over a batch
of records, resolve handles a single name, entities manages the registry,
and pending answers parked match decisions.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./civigraph.yaml or ~/.config/civigraph/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for the entity registry database (default: data)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("civigraph")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "civigraph"))
		}
	}

	viper.SetEnvPrefix("CIVIGRAPH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
