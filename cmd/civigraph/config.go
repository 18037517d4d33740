// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mrgiveh/civigraph/internal/match"
	"github.com/mrgiveh/civigraph/internal/normalize"
	"github.com/mrgiveh/civigraph/internal/openai"
	"github.com/mrgiveh/civigraph/internal/resolve"
	"github.com/mrgiveh/civigraph/internal/store"
	"github.com/mrgiveh/civigraph/pkg/types"
)

// stringSetting resolves a string config value: an explicitly set flag wins,
// then the config file / environment, then the flag's default.
func stringSetting(cmd *cobra.Command, flag, viperKey string) string {
	if cmd.Flags().Changed(flag) {
		v, _ := cmd.Flags().GetString(flag)
		return v
	}
	if viper.IsSet(viperKey) {
		return viper.GetString(viperKey)
	}
	v, _ := cmd.Flags().GetString(flag)
	return v
}

func floatSetting(cmd *cobra.Command, flag, viperKey string) float64 {
	if cmd.Flags().Changed(flag) {
		v, _ := cmd.Flags().GetFloat64(flag)
		return v
	}
	if viper.IsSet(viperKey) {
		return viper.GetFloat64(viperKey)
	}
	v, _ := cmd.Flags().GetFloat64(flag)
	return v
}

func intSetting(cmd *cobra.Command, flag, viperKey string) int {
	if cmd.Flags().Changed(flag) {
		v, _ := cmd.Flags().GetInt(flag)
		return v
	}
	if viper.IsSet(viperKey) {
		return viper.GetInt(viperKey)
	}
	v, _ := cmd.Flags().GetInt(flag)
	return v
}

// storeConfig builds the registry configuration from the persistent
// data-dir flag and the config file.
func storeConfig(cmd *cobra.Command) types.StoreConfig {
	dataDir := stringSetting(cmd, "data-dir", "store.data_dir")
	if dataDir == "" {
		dataDir = "data"
	}
	return types.StoreConfig{DataDir: dataDir}
}

// aiConfig builds the OpenAI capability configuration. The API key comes
// from the flag, .secrets/openai-api-key, or the config file, in that
// order.
func aiConfig(cmd *cobra.Command) types.AIConfig {
	apiKey, _ := cmd.Flags().GetString("api-key")
	apiKey = secretDefault("openai-api-key", apiKey)
	if apiKey == "" {
		apiKey = viper.GetString("ai.api_key")
	}

	return types.AIConfig{
		Model:          stringSetting(cmd, "model", "ai.model"),
		EmbeddingModel: stringSetting(cmd, "embedding-model", "ai.embedding_model"),
		APIKey:         apiKey,
		MaxRetries:     viper.GetInt("ai.max_retries"),
		EmbedBatchSize: viper.GetInt("ai.embed_batch_size"),
	}
}

func resolveConfig(cmd *cobra.Command) types.ResolveConfig {
	mode := types.ModeAutomatic
	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		mode = types.ModeInteractive
	}

	return types.ResolveConfig{
		AutoThreshold:   floatSetting(cmd, "auto-threshold", "resolve.auto_threshold"),
		ReviewThreshold: floatSetting(cmd, "review-threshold", "resolve.review_threshold"),
		TopK:            intSetting(cmd, "top-k", "resolve.top_k"),
		Mode:            mode,
	}
}

func graphConfig(cmd *cobra.Command) types.GraphConfig {
	password, _ := cmd.Flags().GetString("neo4j-password")
	password = secretDefault("neo4j-password", password)

	username := stringSetting(cmd, "neo4j-user", "graph.username")
	username = secretDefault("neo4j-username", username)

	return types.GraphConfig{
		URI:      stringSetting(cmd, "neo4j-uri", "graph.uri"),
		Username: username,
		Password: password,
		Database: stringSetting(cmd, "neo4j-database", "graph.database"),
		Timeout:  viper.GetDuration("graph.timeout"),
	}
}

// buildResolver opens the registry and wires the matcher, normalizer, and
// resolver on top of it. The caller owns closing the returned store.
func buildResolver(cmd *cobra.Command, confirmer resolve.Confirmer) (*store.Store, *resolve.Resolver, error) {
	st, err := store.NewStore(storeConfig(cmd))
	if err != nil {
		return nil, nil, err
	}

	ai := aiConfig(cmd)
	client := openai.New(ai)
	matcher := match.New(st, client, ai.EmbedBatchSize)
	normalizer := normalize.New(client)

	resolver := resolve.New(st, matcher, normalizer, confirmer, resolveConfig(cmd))
	return st, resolver, nil
}
