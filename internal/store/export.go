// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/mrgiveh/civigraph/pkg/types"
)

// ExportEntry is one registry entity in the stable on-disk export schema
// (R5.1). Embeddings are deliberately excluded: they are a cache, not part
// of the registry's identity data.
type ExportEntry struct {
	Type          string   `json:"type" yaml:"type"`
	CanonicalName string   `json:"canonical_name" yaml:"canonical_name"`
	Variants      []string `json:"variants" yaml:"variants"`
}

// ExportYAML writes the full registry to DataDir/export.yaml as a mapping
// from entity id to entry (R5.2).
func (s *Store) ExportYAML(ctx context.Context) error {
	entries, err := s.exportEntries(ctx)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling registry export: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dataDir, "export.yaml"), data, 0o644)
}

// ExportJSON writes the full registry to DataDir/export.json (R5.2).
func (s *Store) ExportJSON(ctx context.Context) error {
	entries, err := s.exportEntries(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling registry export: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dataDir, "export.json"), data, 0o644)
}

func (s *Store) exportEntries(ctx context.Context) (map[string]ExportEntry, error) {
	entries := make(map[string]ExportEntry)
	for _, t := range []types.EntityType{types.EntityAuthor, types.EntityAffiliation, types.EntityJournal} {
		entities, err := s.EntitiesByType(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("exporting registry: %w", err)
		}
		for _, e := range entities {
			entries[e.ID] = ExportEntry{
				Type:          string(e.Type),
				CanonicalName: e.CanonicalName,
				Variants:      e.Variants,
			}
		}
	}
	return entries, nil
}

// legacyEntity matches the schema of the flat standard_entities.json file
// the registry replaces: a list of entries with a standard name and
// variants.
type legacyEntity struct {
	Type         string   `json:"type"`
	StandardName string   `json:"standard_name"`
	Variants     []string `json:"variants"`
}

// ImportSummary holds counts from a legacy registry import (R5.3).
type ImportSummary struct {
	Imported int
	Skipped  int
}

// ImportLegacyJSON reads a standard_entities.json file and creates one
// canonical entity per entry. Entries whose standard name or variants
// already resolve to an existing entity are skipped rather than duplicated,
// so the import is safe to re-run.
func (s *Store) ImportLegacyJSON(ctx context.Context, path string) (ImportSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("reading legacy registry %s: %w", path, err)
	}

	var legacy []legacyEntity
	if err := json.Unmarshal(data, &legacy); err != nil {
		return ImportSummary{}, fmt.Errorf("parsing legacy registry %s: %w", path, err)
	}

	var summary ImportSummary
	for _, le := range legacy {
		entityType := types.EntityType(le.Type)
		if !entityType.Valid() || le.StandardName == "" {
			summary.Skipped++
			continue
		}

		existing, err := s.Lookup(ctx, le.StandardName, entityType)
		if err != nil {
			return summary, err
		}
		if existing != nil {
			summary.Skipped++
			continue
		}

		e, err := s.Create(ctx, le.StandardName, le.StandardName, entityType)
		if err != nil {
			return summary, fmt.Errorf("importing %q: %w", le.StandardName, err)
		}
		for _, v := range le.Variants {
			if err := s.AddVariant(ctx, e.ID, v); err != nil {
				// A variant owned elsewhere is a registry conflict the
				// operator has to merge by hand; keep importing.
				var dup *types.DuplicateVariantError
				if errors.As(err, &dup) {
					continue
				}
				return summary, err
			}
		}
		summary.Imported++
	}
	return summary, nil
}
