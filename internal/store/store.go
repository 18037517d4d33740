// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists the canonical entity registry and its variant
// index. Implements: prd001-entity-store (R1-R5);
//
//	docs/ARCHITECTURE.md § Canonical Entity Store.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mrgiveh/civigraph/internal/normalize"
	"github.com/mrgiveh/civigraph/pkg/types"
)

const dbFile = "entities.db"

// Store manages the canonical entity registry SQLite database. Every
// read-modify-write sequence runs inside a single transaction, and the
// UNIQUE(type, norm_key) index on variants guarantees that a raw string
// resolves to at most one entity per type even when several pipeline
// processes share the database (R4.1, R4.2).
type Store struct {
	db      *sql.DB
	dataDir string
}

// NewStore opens or creates the registry database at cfg.DataDir/entities.db
// and creates the schema if it does not exist (R1.5).
func NewStore(cfg types.StoreConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening registry database: %w", err)
	}

	s := &Store{db: db, dataDir: cfg.DataDir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			canonical_name TEXT NOT NULL,
			embedding BLOB
		)`,
		`CREATE TABLE IF NOT EXISTS variants (
			type TEXT NOT NULL,
			norm_key TEXT NOT NULL,
			raw TEXT NOT NULL,
			entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
			PRIMARY KEY (type, norm_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_variants_entity ON variants(entity_id)`,
		`CREATE TABLE IF NOT EXISTS pending_decisions (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			norm_key TEXT NOT NULL,
			raw TEXT NOT NULL,
			candidate_name TEXT NOT NULL,
			record_url TEXT,
			candidates TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE (type, norm_key)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Lookup resolves a raw name against the variant index. The index key is the
// cleaned form of raw, so trivially different surface forms (case,
// punctuation) hit the same entry (R2.1). Returns (nil, nil) when the raw
// string is unknown.
func (s *Store) Lookup(ctx context.Context, raw string, entityType types.EntityType) (*types.CanonicalEntity, error) {
	var entityID string
	err := s.db.QueryRowContext(ctx,
		`SELECT entity_id FROM variants WHERE type = ? AND norm_key = ?`,
		string(entityType), normalize.Clean(raw),
	).Scan(&entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %q (%s): %w", raw, entityType, err)
	}
	return s.Get(ctx, entityID)
}

// Create registers a fresh canonical entity whose canonical name is
// canonicalName and whose first observed surface form is raw. It fails with
// DuplicateVariantError if either string already maps to an existing entity
// of the same type (R2.4). The check and the insert share one transaction.
func (s *Store) Create(ctx context.Context, raw, canonicalName string, entityType types.EntityType) (*types.CanonicalEntity, error) {
	if !entityType.Valid() {
		return nil, fmt.Errorf("create entity: invalid type %q", entityType)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create entity: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()

	// The canonical name is itself a variant (R1.3): index both strings,
	// deduplicated by norm key.
	keys := map[string]string{normalize.Clean(canonicalName): canonicalName}
	if k := normalize.Clean(raw); k != "" {
		if _, ok := keys[k]; !ok {
			keys[k] = raw
		}
	}

	for key := range keys {
		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT entity_id FROM variants WHERE type = ? AND norm_key = ?`,
			string(entityType), key,
		).Scan(&existing)
		if err == nil {
			return nil, &types.DuplicateVariantError{Raw: raw, Type: entityType, ExistingID: existing}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("create entity: checking variant %q: %w", key, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entities (id, type, canonical_name) VALUES (?, ?, ?)`,
		id, string(entityType), canonicalName,
	); err != nil {
		return nil, fmt.Errorf("create entity %s: %w", id, err)
	}

	for key, rawForm := range keys {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO variants (type, norm_key, raw, entity_id) VALUES (?, ?, ?, ?)`,
			string(entityType), key, rawForm, id,
		); err != nil {
			return nil, fmt.Errorf("create entity %s: inserting variant %q: %w", id, rawForm, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create entity %s: commit: %w", id, err)
	}
	return s.Get(ctx, id)
}

// AddVariant records raw as a surface form of an existing entity. Adding a
// variant the entity already has is a no-op; a variant owned by a different
// entity of the same type is a DuplicateVariantError (R2.2-R2.4).
func (s *Store) AddVariant(ctx context.Context, entityID, raw string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add variant to %s: beginning transaction: %w", entityID, err)
	}
	defer tx.Rollback()

	var entityType string
	err = tx.QueryRowContext(ctx,
		`SELECT type FROM entities WHERE id = ?`, entityID,
	).Scan(&entityType)
	if errors.Is(err, sql.ErrNoRows) {
		return &types.UnknownEntityError{ID: entityID, Op: "add variant"}
	}
	if err != nil {
		return fmt.Errorf("add variant to %s: %w", entityID, err)
	}

	key := normalize.Clean(raw)
	if key == "" {
		return nil
	}

	var owner string
	err = tx.QueryRowContext(ctx,
		`SELECT entity_id FROM variants WHERE type = ? AND norm_key = ?`,
		entityType, key,
	).Scan(&owner)
	switch {
	case err == nil && owner == entityID:
		return nil
	case err == nil:
		return &types.DuplicateVariantError{Raw: raw, Type: types.EntityType(entityType), ExistingID: owner}
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("add variant to %s: checking %q: %w", entityID, raw, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO variants (type, norm_key, raw, entity_id) VALUES (?, ?, ?, ?)`,
		entityType, key, raw, entityID,
	); err != nil {
		return fmt.Errorf("add variant %q to %s: %w", raw, entityID, err)
	}
	return tx.Commit()
}

// Merge moves every variant of duplicateID onto primaryID and retires the
// duplicate entity. Both entities must exist and share a type (R3.1-R3.3).
func (s *Store) Merge(ctx context.Context, primaryID, duplicateID string) (*types.CanonicalEntity, error) {
	if primaryID == duplicateID {
		return nil, fmt.Errorf("merge: primary and duplicate are the same entity %s", primaryID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("merge %s into %s: beginning transaction: %w", duplicateID, primaryID, err)
	}
	defer tx.Rollback()

	var primaryType, duplicateType string
	for _, probe := range []struct {
		id string
		t  *string
	}{{primaryID, &primaryType}, {duplicateID, &duplicateType}} {
		err := tx.QueryRowContext(ctx,
			`SELECT type FROM entities WHERE id = ?`, probe.id,
		).Scan(probe.t)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &types.UnknownEntityError{ID: probe.id, Op: "merge"}
		}
		if err != nil {
			return nil, fmt.Errorf("merge: loading entity %s: %w", probe.id, err)
		}
	}
	if primaryType != duplicateType {
		return nil, fmt.Errorf("merge: type mismatch: %s is %s, %s is %s",
			primaryID, primaryType, duplicateID, duplicateType)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE variants SET entity_id = ? WHERE entity_id = ?`,
		primaryID, duplicateID,
	); err != nil {
		return nil, fmt.Errorf("merge %s into %s: re-pointing variants: %w", duplicateID, primaryID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entities WHERE id = ?`, duplicateID,
	); err != nil {
		return nil, fmt.Errorf("merge: retiring entity %s: %w", duplicateID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("merge %s into %s: commit: %w", duplicateID, primaryID, err)
	}
	return s.Get(ctx, primaryID)
}

// Get loads one entity with its variants. Returns UnknownEntityError when
// the id is absent.
func (s *Store) Get(ctx context.Context, entityID string) (*types.CanonicalEntity, error) {
	e := &types.CanonicalEntity{ID: entityID}
	var embedding []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT seq, type, canonical_name, embedding FROM entities WHERE id = ?`, entityID,
	).Scan(&e.Seq, &e.Type, &e.CanonicalName, &embedding)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.UnknownEntityError{ID: entityID, Op: "get"}
	}
	if err != nil {
		return nil, fmt.Errorf("loading entity %s: %w", entityID, err)
	}
	e.Embedding = decodeVector(embedding)

	if e.Variants, err = s.variantsOf(ctx, entityID); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) variantsOf(ctx context.Context, entityID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT raw FROM variants WHERE entity_id = ? ORDER BY norm_key`, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading variants of %s: %w", entityID, err)
	}
	defer rows.Close()

	var variants []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("loading variants of %s: %w", entityID, err)
		}
		variants = append(variants, raw)
	}
	return variants, rows.Err()
}

// EntitiesByType returns all entities of one type in creation order. The
// matcher depends on this ordering for deterministic tie-breaks (R1.4).
func (s *Store) EntitiesByType(ctx context.Context, entityType types.EntityType) ([]*types.CanonicalEntity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, canonical_name, embedding FROM entities WHERE type = ? ORDER BY seq`,
		string(entityType),
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s entities: %w", entityType, err)
	}
	defer rows.Close()

	var entities []*types.CanonicalEntity
	for rows.Next() {
		e := &types.CanonicalEntity{Type: entityType}
		var embedding []byte
		if err := rows.Scan(&e.Seq, &e.ID, &e.CanonicalName, &embedding); err != nil {
			return nil, fmt.Errorf("listing %s entities: %w", entityType, err)
		}
		e.Embedding = decodeVector(embedding)
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing %s entities: %w", entityType, err)
	}

	for _, e := range entities {
		if e.Variants, err = s.variantsOf(ctx, e.ID); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// SetEmbedding caches the canonical-name embedding for an entity (R1.4).
func (s *Store) SetEmbedding(ctx context.Context, entityID string, vec []float32) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entities SET embedding = ? WHERE id = ?`,
		encodeVector(vec), entityID,
	)
	if err != nil {
		return fmt.Errorf("caching embedding for %s: %w", entityID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &types.UnknownEntityError{ID: entityID, Op: "set embedding"}
	}
	return nil
}

// encodeVector packs a float32 vector as little-endian bytes.
func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}
