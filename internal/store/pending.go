// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mrgiveh/civigraph/internal/normalize"
	"github.com/mrgiveh/civigraph/pkg/types"
)

// AddPending parks a suspended resolution in the queue (prd002-resolution
// R3.1). A name already parked and unanswered does not park again: the
// queue is keyed by (type, norm_key) like the variant index, and
// recurrences return the existing entry (R3.5). The returned decision
// carries the assigned id.
func (s *Store) AddPending(ctx context.Context, d types.PendingDecision) (types.PendingDecision, error) {
	key := normalize.Clean(d.Raw)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.PendingDecision{}, fmt.Errorf("parking decision for %q: %w", d.Raw, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, type, raw, candidate_name, record_url, candidates, created_at
		 FROM pending_decisions WHERE type = ? AND norm_key = ?`,
		string(d.Type), key,
	)
	existing, err := scanPending(row)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.PendingDecision{}, fmt.Errorf("parking decision for %q: %w", d.Raw, err)
	}

	d.ID = uuid.NewString()
	d.CreatedAt = time.Now().UTC()

	candidates, err := json.Marshal(d.Candidates)
	if err != nil {
		return types.PendingDecision{}, fmt.Errorf("parking decision for %q: %w", d.Raw, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pending_decisions (id, type, norm_key, raw, candidate_name, record_url, candidates, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, string(d.Type), key, d.Raw, d.CandidateName, d.RecordURL,
		string(candidates), d.CreatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return types.PendingDecision{}, fmt.Errorf("parking decision for %q: %w", d.Raw, err)
	}
	if err := tx.Commit(); err != nil {
		return types.PendingDecision{}, fmt.Errorf("parking decision for %q: %w", d.Raw, err)
	}
	return d, nil
}

// GetPending loads one parked decision by id.
func (s *Store) GetPending(ctx context.Context, id string) (types.PendingDecision, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, raw, candidate_name, record_url, candidates, created_at
		 FROM pending_decisions WHERE id = ?`, id,
	)
	d, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.PendingDecision{}, fmt.Errorf("pending decision %s not found", id)
	}
	if err != nil {
		return types.PendingDecision{}, fmt.Errorf("loading pending decision %s: %w", id, err)
	}
	return d, nil
}

// ListPending returns all parked decisions, oldest first (R3.2).
func (s *Store) ListPending(ctx context.Context) ([]types.PendingDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, raw, candidate_name, record_url, candidates, created_at
		 FROM pending_decisions ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending decisions: %w", err)
	}
	defer rows.Close()

	var decisions []types.PendingDecision
	for rows.Next() {
		d, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("listing pending decisions: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// RemovePending drops an answered decision from the queue (R3.3).
func (s *Store) RemovePending(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_decisions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("removing pending decision %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("pending decision %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPending(row rowScanner) (types.PendingDecision, error) {
	var d types.PendingDecision
	var candidates, createdAt string
	if err := row.Scan(&d.ID, &d.Type, &d.Raw, &d.CandidateName, &d.RecordURL, &candidates, &createdAt); err != nil {
		return types.PendingDecision{}, err
	}
	if err := json.Unmarshal([]byte(candidates), &d.Candidates); err != nil {
		return types.PendingDecision{}, fmt.Errorf("decoding candidates: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		d.CreatedAt = t
	}
	return d, nil
}
