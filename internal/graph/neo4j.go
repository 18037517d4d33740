// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/mrgiveh/civigraph/pkg/types"
)

// mergeProps maps each node label to the property its MERGE key lands in.
// Papers merge on their identity key; everything else merges on name, which
// is safe because names are canonical by the time ops reach a sink.
var mergeProps = map[string]string{
	types.LabelAuthor:      "name",
	types.LabelPaper:       "key",
	types.LabelAffiliation: "name",
	types.LabelJournal:     "name",
}

// Neo4jSink applies graph operations to a Neo4j database through the
// official driver. One Apply call runs inside one managed write
// transaction, so a record's ops land atomically (R3.2).
type Neo4jSink struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jSink connects to cfg.URI, verifies connectivity, and ensures the
// uniqueness constraints the MERGE keys rely on (R3.1).
func NewNeo4jSink(ctx context.Context, cfg types.GraphConfig) (*Neo4jSink, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	username := cfg.Username
	if username == "" {
		username = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(username, cfg.Password, ""), func(c *neo4j.Config) {
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("initializing Neo4j driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verifying Neo4j connectivity to %s: %w", cfg.URI, err)
	}

	s := &Neo4jSink{driver: driver, database: cfg.Database}
	if err := s.ensureConstraints(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return s, nil
}

// Close releases the driver.
func (s *Neo4jSink) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jSink) ensureConstraints(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	for label, prop := range mergeProps {
		stmt := fmt.Sprintf(
			"CREATE CONSTRAINT IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE", label, prop)
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("creating %s constraint: %w", label, err)
		}
	}
	return nil
}

// Apply runs every op in one write transaction.
func (s *Neo4jSink) Apply(ctx context.Context, ops []types.GraphOp) error {
	if len(ops) == 0 {
		return nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, op := range ops {
			if err := applyOp(ctx, tx, op); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("applying %d graph ops: %w", len(ops), err)
	}
	return nil
}

func applyOp(ctx context.Context, tx neo4j.ManagedTransaction, op types.GraphOp) error {
	switch op.Kind {
	case types.OpUpsertNode:
		prop, ok := mergeProps[op.Node.Label]
		if !ok {
			return fmt.Errorf("upsert node: unknown label %q", op.Node.Label)
		}
		// Labels and property names are interpolated from the fixed
		// tables above, never from input; values travel as parameters.
		stmt := fmt.Sprintf("MERGE (n:%s {%s: $key}) SET n += $attrs", op.Node.Label, prop)
		attrs := op.Attributes
		if attrs == nil {
			attrs = map[string]any{}
		}
		if _, err := tx.Run(ctx, stmt, map[string]any{"key": op.Node.Key, "attrs": attrs}); err != nil {
			return fmt.Errorf("upserting %s %q: %w", op.Node.Label, op.Node.Key, err)
		}
		return nil

	case types.OpUpsertEdge:
		fromProp, okFrom := mergeProps[op.From.Label]
		toProp, okTo := mergeProps[op.To.Label]
		if !okFrom || !okTo {
			return fmt.Errorf("upsert edge %s: unknown label %q or %q", op.EdgeType, op.From.Label, op.To.Label)
		}

		// COAUTHORED merges without direction so the same unordered pair
		// never yields a second relationship.
		arrow := "->"
		if op.EdgeType == types.EdgeCoauthored {
			arrow = "-"
		}
		stmt := fmt.Sprintf(
			"MATCH (a:%s {%s: $from}) MATCH (b:%s {%s: $to}) MERGE (a)-[:%s]%s(b)",
			op.From.Label, fromProp, op.To.Label, toProp, op.EdgeType, arrow)
		if _, err := tx.Run(ctx, stmt, map[string]any{"from": op.From.Key, "to": op.To.Key}); err != nil {
			return fmt.Errorf("upserting %s %q->%q: %w", op.EdgeType, op.From.Key, op.To.Key, err)
		}
		return nil

	default:
		return fmt.Errorf("applying op: unknown kind %q", op.Kind)
	}
}
