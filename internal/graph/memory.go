// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package graph applies emitted graph operations to a persistence backend:
// Neo4j for real runs, an in-memory sink for tests and dry runs.
// Implements: prd003-graph (R3); docs/ARCHITECTURE.md § Graph Sinks.
package graph

import (
	"context"
	"fmt"

	"github.com/mrgiveh/civigraph/pkg/types"
)

type edgeKey struct {
	edgeType string
	from     types.NodeRef
	to       types.NodeRef
}

// MemorySink accumulates graph state in maps. Upserts are naturally
// idempotent: a node is keyed by (label, key), an edge by (type, from, to),
// with COAUTHORED keyed direction-insensitively. Dry runs and tests read
// the counts back out.
type MemorySink struct {
	nodes map[types.NodeRef]map[string]any
	edges map[edgeKey]bool
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		nodes: make(map[types.NodeRef]map[string]any),
		edges: make(map[edgeKey]bool),
	}
}

// Apply upserts every op into the in-memory graph.
func (s *MemorySink) Apply(_ context.Context, ops []types.GraphOp) error {
	for _, op := range ops {
		switch op.Kind {
		case types.OpUpsertNode:
			attrs := s.nodes[op.Node]
			if attrs == nil {
				attrs = make(map[string]any)
				s.nodes[op.Node] = attrs
			}
			for k, v := range op.Attributes {
				attrs[k] = v
			}
		case types.OpUpsertEdge:
			from, to := op.From, op.To
			if op.EdgeType == types.EdgeCoauthored && canonicalBefore(to, from) {
				from, to = to, from
			}
			s.edges[edgeKey{edgeType: op.EdgeType, from: from, to: to}] = true
		default:
			return fmt.Errorf("applying op: unknown kind %q", op.Kind)
		}
	}
	return nil
}

func canonicalBefore(a, b types.NodeRef) bool {
	if a.Label != b.Label {
		return a.Label < b.Label
	}
	return a.Key < b.Key
}

// Node returns the attributes of one node and whether it exists.
func (s *MemorySink) Node(label, key string) (map[string]any, bool) {
	attrs, ok := s.nodes[types.NodeRef{Label: label, Key: key}]
	return attrs, ok
}

// NodeCount returns the number of nodes with the given label; empty label
// counts all nodes.
func (s *MemorySink) NodeCount(label string) int {
	if label == "" {
		return len(s.nodes)
	}
	n := 0
	for ref := range s.nodes {
		if ref.Label == label {
			n++
		}
	}
	return n
}

// EdgeCount returns the number of edges of the given type; empty type
// counts all edges.
func (s *MemorySink) EdgeCount(edgeType string) int {
	if edgeType == "" {
		return len(s.edges)
	}
	n := 0
	for key := range s.edges {
		if key.edgeType == edgeType {
			n++
		}
	}
	return n
}

// HasEdge reports whether an edge exists. COAUTHORED is checked without
// regard to direction.
func (s *MemorySink) HasEdge(edgeType string, from, to types.NodeRef) bool {
	if edgeType == types.EdgeCoauthored && canonicalBefore(to, from) {
		from, to = to, from
	}
	return s.edges[edgeKey{edgeType: edgeType, from: from, to: to}]
}
