// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Node labels emitted by the ingestion adapter. Per prd003-graph R1.1.
const (
	LabelAuthor      = "Author"
	LabelPaper       = "Paper"
	LabelAffiliation = "Affiliation"
	LabelJournal     = "Journal"
)

// Relationship types emitted by the ingestion adapter. Per prd003-graph R1.2.
const (
	EdgeWrote          = "WROTE"
	EdgeAffiliatedWith = "AFFILIATED_WITH"
	EdgePublishedAt    = "PUBLISHED_AT"
	EdgeCoauthored     = "COAUTHORED"
)

// GraphOpKind discriminates the two graph operation variants.
type GraphOpKind string

const (
	OpUpsertNode GraphOpKind = "upsert_node"
	OpUpsertEdge GraphOpKind = "upsert_edge"
)

// NodeRef identifies a node by label and merge key, independent of any
// backend-internal identifier.
type NodeRef struct {
	Label string `json:"label" yaml:"label"`

	// Key is the merge key value: canonical name for Author, Affiliation,
	// and Journal nodes; the paper identity key for Paper nodes.
	Key string `json:"key" yaml:"key"`
}

// GraphOp is one idempotent operation against the graph sink. Applying the
// same op twice produces no additional nodes or edges. Per prd003-graph
// R1.3, R2.1.
type GraphOp struct {
	Kind GraphOpKind `json:"kind" yaml:"kind"`

	// Node fields (Kind == OpUpsertNode).
	Node       NodeRef        `json:"node,omitempty" yaml:"node,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`

	// Edge fields (Kind == OpUpsertEdge). Undirected edge types
	// (COAUTHORED) carry their endpoints in a canonical order so the same
	// unordered pair always produces the same op.
	EdgeType string  `json:"edge_type,omitempty" yaml:"edge_type,omitempty"`
	From     NodeRef `json:"from,omitempty" yaml:"from,omitempty"`
	To       NodeRef `json:"to,omitempty" yaml:"to,omitempty"`
}

// UpsertNode builds a node upsert op.
func UpsertNode(label, key string, attrs map[string]any) GraphOp {
	return GraphOp{Kind: OpUpsertNode, Node: NodeRef{Label: label, Key: key}, Attributes: attrs}
}

// UpsertEdge builds an edge upsert op.
func UpsertEdge(edgeType string, from, to NodeRef) GraphOp {
	return GraphOp{Kind: OpUpsertEdge, EdgeType: edgeType, From: from, To: to}
}
