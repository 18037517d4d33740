package types

import "time"

// HTTPConfig holds shared HTTP settings for stages that call external APIs.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "civigraph/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// AIConfig holds shared settings for the OpenAI-backed capabilities.
// Per prd004-capabilities R1.2, R2.2.
type AIConfig struct {
	HTTPConfig `yaml:",inline"`

	// Model is the text-generation model used by the name normalizer
	// (default "gpt-4o").
	Model string `json:"model" yaml:"model"`

	// EmbeddingModel is the embedding model used by the similarity matcher
	// (default "text-embedding-3-small").
	EmbeddingModel string `json:"embedding_model" yaml:"embedding_model"`

	// APIKey is the authentication key. Usually supplied through
	// .secrets/openai-api-key rather than the config file.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for rate-limited or
	// overloaded API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// EmbedBatchSize caps the number of texts per embedding request
	// (default 64).
	EmbedBatchSize int `json:"embed_batch_size" yaml:"embed_batch_size"`
}

// StoreConfig holds settings for the canonical entity store.
// Per prd001-entity-store R1.5.
type StoreConfig struct {
	// DataDir is the directory holding the registry database
	// (DataDir/entities.db) and export files.
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// ResolveMode selects how the resolver handles the ambiguous score band.
// Per prd002-resolution R2.3-R2.4.
type ResolveMode string

const (
	// ModeAutomatic decides every candidate with the auto threshold alone;
	// nothing is parked for confirmation.
	ModeAutomatic ResolveMode = "automatic"

	// ModeInteractive hands ambiguous candidates to the confirmation
	// capability, or parks them when none is attached.
	ModeInteractive ResolveMode = "interactive"
)

// ResolveConfig holds the match-decision policy parameters.
// Per prd002-resolution R2.1-R2.4.
type ResolveConfig struct {
	// AutoThreshold is the cosine-similarity cutoff for automatic
	// acceptance (default 0.85). A score equal to the threshold is
	// accepted.
	AutoThreshold float64 `json:"auto_threshold" yaml:"auto_threshold"`

	// ReviewThreshold is the lower bound of the ask-for-confirmation band
	// (default 0.60). Scores below it always create a new entity.
	ReviewThreshold float64 `json:"review_threshold" yaml:"review_threshold"`

	// TopK is the number of candidates shown to the confirmation
	// capability (default 5).
	TopK int `json:"top_k" yaml:"top_k"`

	// Mode is "automatic" or "interactive" (default automatic).
	Mode ResolveMode `json:"mode" yaml:"mode"`
}

// GraphConfig holds settings for the Neo4j graph sink.
// Per prd003-graph R3.1-R3.2.
type GraphConfig struct {
	// URI is the bolt endpoint (e.g. "bolt://localhost:7687"). When empty
	// the ingest command runs against the in-memory sink only.
	URI string `json:"uri" yaml:"uri"`

	// Username is the database user (default "neo4j").
	Username string `json:"username" yaml:"username"`

	// Password is usually supplied through .secrets/neo4j-password.
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// Database is the target database name. Empty selects the server
	// default.
	Database string `json:"database" yaml:"database"`

	// Timeout bounds connection establishment and connectivity checks
	// (default 10s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	AI      AIConfig      `json:"ai" yaml:"ai"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Resolve ResolveConfig `json:"resolve" yaml:"resolve"`
	Graph   GraphConfig   `json:"graph" yaml:"graph"`
}
