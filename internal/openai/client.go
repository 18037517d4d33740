// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package openai implements the two AI capabilities the resolver consumes:
// text generation for name normalization and embeddings for similarity
// scoring. Implements: prd004-capabilities (R1, R2);
// docs/ARCHITECTURE.md § Name Normalizer.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mrgiveh/civigraph/internal/httputil"
	"github.com/mrgiveh/civigraph/pkg/types"
)

// apiBase is the OpenAI API root. Declared as a var so tests can substitute
// an httptest server.
var apiBase = "https://api.openai.com/v1"

const (
	defaultTimeout   = 60 * time.Second
	defaultModel     = "gpt-4o"
	defaultEmbedding = "text-embedding-3-small"

	// chatTemperature is kept low so core-name extraction stays stable
	// across runs of the same input.
	chatTemperature = 0.2
)

// Client calls the OpenAI chat completion and embedding endpoints. Both
// methods report failure as *types.CapabilityUnavailableError so callers
// can degrade instead of aborting (R3.1).
type Client struct {
	client *http.Client
	cfg    types.AIConfig
}

// New returns a client configured from cfg. Zero-value fields fall back to
// the package defaults.
func New(cfg types.AIConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = defaultEmbedding
	}
	return &Client{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateText sends prompt as a single user message and returns the
// model's reply with surrounding whitespace trimmed (R1.1).
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	const capability = "generation"

	body := chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: chatTemperature,
	}

	var out chatResponse
	if err := c.post(ctx, capability, "/chat/completions", body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", &types.CapabilityUnavailableError{
			Capability: capability,
			Err:        fmt.Errorf("chat completion returned no choices"),
		}
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one embedding vector per input text, in input order. The
// response is reordered by the index field rather than trusting response
// order (R2.2).
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	const capability = "embedding"

	if len(texts) == 0 {
		return nil, nil
	}

	body := embeddingRequest{Model: c.cfg.EmbeddingModel, Input: texts}

	var out embeddingResponse
	if err := c.post(ctx, capability, "/embeddings", body, &out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, &types.CapabilityUnavailableError{
			Capability: capability,
			Err:        fmt.Errorf("embedding response has %d vectors for %d inputs", len(out.Data), len(texts)),
		}
	}

	vectors := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, &types.CapabilityUnavailableError{
				Capability: capability,
				Err:        fmt.Errorf("embedding response index %d out of range", d.Index),
			}
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// post sends one JSON request and decodes the JSON response. Every failure
// path wraps into CapabilityUnavailableError: missing key, transport
// errors, non-200 statuses after retries, and malformed bodies all mean the
// same thing to the caller, the capability cannot serve right now.
func (c *Client) post(ctx context.Context, capability, path string, body, out any) error {
	if c.cfg.APIKey == "" {
		return &types.CapabilityUnavailableError{
			Capability: capability,
			Err:        fmt.Errorf("no API key configured"),
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", capability, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBase+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", capability, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, c.client, req, c.cfg.MaxRetries)
	if err != nil {
		return &types.CapabilityUnavailableError{
			Capability: capability,
			Err:        fmt.Errorf("OpenAI API request: %w", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &types.CapabilityUnavailableError{
			Capability: capability,
			Err:        fmt.Errorf("OpenAI API returned HTTP %d", resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &types.CapabilityUnavailableError{
			Capability: capability,
			Err:        fmt.Errorf("parsing %s response: %w", capability, err),
		}
	}
	return nil
}
