// Package ai wraps the external text-generation and embedding capabilities.
// Both are consumed at the interface boundary: given a prompt, return a
// completion; given text, return a vector. Retry and timeout policy lives
// with the callers, not here.
package ai

import (
	"context"
	"errors"
)

// TextGenerator produces one completion for one prompt.
// Implementations must be safe for concurrent use.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Embedder generates dense vector embeddings from text.
// Implementations must be safe for concurrent use.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds connection settings for OpenAI-compatible services.
type Config struct {
	// Host is the base URL of the OpenAI-compatible API.
	Host string

	// APIKey authenticates against the service. Local services that skip
	// auth still need a non-empty token.
	APIKey string

	// ChatModel is the completion model identifier.
	ChatModel string

	// EmbeddingModel is the embedding model identifier.
	EmbeddingModel string

	// EmbeddingDimensions is the requested embedding width. Must match the
	// vector collection schema.
	EmbeddingDimensions int

	// Temperature for completions. The pipeline wants near-deterministic
	// output.
	Temperature float64
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("ai config: Host is required")
	}
	if c.APIKey == "" {
		return errors.New("ai config: APIKey is required")
	}
	if c.ChatModel == "" {
		return errors.New("ai config: ChatModel is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.EmbeddingDimensions <= 0 {
		return errors.New("ai config: EmbeddingDimensions must be > 0")
	}
	return nil
}
