// Package provider defines interfaces for pluggable components.
package provider

import (
	"context"
)

// EmbeddingProvider generates vector embeddings from text.
type EmbeddingProvider interface {
	// Name returns the provider name (e.g., "ollama", "openai").
	Name() string

	// Embed generates embeddings for the given texts.
	// Returns one embedding per input text, in input order. A failure on any
	// text fails the whole call; no partial result is returned.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension size, or 0 when not yet known.
	Dimensions() int

	// Warmup pre-loads the model (optional, for Ollama).
	Warmup(ctx context.Context) error

	// Close releases any resources.
	Close() error
}

// EmbeddingConfig contains configuration for embedding providers.
type EmbeddingConfig struct {
	Provider string // "ollama", "openai", "plugin:<name>"
	Model    string // Model name
	Endpoint string // API endpoint
	APIKey   string // API key (for OpenAI-compatible endpoints)
}
