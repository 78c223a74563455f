// Package openai implements EmbeddingProvider for OpenAI-compatible APIs.
package openai

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

// DefaultModel is used when no model is configured.
const DefaultModel = openai.SmallEmbedding3

// DefaultBatchSize caps inputs per request.
const DefaultBatchSize = 100

// Config contains OpenAI provider configuration.
type Config struct {
	Model     string
	APIKey    string // If empty, uses OPENAI_API_KEY env var
	BaseURL   string // Optional: OpenAI-compatible endpoint, e.g. http://localhost:8008/v1
	BatchSize int
}

// Provider implements the EmbeddingProvider interface for OpenAI.
type Provider struct {
	config     Config
	client     *openai.Client
	dimensions int
	mu         sync.RWMutex
}

// New creates a new OpenAI embedding provider.
func New(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = string(DefaultModel)
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Provider{
		config: cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Embed generates embeddings for the given texts.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))

	for i := 0; i < len(texts); i += p.config.BatchSize {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		end := min(i+p.config.BatchSize, len(texts))

		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[i:end],
			Model: openai.EmbeddingModel(p.config.Model),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: openai embedding failed: %w", types.ErrEmbeddingBackend, err)
		}
		if len(resp.Data) != end-i {
			return nil, fmt.Errorf("%w: expected %d embeddings, got %d", types.ErrEmbeddingBackend, end-i, len(resp.Data))
		}

		// The API may return items out of order; Index is authoritative.
		for j, data := range resp.Data {
			idx := j
			if data.Index >= 0 && data.Index < end-i {
				idx = data.Index
			}
			results[i+idx] = data.Embedding
		}

		p.mu.Lock()
		if p.dimensions == 0 && len(resp.Data) > 0 {
			p.dimensions = len(resp.Data[0].Embedding)
		}
		p.mu.Unlock()
	}

	return results, nil
}

// Dimensions returns the embedding dimensions.
func (p *Provider) Dimensions() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dimensions
}

// Warmup tests the API connection.
func (p *Provider) Warmup(ctx context.Context) error {
	_, err := p.Embed(ctx, []string{"test"})
	return err
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

// Ensure Provider implements EmbeddingProvider interface
var _ provider.EmbeddingProvider = (*Provider)(nil)
