package provider

import (
	"context"

	"github.com/spetr/ragchat/pkg/types"
)

// Reranker re-orders retrieved documents by relevance to a query.
type Reranker interface {
	// Name returns the reranker name (e.g., "llm", "none").
	Name() string

	// Rerank never fails the caller. When ranking is not possible the
	// outcome carries RerankFailed, the cause, and the original candidates.
	Rerank(ctx context.Context, query string, candidates []types.Document) types.RerankOutcome

	// Close releases any resources.
	Close() error
}

// RerankerConfig contains configuration for reranker providers.
type RerankerConfig struct {
	Provider string // "llm", "none", "plugin:<name>"
	Model    string // Ranking model; empty means the chat model of the request
	Fallback int    // Candidates kept when the model ranks nothing
}

type modelKey struct{}

// WithModel attaches the chat model of the current request to ctx.
// Rerankers without a configured model rank with it.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, modelKey{}, model)
}

// ModelFromContext returns the model set by WithModel, or "".
func ModelFromContext(ctx context.Context) string {
	m, _ := ctx.Value(modelKey{}).(string)
	return m
}
