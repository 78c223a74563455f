// Package none implements a no-op Reranker that passes through results unchanged.
package none

import (
	"context"

	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

// Reranker is a passthrough reranker.
type Reranker struct{}

// New creates a new no-op reranker.
func New() *Reranker {
	return &Reranker{}
}

// Name returns the reranker name.
func (r *Reranker) Name() string {
	return "none"
}

// Rerank returns candidates in their original order.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []types.Document) types.RerankOutcome {
	return types.RerankOutcome{Documents: candidates, Status: types.RerankSkipped}
}

// Close does nothing.
func (r *Reranker) Close() error {
	return nil
}

// Ensure Reranker implements the Reranker interface
var _ provider.Reranker = (*Reranker)(nil)
