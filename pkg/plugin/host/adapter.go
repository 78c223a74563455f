package host

import (
	"context"
	"fmt"

	"github.com/spetr/ragchat/pkg/plugin/shared"
	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

// EmbeddingAdapter adapts a plugin EmbeddingProvider to provider.EmbeddingProvider.
type EmbeddingAdapter struct {
	plugin shared.EmbeddingProvider
}

// NewEmbeddingAdapter creates a new embedding adapter.
func NewEmbeddingAdapter(p shared.EmbeddingProvider) *EmbeddingAdapter {
	return &EmbeddingAdapter{plugin: p}
}

func (a *EmbeddingAdapter) Name() string {
	return "plugin:" + a.plugin.Name()
}

// Embed fails with types.ErrEmbeddingBackend when the plugin does.
func (a *EmbeddingAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vecs, err := a.plugin.Embed(texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrEmbeddingBackend, a.Name(), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d embeddings for %d texts",
			types.ErrEmbeddingBackend, a.Name(), len(vecs), len(texts))
	}
	return vecs, nil
}

func (a *EmbeddingAdapter) Dimensions() int {
	return a.plugin.Dimensions()
}

func (a *EmbeddingAdapter) Warmup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.plugin.Warmup()
}

// Close is a no-op; the plugin process belongs to the Manager.
func (a *EmbeddingAdapter) Close() error {
	return nil
}

var _ provider.EmbeddingProvider = (*EmbeddingAdapter)(nil)

// RerankerAdapter adapts a plugin RerankerProvider to provider.Reranker.
type RerankerAdapter struct {
	plugin   shared.RerankerProvider
	fallback int
}

// NewRerankerAdapter creates a new reranker adapter. fallback is the number
// of candidates kept when the plugin ranks nothing usable.
func NewRerankerAdapter(p shared.RerankerProvider, fallback int) *RerankerAdapter {
	return &RerankerAdapter{plugin: p, fallback: fallback}
}

func (a *RerankerAdapter) Name() string {
	return "plugin:" + a.plugin.Name()
}

// Rerank sends id/text pairs to the plugin and resolves the ids it returns.
func (a *RerankerAdapter) Rerank(ctx context.Context, query string, candidates []types.Document) types.RerankOutcome {
	if len(candidates) == 0 {
		return types.RerankOutcome{Documents: candidates, Status: types.RerankSkipped}
	}
	if err := ctx.Err(); err != nil {
		return types.RerankOutcome{Documents: candidates, Status: types.RerankFailed, Err: err}
	}

	in := make([]shared.Candidate, len(candidates))
	for i, d := range candidates {
		in[i] = shared.Candidate{ID: d.ID, Text: d.Text}
	}
	ids, err := a.plugin.Rerank(query, in)
	if err != nil {
		return types.RerankOutcome{
			Documents: candidates,
			Status:    types.RerankFailed,
			Err:       fmt.Errorf("%s: %w", a.Name(), err),
		}
	}
	return types.ApplyRanking(candidates, ids, a.fallback)
}

// Close is a no-op; the plugin process belongs to the Manager.
func (a *RerankerAdapter) Close() error {
	return nil
}

var _ provider.Reranker = (*RerankerAdapter)(nil)
