// Package providertest provides testify mocks and small fakes of the
// provider interfaces for use in tests.
package providertest

import (
	"context"
	"io"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

// ChatModel is a testify mock of provider.ChatModel.
type ChatModel struct {
	mock.Mock
}

func (m *ChatModel) Name() string { return "mock" }

func (m *ChatModel) Chat(ctx context.Context, req provider.ChatRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *ChatModel) ChatStream(ctx context.Context, req provider.ChatRequest) (provider.ChatStream, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(provider.ChatStream)
	return s, args.Error(1)
}

func (m *ChatModel) Models(ctx context.Context) ([]provider.ModelInfo, error) {
	args := m.Called(ctx)
	models, _ := args.Get(0).([]provider.ModelInfo)
	return models, args.Error(1)
}

func (m *ChatModel) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *ChatModel) Close() error { return nil }

// VectorStore is a testify mock of provider.VectorStore.
type VectorStore struct {
	mock.Mock
}

func (m *VectorStore) Name() string { return "mock" }

func (m *VectorStore) Query(ctx context.Context, collection, text string, n int) ([]types.Document, error) {
	args := m.Called(ctx, collection, text, n)
	docs, _ := args.Get(0).([]types.Document)
	return docs, args.Error(1)
}

func (m *VectorStore) Add(ctx context.Context, collection string, docs []types.Document) error {
	return m.Called(ctx, collection, docs).Error(0)
}

func (m *VectorStore) ListCollections(ctx context.Context) ([]types.Collection, error) {
	args := m.Called(ctx)
	cols, _ := args.Get(0).([]types.Collection)
	return cols, args.Error(1)
}

func (m *VectorStore) CreateCollection(ctx context.Context, name string) (*types.Collection, error) {
	args := m.Called(ctx, name)
	col, _ := args.Get(0).(*types.Collection)
	return col, args.Error(1)
}

func (m *VectorStore) GetOrCreateCollection(ctx context.Context, name string) (*types.Collection, error) {
	args := m.Called(ctx, name)
	col, _ := args.Get(0).(*types.Collection)
	return col, args.Error(1)
}

func (m *VectorStore) DeleteCollection(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *VectorStore) Heartbeat(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *VectorStore) Close() error { return nil }

// Reranker is a testify mock of provider.Reranker.
type Reranker struct {
	mock.Mock
}

func (m *Reranker) Name() string { return "mock" }

func (m *Reranker) Rerank(ctx context.Context, query string, candidates []types.Document) types.RerankOutcome {
	return m.Called(ctx, query, candidates).Get(0).(types.RerankOutcome)
}

func (m *Reranker) Close() error { return nil }

// Embedder is a deterministic EmbeddingProvider. Each text maps to a vector
// derived from its bytes, so equal texts embed equally.
type Embedder struct {
	Dims int
	Err  error

	mu    sync.Mutex
	Calls [][]string
}

func (e *Embedder) Name() string { return "fake" }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.Calls = append(e.Calls, append([]string(nil), texts...))
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	dims := e.Dimensions()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, dims)
		for j := 0; j < len(t); j++ {
			v[int(t[j])%dims] += 1
		}
		v[0] += 0.001
		out[i] = v
	}
	return out, nil
}

func (e *Embedder) Dimensions() int {
	if e.Dims == 0 {
		return 8
	}
	return e.Dims
}

func (e *Embedder) Warmup(ctx context.Context) error { return nil }
func (e *Embedder) Close() error                     { return nil }

// TokenStream is a ChatStream that yields Tokens then Err (io.EOF when nil).
type TokenStream struct {
	Tokens []string
	Err    error
	Closed bool
}

func (s *TokenStream) Recv() (string, error) {
	if len(s.Tokens) > 0 {
		tok := s.Tokens[0]
		s.Tokens = s.Tokens[1:]
		return tok, nil
	}
	if s.Err != nil {
		return "", s.Err
	}
	return "", io.EOF
}

func (s *TokenStream) Close() error {
	s.Closed = true
	return nil
}

var (
	_ provider.ChatModel         = (*ChatModel)(nil)
	_ provider.VectorStore       = (*VectorStore)(nil)
	_ provider.Reranker          = (*Reranker)(nil)
	_ provider.EmbeddingProvider = (*Embedder)(nil)
	_ provider.ChatStream        = (*TokenStream)(nil)
)
