package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/spetr/ragchat/internal/config"
	"github.com/spetr/ragchat/internal/index"
	"github.com/spetr/ragchat/internal/metrics"
	"github.com/spetr/ragchat/internal/rag"
	"github.com/spetr/ragchat/pkg/plugin/host"
	"github.com/spetr/ragchat/pkg/provider"
)

// app holds the components built from configuration. Backend locations are
// read here once and passed to constructors.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	plugins *host.Manager

	embedding provider.EmbeddingProvider
	store     provider.VectorStore
	ollama    provider.ChatModel
	mcpChat   provider.ChatModel
	reranker  provider.Reranker
	chunker   provider.Chunker

	indexer *index.Indexer
	rag     *rag.Orchestrator
}

// newApp validates cfg and builds every component.
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		plugins: host.NewManager(cfg.Plugins.Dir, logger.Named("plugins")),
	}
	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build() error {
	reg := provider.DefaultRegistry
	cfg := a.cfg

	var err error
	if name, ok := host.PluginName(cfg.Embedding.Provider); ok {
		a.embedding, err = a.plugins.Embedding(name)
	} else {
		a.embedding, err = reg.CreateEmbedding(cfg.Embedding.Provider, provider.EmbeddingConfig{
			Provider: cfg.Embedding.Provider,
			Model:    cfg.Embedding.Model,
			Endpoint: cfg.EmbeddingEndpoint(),
			APIKey:   cfg.Embedding.APIKey,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}

	vs := cfg.VectorStore
	a.store, err = reg.CreateVectorStore(vs.Provider, provider.VectorStoreConfig{
		Provider:   vs.Provider,
		URL:        vs.Chroma.URL,
		AuthMethod: vs.Chroma.AuthMethod,
		Token:      vs.Chroma.Token,
		Username:   vs.Chroma.Username,
		Password:   vs.Chroma.Password,
		Tenant:     vs.Chroma.Tenant,
		Database:   vs.Chroma.Database,
		Path:       vs.SQLite.Path,
		DSN:        vs.Postgres.DSN,
	}, a.embedding)
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}

	a.ollama, err = reg.CreateChat("ollama", provider.ChatConfig{Provider: "ollama", Endpoint: cfg.Ollama.Endpoint})
	if err != nil {
		return fmt.Errorf("failed to create ollama client: %w", err)
	}
	a.mcpChat, err = reg.CreateChat("openai", provider.ChatConfig{Provider: "openai", Endpoint: cfg.MCP.Endpoint, APIKey: cfg.MCP.APIKey})
	if err != nil {
		return fmt.Errorf("failed to create mcp client: %w", err)
	}

	if name, ok := host.PluginName(cfg.Reranker.Provider); ok {
		a.reranker, err = a.plugins.Reranker(name, cfg.RAG.EmptyRankFallback)
	} else {
		a.reranker, err = reg.CreateReranker(cfg.Reranker.Provider, provider.RerankerConfig{
			Provider: cfg.Reranker.Provider,
			Model:    cfg.Reranker.Model,
			Fallback: cfg.RAG.EmptyRankFallback,
		}, a.ollama)
	}
	if err != nil {
		return fmt.Errorf("failed to create reranker: %w", err)
	}

	a.chunker, err = reg.CreateChunking(cfg.Chunking.Strategy, provider.ChunkingConfig{
		Strategy: cfg.Chunking.Strategy,
		Size:     cfg.Chunking.Size,
		Overlap:  cfg.Chunking.Overlap,
	})
	if err != nil {
		return fmt.Errorf("failed to create chunker: %w", err)
	}

	a.indexer = index.New(index.Config{
		Store:   a.store,
		Chunker: a.chunker,
		Logger:  a.logger.Named("index"),
		Metrics: a.metrics,
	})
	a.rag = rag.New(rag.Backends{
		Store:    a.store,
		Reranker: a.reranker,
		Chat:     a.ollama,
	}, rag.Options{
		Candidates:  cfg.RAG.Candidates,
		ContextSize: cfg.RAG.ContextSize,
	}, a.logger.Named("rag"), a.metrics)

	return nil
}

// warmup pre-loads the embedding model. Failures are logged only.
func (a *app) warmup(ctx context.Context) {
	if err := a.embedding.Warmup(ctx); err != nil {
		a.logger.Warn("embedding warmup failed", zap.Error(err))
	}
}

// Close releases every component that was built.
func (a *app) Close() {
	closers := []struct {
		name string
		c    interface{ Close() error }
	}{
		{"reranker", a.reranker},
		{"vector store", a.store},
		{"embedding", a.embedding},
		{"ollama", a.ollama},
		{"mcp", a.mcpChat},
	}
	for _, c := range closers {
		if c.c == nil {
			continue
		}
		if err := c.c.Close(); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
		}
	}
	a.plugins.UnloadAll()
}

// projectPath resolves p against the working directory for display.
func projectPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
