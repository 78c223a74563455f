// Package builtin registers all built-in providers with the default registry.
package builtin

import (
	"errors"

	ollamaChat "github.com/spetr/ragchat/builtin/chat/ollama"
	openaiChat "github.com/spetr/ragchat/builtin/chat/openai"
	simpleChunker "github.com/spetr/ragchat/builtin/chunking/simple"
	ollamaEmbed "github.com/spetr/ragchat/builtin/embedding/ollama"
	openaiEmbed "github.com/spetr/ragchat/builtin/embedding/openai"
	"github.com/spetr/ragchat/builtin/reranker/llm"
	"github.com/spetr/ragchat/builtin/reranker/none"
	"github.com/spetr/ragchat/builtin/vectorstore/chroma"
	"github.com/spetr/ragchat/builtin/vectorstore/pgvector"
	"github.com/spetr/ragchat/builtin/vectorstore/sqlitevec"
	"github.com/spetr/ragchat/pkg/provider"
)

func init() {
	// Register embedding providers
	provider.RegisterEmbedding("ollama", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return ollamaEmbed.New(ollamaEmbed.Config{
			Endpoint: cfg.Endpoint,
			Model:    cfg.Model,
		}), nil
	})

	provider.RegisterEmbedding("openai", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return openaiEmbed.New(openaiEmbed.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.Endpoint,
			Model:   cfg.Model,
		}), nil
	})

	// Register chat backends
	provider.RegisterChat("ollama", func(cfg provider.ChatConfig) (provider.ChatModel, error) {
		return ollamaChat.New(ollamaChat.Config{Endpoint: cfg.Endpoint}), nil
	})

	provider.RegisterChat("openai", func(cfg provider.ChatConfig) (provider.ChatModel, error) {
		return openaiChat.New(openaiChat.Config{Endpoint: cfg.Endpoint, APIKey: cfg.APIKey}), nil
	})

	// Register rerankers
	provider.RegisterReranker("llm", func(cfg provider.RerankerConfig, chat provider.ChatModel) (provider.Reranker, error) {
		if chat == nil {
			return nil, errors.New("llm reranker needs a chat backend")
		}
		return llm.New(llm.Config{Model: cfg.Model, Fallback: cfg.Fallback}, chat), nil
	})

	provider.RegisterReranker("none", func(provider.RerankerConfig, provider.ChatModel) (provider.Reranker, error) {
		return none.New(), nil
	})

	// Register chunking strategies
	provider.RegisterChunking("simple", func(cfg provider.ChunkingConfig) (provider.Chunker, error) {
		return simpleChunker.New(simpleChunker.Config{
			Size:    cfg.Size,
			Overlap: cfg.Overlap,
		}), nil
	})

	// Register vector stores
	provider.RegisterVectorStore("chroma", func(cfg provider.VectorStoreConfig, embedder provider.EmbeddingProvider) (provider.VectorStore, error) {
		return chroma.New(chroma.ClientConfig{
			URL:        cfg.URL,
			AuthMethod: cfg.AuthMethod,
			Token:      cfg.Token,
			Username:   cfg.Username,
			Password:   cfg.Password,
			Tenant:     cfg.Tenant,
			Database:   cfg.Database,
		}, embedder), nil
	})

	provider.RegisterVectorStore("sqlitevec", func(cfg provider.VectorStoreConfig, embedder provider.EmbeddingProvider) (provider.VectorStore, error) {
		store, err := sqlitevec.New(cfg.Path, embedder)
		if err != nil {
			return nil, err
		}
		return store, nil
	})

	provider.RegisterVectorStore("pgvector", func(cfg provider.VectorStoreConfig, embedder provider.EmbeddingProvider) (provider.VectorStore, error) {
		store, err := pgvector.New(cfg.DSN, embedder)
		if err != nil {
			return nil, err
		}
		return store, nil
	})
}
