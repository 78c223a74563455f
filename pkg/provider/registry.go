package provider

import (
	"fmt"
	"sort"
	"sync"
)

// EmbeddingFactory creates an EmbeddingProvider from configuration.
type EmbeddingFactory func(config EmbeddingConfig) (EmbeddingProvider, error)

// ChatFactory creates a ChatModel from configuration.
type ChatFactory func(config ChatConfig) (ChatModel, error)

// RerankerFactory creates a Reranker. chat is the model used for LLM ranking
// and may be ignored by rerankers that do not need one.
type RerankerFactory func(config RerankerConfig, chat ChatModel) (Reranker, error)

// ChunkingFactory creates a Chunker from configuration.
type ChunkingFactory func(config ChunkingConfig) (Chunker, error)

// VectorStoreFactory creates a VectorStore that embeds through embedder.
type VectorStoreFactory func(config VectorStoreConfig, embedder EmbeddingProvider) (VectorStore, error)

// factories is a name-keyed factory table.
type factories[F any] struct {
	kind string
	m    map[string]F
}

func newFactories[F any](kind string) factories[F] {
	return factories[F]{kind: kind, m: make(map[string]F)}
}

func (f factories[F]) names() []string {
	names := make([]string, 0, len(f.m))
	for name := range f.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f factories[F]) lookup(name string) (F, error) {
	factory, ok := f.m[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("unknown %s: %s (available: %v)", f.kind, name, f.names())
	}
	return factory, nil
}

// Registry holds factories for all provider types.
type Registry struct {
	mu sync.RWMutex

	embedding   factories[EmbeddingFactory]
	chat        factories[ChatFactory]
	reranker    factories[RerankerFactory]
	chunking    factories[ChunkingFactory]
	vectorStore factories[VectorStoreFactory]
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		embedding:   newFactories[EmbeddingFactory]("embedding provider"),
		chat:        newFactories[ChatFactory]("chat provider"),
		reranker:    newFactories[RerankerFactory]("reranker provider"),
		chunking:    newFactories[ChunkingFactory]("chunking strategy"),
		vectorStore: newFactories[VectorStoreFactory]("vector store"),
	}
}

// RegisterEmbedding registers an embedding provider factory.
func (r *Registry) RegisterEmbedding(name string, factory EmbeddingFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedding.m[name] = factory
}

// RegisterChat registers a chat backend factory.
func (r *Registry) RegisterChat(name string, factory ChatFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chat.m[name] = factory
}

// RegisterReranker registers a reranker factory.
func (r *Registry) RegisterReranker(name string, factory RerankerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reranker.m[name] = factory
}

// RegisterChunking registers a chunking strategy factory.
func (r *Registry) RegisterChunking(name string, factory ChunkingFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunking.m[name] = factory
}

// RegisterVectorStore registers a vector store factory.
func (r *Registry) RegisterVectorStore(name string, factory VectorStoreFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectorStore.m[name] = factory
}

// CreateEmbedding creates an embedding provider by name.
func (r *Registry) CreateEmbedding(name string, config EmbeddingConfig) (EmbeddingProvider, error) {
	r.mu.RLock()
	factory, err := r.embedding.lookup(name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(config)
}

// CreateChat creates a chat backend by name.
func (r *Registry) CreateChat(name string, config ChatConfig) (ChatModel, error) {
	r.mu.RLock()
	factory, err := r.chat.lookup(name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(config)
}

// CreateReranker creates a reranker by name.
func (r *Registry) CreateReranker(name string, config RerankerConfig, chat ChatModel) (Reranker, error) {
	r.mu.RLock()
	factory, err := r.reranker.lookup(name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(config, chat)
}

// CreateChunking creates a chunking strategy by name.
func (r *Registry) CreateChunking(name string, config ChunkingConfig) (Chunker, error) {
	r.mu.RLock()
	factory, err := r.chunking.lookup(name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(config)
}

// CreateVectorStore creates a vector store by name.
func (r *Registry) CreateVectorStore(name string, config VectorStoreConfig, embedder EmbeddingProvider) (VectorStore, error) {
	r.mu.RLock()
	factory, err := r.vectorStore.lookup(name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(config, embedder)
}

// ListEmbeddings returns all registered embedding provider names, sorted.
func (r *Registry) ListEmbeddings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.embedding.names()
}

// ListChats returns all registered chat backend names, sorted.
func (r *Registry) ListChats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chat.names()
}

// ListRerankers returns all registered reranker names, sorted.
func (r *Registry) ListRerankers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reranker.names()
}

// ListChunkings returns all registered chunking strategy names, sorted.
func (r *Registry) ListChunkings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chunking.names()
}

// ListVectorStores returns all registered vector store names, sorted.
func (r *Registry) ListVectorStores() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vectorStore.names()
}

// DefaultRegistry is the global default registry.
var DefaultRegistry = NewRegistry()

// RegisterEmbedding registers an embedding provider in the default registry.
func RegisterEmbedding(name string, factory EmbeddingFactory) {
	DefaultRegistry.RegisterEmbedding(name, factory)
}

// RegisterChat registers a chat backend in the default registry.
func RegisterChat(name string, factory ChatFactory) {
	DefaultRegistry.RegisterChat(name, factory)
}

// RegisterReranker registers a reranker in the default registry.
func RegisterReranker(name string, factory RerankerFactory) {
	DefaultRegistry.RegisterReranker(name, factory)
}

// RegisterChunking registers a chunking strategy in the default registry.
func RegisterChunking(name string, factory ChunkingFactory) {
	DefaultRegistry.RegisterChunking(name, factory)
}

// RegisterVectorStore registers a vector store in the default registry.
func RegisterVectorStore(name string, factory VectorStoreFactory) {
	DefaultRegistry.RegisterVectorStore(name, factory)
}
