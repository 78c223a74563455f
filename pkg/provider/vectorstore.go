package provider

import (
	"context"

	"github.com/spetr/ragchat/pkg/types"
)

// VectorStore stores documents in named collections and answers
// nearest-neighbour queries. Implementations embed texts through the
// EmbeddingProvider they were created with.
type VectorStore interface {
	// Name returns the store name (e.g., "chroma", "sqlitevec").
	Name() string

	// Query embeds text and returns up to n nearest documents, nearest first.
	// Returns types.ErrCollectionNotFound for an unknown collection.
	Query(ctx context.Context, collection, text string, n int) ([]types.Document, error)

	// Add embeds and stores documents in an existing collection.
	Add(ctx context.Context, collection string, docs []types.Document) error

	// ListCollections returns all collections.
	ListCollections(ctx context.Context) ([]types.Collection, error)

	// CreateCollection fails with types.ErrCollectionExists on duplicates.
	CreateCollection(ctx context.Context, name string) (*types.Collection, error)

	// GetOrCreateCollection returns the named collection, creating it if needed.
	GetOrCreateCollection(ctx context.Context, name string) (*types.Collection, error)

	// DeleteCollection removes a collection and its documents.
	DeleteCollection(ctx context.Context, name string) error

	// Heartbeat checks connectivity.
	Heartbeat(ctx context.Context) error

	// Close releases any resources.
	Close() error
}

// VectorStoreConfig contains configuration for vector stores.
type VectorStoreConfig struct {
	Provider string // "chroma", "sqlitevec", "pgvector"

	// Chroma
	URL        string
	AuthMethod string // "", "token", "basic"
	Token      string
	Username   string
	Password   string
	Tenant     string
	Database   string

	// sqlitevec
	Path string

	// pgvector
	DSN string
}
