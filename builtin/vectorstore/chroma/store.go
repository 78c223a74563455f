package chroma

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

// collectionTTL bounds how long a name→id mapping is trusted.
const collectionTTL = 5 * time.Minute

// Store implements provider.VectorStore against a ChromaDB server.
// Embeddings are computed client-side with the configured embedder.
type Store struct {
	client   *Client
	embedder provider.EmbeddingProvider
	ids      *cache.Cache
}

// New creates a new Chroma store.
func New(cfg ClientConfig, embedder provider.EmbeddingProvider) *Store {
	return &Store{
		client:   NewClient(cfg),
		embedder: embedder,
		ids:      cache.New(collectionTTL, 2*collectionTTL),
	}
}

// Name returns the store name.
func (s *Store) Name() string {
	return "chroma"
}

// mapError converts a client error to the vector store error taxonomy.
func mapError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, types.ErrCollectionNotFound) || errors.Is(err, types.ErrVectorStore) {
		return err
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.notFound():
			return fmt.Errorf("%w: %s", types.ErrCollectionNotFound, name)
		case apiErr.conflict():
			return fmt.Errorf("%w: %s", types.ErrCollectionExists, name)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %w", types.ErrVectorStore, op, name, err)
}

// collectionID resolves a collection name, using the cache when possible.
// cached reports whether the id came from the cache.
func (s *Store) collectionID(ctx context.Context, name string) (id string, cached bool, err error) {
	if v, ok := s.ids.Get(name); ok {
		return v.(string), true, nil
	}
	col, err := s.client.GetCollection(ctx, name)
	if err != nil {
		return "", false, mapError("get collection", name, err)
	}
	s.ids.SetDefault(name, col.ID)
	return col.ID, false, nil
}

// withCollection runs fn with the id of the named collection. A cached id
// can outlive its collection when another client recreates it; on a 404
// the mapping is evicted and fn runs once more with a fresh id.
func (s *Store) withCollection(ctx context.Context, name string, fn func(id string) error) error {
	id, cached, err := s.collectionID(ctx, name)
	if err != nil {
		return err
	}
	err = fn(id)

	var apiErr *apiError
	if err == nil || !errors.As(err, &apiErr) || !apiErr.notFound() {
		return err
	}
	s.ids.Delete(name)
	if !cached {
		return err
	}

	id, _, rerr := s.collectionID(ctx, name)
	if rerr != nil {
		return rerr
	}
	err = fn(id)
	if errors.As(err, &apiErr) && apiErr.notFound() {
		s.ids.Delete(name)
	}
	return err
}

// Query embeds text and returns the n nearest documents.
func (s *Store) Query(ctx context.Context, collectionName, text string, n int) ([]types.Document, error) {
	if _, _, err := s.collectionID(ctx, collectionName); err != nil {
		return nil, err
	}

	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	var resp *queryResponse
	err = s.withCollection(ctx, collectionName, func(id string) error {
		var qerr error
		resp, qerr = s.client.Query(ctx, id, queryRequest{
			QueryEmbeddings: vectors,
			NResults:        n,
			Include:         []string{"documents", "metadatas", "distances"},
		})
		return qerr
	})
	if err != nil {
		return nil, mapError("query", collectionName, err)
	}

	return toDocuments(resp), nil
}

// toDocuments flattens the first result set of a query response.
func toDocuments(resp *queryResponse) []types.Document {
	if resp == nil || len(resp.IDs) == 0 {
		return []types.Document{}
	}

	ids := resp.IDs[0]
	docs := make([]types.Document, 0, len(ids))
	for i, id := range ids {
		doc := types.Document{ID: id, Metadata: map[string]any{}}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) && resp.Documents[0][i] != nil {
			doc.Text = *resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) && resp.Metadatas[0][i] != nil {
			doc.Metadata = resp.Metadatas[0][i]
		}
		docs = append(docs, doc)
	}
	return docs
}

// Add embeds and stores documents.
func (s *Store) Add(ctx context.Context, collectionName string, docs []types.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if _, _, err := s.collectionID(ctx, collectionName); err != nil {
		return err
	}

	req := addRequest{
		IDs:       make([]string, len(docs)),
		Documents: make([]string, len(docs)),
		Metadatas: make([]map[string]any, len(docs)),
	}
	for i, d := range docs {
		req.IDs[i] = d.ID
		req.Documents[i] = d.Text
		req.Metadatas[i] = d.Metadata
		if req.Metadatas[i] == nil {
			req.Metadatas[i] = map[string]any{}
		}
	}

	var err error
	req.Embeddings, err = s.embedder.Embed(ctx, req.Documents)
	if err != nil {
		return err
	}

	return mapError("add", collectionName, s.withCollection(ctx, collectionName, func(id string) error {
		return s.client.Add(ctx, id, req)
	}))
}

// ListCollections returns all collections.
func (s *Store) ListCollections(ctx context.Context) ([]types.Collection, error) {
	cols, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, mapError("list collections", "", err)
	}
	out := make([]types.Collection, len(cols))
	for i, c := range cols {
		out[i] = c.toType()
		s.ids.SetDefault(c.Name, c.ID)
	}
	return out, nil
}

// CreateCollection creates a new collection.
func (s *Store) CreateCollection(ctx context.Context, name string) (*types.Collection, error) {
	col, err := s.client.CreateCollection(ctx, name, false)
	if err != nil {
		return nil, mapError("create collection", name, err)
	}
	s.ids.SetDefault(name, col.ID)
	out := col.toType()
	return &out, nil
}

// GetOrCreateCollection returns the named collection, creating it if needed.
func (s *Store) GetOrCreateCollection(ctx context.Context, name string) (*types.Collection, error) {
	col, err := s.client.CreateCollection(ctx, name, true)
	if err != nil {
		return nil, mapError("get or create collection", name, err)
	}
	s.ids.SetDefault(name, col.ID)
	out := col.toType()
	return &out, nil
}

// DeleteCollection removes a collection.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	s.ids.Delete(name)
	return mapError("delete collection", name, s.client.DeleteCollection(ctx, name))
}

// Heartbeat checks the server.
func (s *Store) Heartbeat(ctx context.Context) error {
	if err := s.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("%w: heartbeat: %w", types.ErrVectorStore, err)
	}
	return nil
}

// Close releases resources.
func (s *Store) Close() error {
	s.ids.Flush()
	return nil
}

// Ensure Store implements VectorStore interface
var _ provider.VectorStore = (*Store)(nil)
