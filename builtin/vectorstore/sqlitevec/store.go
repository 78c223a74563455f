// Package sqlitevec implements VectorStore in a local SQLite file, using
// sqlite-vec for cosine distance.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

var (
	// Ensure sqlite-vec Auto() is called exactly once before any db connection
	vecAutoOnce sync.Once
)

// DefaultPath is used when no path is configured.
const DefaultPath = ".ragchat/vectors.db"

// Store implements the VectorStore interface using sqlite-vec.
type Store struct {
	db       *sql.DB
	path     string
	embedder provider.EmbeddingProvider
}

// New opens (or creates) the store at path.
func New(path string, embedder provider.EmbeddingProvider) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	s := &Store{path: path, embedder: embedder}
	if err := s.init(); err != nil {
		if s.db != nil {
			_ = s.db.Close()
		}
		return nil, err
	}
	return s, nil
}

// Name returns the store name.
func (s *Store) Name() string {
	return "sqlitevec"
}

func (s *Store) init() error {
	// Register sqlite-vec extension before opening any database connection.
	vecAutoOnce.Do(func() {
		sqlite_vec.Auto()
	})

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL mode for concurrent reads, busy_timeout to wait for locks instead of failing immediately
	db, err := sql.Open("sqlite3", s.path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	if _, err := db.Exec("SELECT vec_version()"); err != nil {
		return fmt.Errorf("sqlite-vec extension not available: %w", err)
	}

	return s.createSchema()
}

func (s *Store) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			embedding BLOB NOT NULL,
			PRIMARY KEY (collection_id, id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *Store) collection(ctx context.Context, name string) (*types.Collection, error) {
	var (
		col  types.Collection
		meta string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, metadata FROM collections WHERE name = ?`, name).
		Scan(&col.ID, &col.Name, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrCollectionNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrVectorStore, err)
	}
	col.Metadata = decodeMetadata(meta)
	return &col, nil
}

// Query embeds text and returns the n nearest documents by cosine distance.
func (s *Store) Query(ctx context.Context, collectionName, text string, n int) ([]types.Document, error) {
	col, err := s.collection(ctx, collectionName)
	if err != nil {
		return nil, err
	}

	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, metadata, vec_distance_cosine(embedding, ?) AS distance
		FROM documents
		WHERE collection_id = ?
		ORDER BY distance ASC
		LIMIT ?
	`, floatsToBytes(vectors[0]), col.ID, n)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search failed: %w", types.ErrVectorStore, err)
	}
	defer rows.Close()

	docs := []types.Document{}
	for rows.Next() {
		var (
			doc      types.Document
			meta     string
			distance float64
		)
		if err := rows.Scan(&doc.ID, &doc.Text, &meta, &distance); err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrVectorStore, err)
		}
		doc.Metadata = decodeMetadata(meta)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrVectorStore, err)
	}
	return docs, nil
}

// Add embeds and stores documents. Existing ids are replaced.
func (s *Store) Add(ctx context.Context, collectionName string, docs []types.Document) error {
	if len(docs) == 0 {
		return nil
	}
	col, err := s.collection(ctx, collectionName)
	if err != nil {
		return err
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrVectorStore, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO documents (collection_id, id, content, metadata, embedding)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrVectorStore, err)
	}
	defer stmt.Close()

	for i, d := range docs {
		meta, err := json.Marshal(nonNil(d.Metadata))
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, col.ID, d.ID, d.Text, string(meta), floatsToBytes(vectors[i])); err != nil {
			return fmt.Errorf("%w: failed to store document %s: %w", types.ErrVectorStore, d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrVectorStore, err)
	}
	return nil
}

// ListCollections returns all collections ordered by name.
func (s *Store) ListCollections(ctx context.Context) ([]types.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, metadata FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrVectorStore, err)
	}
	defer rows.Close()

	cols := []types.Collection{}
	for rows.Next() {
		var (
			col  types.Collection
			meta string
		)
		if err := rows.Scan(&col.ID, &col.Name, &meta); err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrVectorStore, err)
		}
		col.Metadata = decodeMetadata(meta)
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// CreateCollection creates a new collection.
func (s *Store) CreateCollection(ctx context.Context, name string) (*types.Collection, error) {
	col := types.Collection{ID: uuid.NewString(), Name: name, Metadata: map[string]any{}}
	_, err := s.db.ExecContext(ctx, `INSERT INTO collections (id, name) VALUES (?, ?)`, col.ID, name)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", types.ErrCollectionExists, name)
		}
		return nil, fmt.Errorf("%w: %w", types.ErrVectorStore, err)
	}
	return &col, nil
}

// GetOrCreateCollection returns the named collection, creating it if needed.
func (s *Store) GetOrCreateCollection(ctx context.Context, name string) (*types.Collection, error) {
	col, err := s.collection(ctx, name)
	if err == nil {
		return col, nil
	}
	if !errors.Is(err, types.ErrCollectionNotFound) {
		return nil, err
	}
	col, err = s.CreateCollection(ctx, name)
	if errors.Is(err, types.ErrCollectionExists) {
		// lost a race with another creator
		return s.collection(ctx, name)
	}
	return col, err
}

// DeleteCollection removes a collection and its documents.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrVectorStore, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", types.ErrCollectionNotFound, name)
	}
	return nil
}

// Heartbeat pings the database.
func (s *Store) Heartbeat(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", types.ErrVectorStore, err)
	}
	return nil
}

// Close releases resources and closes connections.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func decodeMetadata(raw string) map[string]any {
	meta := map[string]any{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &meta)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return meta
}

// floatsToBytes converts float32 slice to little-endian bytes for sqlite-vec.
func floatsToBytes(floats []float32) []byte {
	bytes := make([]byte, len(floats)*4)
	for i, f := range floats {
		bits := math.Float32bits(f)
		bytes[i*4] = byte(bits)
		bytes[i*4+1] = byte(bits >> 8)
		bytes[i*4+2] = byte(bits >> 16)
		bytes[i*4+3] = byte(bits >> 24)
	}
	return bytes
}

// Ensure Store implements VectorStore interface
var _ provider.VectorStore = (*Store)(nil)
