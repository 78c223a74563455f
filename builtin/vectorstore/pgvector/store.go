// Package pgvector implements VectorStore on PostgreSQL with the pgvector
// extension, through gorm.
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

type collectionModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"type:text;not null;uniqueIndex"`
	Metadata  string    `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (collectionModel) TableName() string {
	return "rag_collections"
}

type documentModel struct {
	CollectionID string          `gorm:"type:uuid;primaryKey"`
	ID           string          `gorm:"type:text;primaryKey"`
	Content      string          `gorm:"type:text;not null"`
	Metadata     string          `gorm:"type:jsonb;not null;default:'{}'"`
	Embedding    pgvector.Vector `gorm:"type:vector;not null"`
	CreatedAt    time.Time       `gorm:"autoCreateTime"`
}

func (documentModel) TableName() string {
	return "rag_documents"
}

// Store implements provider.VectorStore on PostgreSQL.
type Store struct {
	db       *gorm.DB
	embedder provider.EmbeddingProvider
}

// New connects to dsn, enables the vector extension and migrates the schema.
func New(dsn string, embedder provider.EmbeddingProvider) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", types.ErrInvalidConfig)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect: %w", types.ErrVectorStore, err)
	}
	return NewWithDB(db, embedder)
}

// NewWithDB uses an existing gorm connection.
func NewWithDB(db *gorm.DB, embedder provider.EmbeddingProvider) (*Store, error) {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("%w: failed to enable pgvector: %w", types.ErrVectorStore, err)
	}
	if err := db.AutoMigrate(&collectionModel{}, &documentModel{}); err != nil {
		return nil, fmt.Errorf("%w: migration failed: %w", types.ErrVectorStore, err)
	}
	return &Store{db: db, embedder: embedder}, nil
}

// Name returns the store name.
func (s *Store) Name() string {
	return "pgvector"
}

func (s *Store) collection(ctx context.Context, name string) (*collectionModel, error) {
	var col collectionModel
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&col).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", types.ErrCollectionNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrVectorStore, err)
	}
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

	var rows []documentModel
	err = s.db.WithContext(ctx).
		Where("collection_id = ?", col.ID).
		Order(gorm.Expr("embedding <=> ?", pgvector.NewVector(vectors[0]))).
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: vector search failed: %w", types.ErrVectorStore, err)
	}

	docs := make([]types.Document, len(rows))
	for i, r := range rows {
		docs[i] = types.Document{ID: r.ID, Text: r.Content, Metadata: decodeMetadata(r.Metadata)}
	}
	return docs, nil
}

// Add embeds and upserts documents.
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

	rows := make([]documentModel, len(docs))
	for i, d := range docs {
		rows[i] = documentModel{
			CollectionID: col.ID,
			ID:           d.ID,
			Content:      d.Text,
			Metadata:     encodeMetadata(d.Metadata),
			Embedding:    pgvector.NewVector(vectors[i]),
		}
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(rows, 100).Error
	if err != nil {
		return fmt.Errorf("%w: failed to store documents: %w", types.ErrVectorStore, err)
	}
	return nil
}

// ListCollections returns all collections ordered by name.
func (s *Store) ListCollections(ctx context.Context) ([]types.Collection, error) {
	var rows []collectionModel
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrVectorStore, err)
	}
	out := make([]types.Collection, len(rows))
	for i, r := range rows {
		out[i] = r.toType()
	}
	return out, nil
}

func (c collectionModel) toType() types.Collection {
	return types.Collection{ID: c.ID, Name: c.Name, Metadata: decodeMetadata(c.Metadata)}
}

// CreateCollection creates a new collection.
func (s *Store) CreateCollection(ctx context.Context, name string) (*types.Collection, error) {
	col := collectionModel{ID: uuid.NewString(), Name: name, Metadata: "{}"}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&col)
	if res.Error != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrVectorStore, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrCollectionExists, name)
	}
	out := col.toType()
	return &out, nil
}

// GetOrCreateCollection returns the named collection, creating it if needed.
func (s *Store) GetOrCreateCollection(ctx context.Context, name string) (*types.Collection, error) {
	created, err := s.CreateCollection(ctx, name)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, types.ErrCollectionExists) {
		return nil, err
	}
	col, err := s.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	out := col.toType()
	return &out, nil
}

// DeleteCollection removes a collection and its documents.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	col, err := s.collection(ctx, name)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection_id = ?", col.ID).Delete(&documentModel{}).Error; err != nil {
			return fmt.Errorf("%w: %w", types.ErrVectorStore, err)
		}
		if err := tx.Delete(col).Error; err != nil {
			return fmt.Errorf("%w: %w", types.ErrVectorStore, err)
		}
		return nil
	})
}

// Heartbeat pings the database.
func (s *Store) Heartbeat(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrVectorStore, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", types.ErrVectorStore, err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func encodeMetadata(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
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

// Ensure Store implements VectorStore interface
var _ provider.VectorStore = (*Store)(nil)
