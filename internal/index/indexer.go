// Package index ingests text files into vector store collections, either
// on demand (uploads, the ingest command) or by watching a directory.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spetr/ragchat/internal/metrics"
	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

// DefaultBatchSize is the number of chunks written per Add call.
const DefaultBatchSize = 64

// Indexer chunks text and stores the chunks in a collection.
type Indexer struct {
	store     provider.VectorStore
	chunker   provider.Chunker
	logger    *zap.Logger
	metrics   *metrics.Metrics
	batchSize int
	workers   int
	now       func() time.Time
}

// Config contains indexer configuration.
type Config struct {
	Store     provider.VectorStore
	Chunker   provider.Chunker
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	BatchSize int // Default: DefaultBatchSize
	Workers   int // Files ingested in parallel by IndexDir. Default: NumCPU, at most 4
}

// New creates a new indexer.
func New(cfg Config) *Indexer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = min(runtime.NumCPU(), 4)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Indexer{
		store:     cfg.Store,
		chunker:   cfg.Chunker,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		batchSize: cfg.BatchSize,
		workers:   cfg.Workers,
		now:       time.Now,
	}
}

// IsTextFile reports whether name has a supported extension.
func IsTextFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".txt")
}

// IngestText splits text into chunks and adds them to collection, creating
// the collection when needed. Chunk ids are "<source>-<unixMillis>-<i>" and
// every chunk carries {"source": source} as metadata.
func (idx *Indexer) IngestText(ctx context.Context, collection, source, text string) (*types.IngestResult, error) {
	if strings.TrimSpace(collection) == "" {
		return nil, types.NewInvalidRequest("collectionName", "no collection name provided")
	}
	if source == "" {
		return nil, types.NewInvalidRequest("file", "no file name provided")
	}

	start := idx.now()
	chunks := idx.chunker.Chunk(text)
	if len(chunks) == 0 {
		return nil, types.NewInvalidRequest("file", "file is empty")
	}

	if _, err := idx.store.GetOrCreateCollection(ctx, collection); err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", collection, err)
	}

	stamp := start.UnixMilli()
	docs := make([]types.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = types.Document{
			ID:       fmt.Sprintf("%s-%d-%d", source, stamp, i),
			Text:     c,
			Metadata: map[string]any{"source": source},
		}
	}

	for i := 0; i < len(docs); i += idx.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(i+idx.batchSize, len(docs))
		if err := idx.store.Add(ctx, collection, docs[i:end]); err != nil {
			return nil, fmt.Errorf("failed to store chunks %d-%d of %s: %w", i, end-1, source, err)
		}
	}

	duration := time.Since(start)
	idx.metrics.IngestedChunks(collection, len(docs))
	idx.metrics.ObserveStage("ingest", duration)
	idx.logger.Info("ingested file",
		zap.String("collection", collection),
		zap.String("source", source),
		zap.Int("chunks", len(docs)),
		zap.Duration("duration", duration.Round(time.Millisecond)))

	return &types.IngestResult{
		Collection: collection,
		Source:     source,
		Chunks:     len(docs),
		Duration:   duration,
	}, nil
}

// IngestFile reads a .txt file and ingests it under its base name.
func (idx *Indexer) IngestFile(ctx context.Context, collection, path string) (*types.IngestResult, error) {
	if !IsTextFile(path) {
		return nil, types.NewInvalidRequest("file", "only .txt files are supported")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return idx.IngestText(ctx, collection, filepath.Base(path), string(content))
}

// IndexDir ingests every .txt file below dir. Files are processed by a
// small worker pool; the first error cancels the remaining work.
func (idx *Indexer) IndexDir(ctx context.Context, collection, dir string, onFile func(*types.IngestResult)) ([]*types.IngestResult, error) {
	files, err := scanTextFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	idx.logger.Info("scanned directory", zap.String("dir", dir), zap.Int("files", len(files)))
	if len(files) == 0 {
		return nil, nil
	}

	// The collection is created once up front so workers don't race on it.
	if _, err := idx.store.GetOrCreateCollection(ctx, collection); err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", collection, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan string)
	var (
		mu       sync.Mutex
		results  []*types.IngestResult
		firstErr error
		wg       sync.WaitGroup
	)

	for i := 0; i < idx.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				res, err := idx.IngestFile(ctx, collection, path)
				mu.Lock()
				switch {
				case err == nil:
					results = append(results, res)
					if onFile != nil {
						onFile(res)
					}
				case isEmptyFile(err):
					idx.logger.Debug("skipping empty file", zap.String("file", path))
				case firstErr == nil:
					firstErr = err
					cancel()
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, f := range files {
		select {
		case jobs <- f:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return results, firstErr
	}
	return results, ctx.Err()
}

func isEmptyFile(err error) bool {
	var ire *types.InvalidRequestError
	return errors.As(err, &ire) && ire.Field == "file"
}

// scanTextFiles lists .txt files below dir, skipping hidden directories.
func scanTextFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsTextFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// contentHash returns the hex SHA-256 of data.
func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
