package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches a directory and ingests .txt files into a collection when
// they are created or changed.
type Watcher struct {
	indexer    *Indexer
	dir        string
	collection string
	logger     *zap.Logger

	watcher *fsnotify.Watcher

	// Debouncing
	pendingMu    sync.Mutex
	pendingFiles map[string]time.Time
	debounceTime time.Duration

	// Last ingested content per file, so saves without changes are skipped.
	hashMu sync.Mutex
	hashes map[string]string
}

// WatcherConfig contains watcher configuration.
type WatcherConfig struct {
	Indexer      *Indexer
	Dir          string
	Collection   string
	Logger       *zap.Logger
	DebounceTime time.Duration // Default: 500ms
}

// NewWatcher creates a new directory watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounceTime := cfg.DebounceTime
	if debounceTime == 0 {
		debounceTime = 500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Watcher{
		indexer:      cfg.Indexer,
		dir:          cfg.Dir,
		collection:   cfg.Collection,
		logger:       logger,
		watcher:      watcher,
		pendingFiles: make(map[string]time.Time),
		debounceTime: debounceTime,
		hashes:       make(map[string]string),
	}, nil
}

// Watch starts watching for file changes.
// It blocks until the context is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.addWatchDirs(); err != nil {
		return err
	}

	w.logger.Info("watching for file changes", zap.String("dir", w.dir), zap.String("collection", w.collection))

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping watcher")
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// addWatchDirs recursively adds directories to watch.
func (w *Watcher) addWatchDirs() error {
	return filepath.WalkDir(w.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
}

// handleEvent queues changed text files and starts watching new directories.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Warn("failed to watch directory", zap.String("path", event.Name), zap.Error(err))
			}
			return
		}
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.forget(event.Name)
		return
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if !IsTextFile(event.Name) {
		return
	}

	w.pendingMu.Lock()
	w.pendingFiles[event.Name] = time.Now()
	w.pendingMu.Unlock()

	w.logger.Debug("file changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
}

// forget drops the remembered hash of a removed file. Its chunks stay in
// the collection.
func (w *Watcher) forget(path string) {
	w.hashMu.Lock()
	delete(w.hashes, path)
	w.hashMu.Unlock()

	w.pendingMu.Lock()
	delete(w.pendingFiles, path)
	w.pendingMu.Unlock()
}

// processDebounced processes pending files after debounce period.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPendingFiles(ctx)
		}
	}
}

// processPendingFiles ingests files that have been stable for the debounce period.
func (w *Watcher) processPendingFiles(ctx context.Context) {
	w.pendingMu.Lock()
	now := time.Now()
	var toProcess []string
	for path, changedAt := range w.pendingFiles {
		if now.Sub(changedAt) >= w.debounceTime {
			toProcess = append(toProcess, path)
			delete(w.pendingFiles, path)
		}
	}
	w.pendingMu.Unlock()

	for _, path := range toProcess {
		if ctx.Err() != nil {
			return
		}
		if err := w.ingest(ctx, path); err != nil {
			w.logger.Warn("failed to ingest file", zap.String("file", path), zap.Error(err))
		}
	}
}

// ingest ingests path unless its content matches the last ingested version.
func (w *Watcher) ingest(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		w.forget(path)
		return nil
	}
	if err != nil {
		return err
	}

	hash := contentHash(content)
	w.hashMu.Lock()
	unchanged := w.hashes[path] == hash
	w.hashMu.Unlock()
	if unchanged {
		return nil
	}

	res, err := w.indexer.IngestText(ctx, w.collection, filepath.Base(path), string(content))
	if err != nil {
		if isEmptyFile(err) {
			return nil
		}
		return err
	}

	w.hashMu.Lock()
	w.hashes[path] = hash
	w.hashMu.Unlock()

	w.logger.Info("re-ingested file", zap.String("file", path), zap.Int("chunks", res.Chunks))
	return nil
}

// Close closes the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
