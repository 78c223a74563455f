package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spetr/ragchat/internal/index"
	"github.com/spetr/ragchat/internal/mcp"
	"github.com/spetr/ragchat/internal/server"
	"github.com/spetr/ragchat/internal/stream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API. When a watch directory is configured (watch.dir or
--watch-dir), its .txt files are ingested into the watch collection and kept
in sync while the server runs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		if dir, _ := cmd.Flags().GetString("watch-dir"); dir != "" {
			cfg.Watch.Dir = dir
		}
		return runServe()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the knowledge base as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		return runMCP(model)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default: server.addr)")
	serveCmd.Flags().String("watch-dir", "", "directory to auto-ingest (default: watch.dir)")

	mcpCmd.Flags().String("model", "llama3", "chat model used by rag_query when none is given")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe() error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()
	a.warmup(ctx)

	framing, err := stream.ParseFraming(cfg.Stream.Framing, stream.FramingLengthPrefixed)
	if err != nil {
		return err
	}

	srv := server.New(server.Deps{
		RAG:     a.rag,
		Store:   a.store,
		Ollama:  a.ollama,
		MCP:     a.mcpChat,
		Indexer: a.indexer,
		Metrics: a.metrics,
		Logger:  logger.Named("http"),
	}, server.Options{
		Addr:           cfg.Server.Addr,
		CORSOrigins:    cfg.Server.CORSOrigins,
		HealthTimeout:  cfg.Server.HealthTimeout,
		DefaultFraming: framing,
		MaxUploadSize:  cfg.Server.MaxUploadSize,
	})

	var w *index.Watcher
	if cfg.Watch.Dir != "" {
		w, err = newWatcher(a, cfg.Watch.Dir, cfg.Watch.Collection)
		if err != nil {
			return err
		}
		defer w.Close()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx) })
	if w != nil {
		g.Go(func() error { return watchDir(ctx, a, w, cfg.Watch.Dir, cfg.Watch.Collection) })
	}
	return g.Wait()
}

func runMCP(model string) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := mcp.New(mcp.Config{
		Version:       version,
		RAG:           a.rag,
		Store:         a.store,
		Chat:          a.ollama,
		Indexer:       a.indexer,
		DefaultModel:  model,
		StatusTimeout: cfg.Server.HealthTimeout,
		Logger:        logger.Named("mcp"),
	})
	if err != nil {
		return err
	}

	logger.Info("mcp server running on stdio", zap.String("store", a.store.Name()))
	return s.ServeStdio()
}

// newWatcher creates a watcher for dir feeding collection.
func newWatcher(a *app, dir, collection string) (*index.Watcher, error) {
	return index.NewWatcher(index.WatcherConfig{
		Indexer:      a.indexer,
		Dir:          dir,
		Collection:   collection,
		Logger:       logger.Named("watch"),
		DebounceTime: cfg.Watch.Debounce,
	})
}

// watchDir ingests the current content of dir, then follows changes until
// ctx is cancelled.
func watchDir(ctx context.Context, a *app, w *index.Watcher, dir, collection string) error {
	results, err := a.indexer.IndexDir(ctx, collection, dir, nil)
	if err != nil {
		return err
	}
	logger.Info("initial ingest complete",
		zap.String("dir", projectPath(dir)),
		zap.String("collection", collection),
		zap.Int("files", len(results)))

	err = w.Watch(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
