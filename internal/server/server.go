// Package server exposes the chat and collection management HTTP API.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/spetr/ragchat/internal/index"
	"github.com/spetr/ragchat/internal/metrics"
	"github.com/spetr/ragchat/internal/rag"
	"github.com/spetr/ragchat/internal/stream"
	"github.com/spetr/ragchat/pkg/provider"
)

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	RAG     *rag.Orchestrator
	Store   provider.VectorStore
	Ollama  provider.ChatModel // direct mode and status checks
	MCP     provider.ChatModel // mcp mode, model listing
	Indexer *index.Indexer
	Metrics *metrics.Metrics
	Logger  *zap.Logger

	// ModelManager pulls and deletes Ollama models. Defaults to Ollama
	// when it implements the interface.
	ModelManager ModelManager
}

// ModelManager installs and removes models on a generation backend.
type ModelManager interface {
	PullModel(ctx context.Context, name string) (io.ReadCloser, error)
	DeleteModel(ctx context.Context, name string) error
}

// Options contains HTTP server settings.
type Options struct {
	Addr           string
	CORSOrigins    []string
	HealthTimeout  time.Duration
	DefaultFraming stream.Framing
	MaxUploadSize  int64
}

// Server is the HTTP API server.
type Server struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	router chi.Router
}

// New creates a server and its routes.
func New(deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 3 * time.Second
	}
	if opts.DefaultFraming == "" {
		opts.DefaultFraming = stream.FramingLengthPrefixed
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 10 << 20
	}
	if deps.ModelManager == nil {
		if mm, ok := deps.Ollama.(ModelManager); ok {
			deps.ModelManager = mm
		}
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	s := &Server{deps: deps, opts: opts, logger: deps.Logger}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", stream.Header},
		ExposedHeaders: []string{"X-Request-ID", stream.Header},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.deps.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)

		r.Route("/rag", func(r chi.Router) {
			r.Get("/collections", s.handleListCollections)
			r.Post("/collections", s.handleCreateCollection)
			r.Delete("/collections", s.handleDeleteCollection)
			r.Post("/upload", s.handleUpload)
			r.Get("/status", s.handleRAGStatus)
			r.Post("/chat", s.handleDeprecatedRAGChat)
		})

		r.Route("/ollama", func(r chi.Router) {
			r.Get("/status", s.handleBackendStatus)
			r.Get("/models", s.handleModels)
			r.Post("/pull", s.handlePullModel)
			r.Post("/delete", s.handleDeleteModel)
		})
	})

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// accessLog logs one line per request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
