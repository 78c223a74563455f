// Package rag runs the retrieval-augmented chat pipeline: retrieve
// candidates, rerank them, build the augmented prompt and stream the answer
// behind a sources preamble.
package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spetr/ragchat/internal/metrics"
	"github.com/spetr/ragchat/internal/stream"
	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

// Default retrieval sizes.
const (
	DefaultCandidates  = 10
	DefaultContextSize = 5
)

var tracer = otel.Tracer("github.com/spetr/ragchat/internal/rag")

// Backends are the collaborators of the pipeline. They are built once from
// configuration and shared by all requests.
type Backends struct {
	Store    provider.VectorStore
	Reranker provider.Reranker // nil disables reranking
	Chat     provider.ChatModel
}

// Options contains retrieval sizes.
type Options struct {
	Candidates  int
	ContextSize int
}

// Request is one RAG chat turn.
type Request struct {
	Query           string
	History         []types.ChatTurn
	Collection      string
	Model           string
	SystemPrompt    *string
	Temperature     *float64
	EnableReranking bool
}

// Validate checks required fields without touching any backend.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.Collection) == "":
		return types.NewInvalidRequest("collection", "collection name is required")
	case strings.TrimSpace(r.Model) == "":
		return types.NewInvalidRequest("model", "model is required")
	case strings.TrimSpace(r.Query) == "":
		return types.NewInvalidRequest("messages", "query is required")
	}
	return nil
}

// Prepared is a request whose retrieval and rerank stages completed and
// whose generation stream is connected. Nothing has been written yet.
type Prepared struct {
	Sources      []types.Document
	SystemPrompt string
	Rerank       types.RerankStatus

	stream  provider.ChatStream
	started time.Time
}

// Close releases the generation stream without writing anything.
func (p *Prepared) Close() error {
	if p.stream == nil {
		return nil
	}
	return p.stream.Close()
}

// Orchestrator runs the pipeline.
type Orchestrator struct {
	backends Backends
	opts     Options
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// New creates an orchestrator. A nil logger discards logs; nil metrics
// record nothing.
func New(b Backends, opts Options, logger *zap.Logger, m *metrics.Metrics) *Orchestrator {
	if opts.Candidates <= 0 {
		opts.Candidates = DefaultCandidates
	}
	if opts.ContextSize <= 0 {
		opts.ContextSize = DefaultContextSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{backends: b, opts: opts, logger: logger, metrics: m}
}

// Answer prepares the request and streams the answer to w.
func (o *Orchestrator) Answer(ctx context.Context, req Request, w *stream.Writer) error {
	p, err := o.Prepare(ctx, req)
	if err != nil {
		return err
	}
	return o.Stream(ctx, p, w)
}

// Prepare validates the request, retrieves and reranks the context, builds
// the prompt and connects the generation stream. Any error here means no
// byte of the answer has been produced.
func (o *Orchestrator) Prepare(ctx context.Context, req Request) (*Prepared, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "rag.prepare", trace.WithAttributes(
		attribute.String("rag.collection", req.Collection),
		attribute.String("rag.model", req.Model),
		attribute.Bool("rag.rerank", req.EnableReranking),
	))
	defer span.End()

	candidates, err := o.retrieve(ctx, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	final, status := o.rerank(ctx, req, candidates)
	system := BuildSystemPrompt(req.SystemPrompt, final)
	msgs := BuildMessages(system, req.History, req.Query)

	started := time.Now()
	s, err := o.backends.Chat.ChatStream(ctx, chatRequest(req.Model, msgs, req.Temperature))
	if err != nil {
		recordError(span, err)
		return nil, asGenerationError(err)
	}

	span.SetAttributes(attribute.Int("rag.context_size", len(final)))
	return &Prepared{
		Sources:      final,
		SystemPrompt: system,
		Rerank:       status,
		stream:       s,
		started:      started,
	}, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, req Request) ([]types.Document, error) {
	ctx, span := tracer.Start(ctx, "rag.retrieve")
	defer span.End()

	start := time.Now()
	docs, err := o.backends.Store.Query(ctx, req.Collection, req.Query, o.opts.Candidates)
	o.metrics.ObserveStage("retrieve", time.Since(start))
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("failed to retrieve context from %q: %w", req.Collection, err)
	}
	span.SetAttributes(attribute.Int("rag.candidates", len(docs)))
	return docs, nil
}

// rerank applies the reranker and caps the result. A failed rerank keeps
// the retrieval order.
func (o *Orchestrator) rerank(ctx context.Context, req Request, candidates []types.Document) ([]types.Document, types.RerankStatus) {
	if !req.EnableReranking || o.backends.Reranker == nil || len(candidates) == 0 {
		return capDocs(candidates, o.opts.ContextSize), types.RerankSkipped
	}

	ctx, span := tracer.Start(ctx, "rag.rerank")
	defer span.End()

	start := time.Now()
	out := o.backends.Reranker.Rerank(provider.WithModel(ctx, req.Model), req.Query, candidates)
	o.metrics.ObserveStage("rerank", time.Since(start))
	o.metrics.RerankOutcome(string(out.Status))
	span.SetAttributes(attribute.String("rag.rerank_status", string(out.Status)))

	docs := out.Documents
	switch out.Status {
	case types.RerankFailed:
		o.logger.Warn("rerank failed, keeping retrieval order",
			zap.String("collection", req.Collection),
			zap.Error(out.Err))
		span.RecordError(out.Err)
		docs = candidates
	case types.RerankEmptyFallback:
		o.logger.Info("rerank returned no known ids, using top candidates",
			zap.String("collection", req.Collection),
			zap.Int("kept", len(docs)))
	case types.RerankSkipped:
		docs = candidates
	}
	return capDocs(docs, o.opts.ContextSize), out.Status
}

// Stream writes the sources preamble and forwards generated tokens to w.
// It always closes the generation stream.
func (o *Orchestrator) Stream(ctx context.Context, p *Prepared, w *stream.Writer) error {
	defer p.Close()

	_, span := tracer.Start(ctx, "rag.generate")
	defer span.End()
	defer func() { o.metrics.ObserveStage("generate", time.Since(p.started)) }()

	if err := w.WriteSources(p.Sources); err != nil {
		return err
	}

	tokens := 0
	for {
		tok, err := p.stream.Recv()
		if errors.Is(err, io.EOF) {
			span.SetAttributes(attribute.Int("rag.tokens", tokens))
			return nil
		}
		if err != nil {
			recordError(span, err)
			return asGenerationError(err)
		}
		if err := w.WriteToken(tok); err != nil {
			return err
		}
		tokens++
	}
}

// Generate streams a plain chat completion without retrieval. Used by the
// direct and mcp chat modes.
func Generate(ctx context.Context, chat provider.ChatModel, model string, system *string, history []types.ChatTurn, query string, temperature *float64) (provider.ChatStream, error) {
	sys := ""
	if system != nil {
		sys = *system
	}
	s, err := chat.ChatStream(ctx, chatRequest(model, BuildMessages(sys, history, query), temperature))
	if err != nil {
		return nil, asGenerationError(err)
	}
	return s, nil
}

// Pipe forwards every token of s to w and closes s.
func Pipe(s provider.ChatStream, w *stream.Writer) error {
	defer s.Close()
	for {
		tok, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return asGenerationError(err)
		}
		if err := w.WriteToken(tok); err != nil {
			return err
		}
	}
}

func capDocs(docs []types.Document, n int) []types.Document {
	if len(docs) > n {
		docs = docs[:n]
	}
	if docs == nil {
		docs = []types.Document{}
	}
	return docs
}

func asGenerationError(err error) error {
	if errors.Is(err, types.ErrGenerationBackend) || errors.Is(err, context.Canceled) {
		return err
	}
	return &types.GenerationBackendError{Err: err}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
