package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/spetr/ragchat/internal/rag"
	"github.com/spetr/ragchat/internal/stream"
	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

// Connection modes of the chat endpoint.
const (
	ModeRAG    = "rag"
	ModeDirect = "direct"
	ModeMCP    = "mcp"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	ConnectionMode  string           `json:"connectionMode" validate:"omitempty,oneof=rag direct mcp"`
	Model           string           `json:"model" validate:"required"`
	Messages        []types.ChatTurn `json:"messages" validate:"required,min=1,dive"`
	SystemPrompt    *string          `json:"systemPrompt"`
	Temperature     *float64         `json:"temperature" validate:"omitempty,gte=0,lte=2"`
	Collection      string           `json:"collection"`
	EnableReranking *bool            `json:"enableReranking"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.", err.Error(), s.logger)
		return
	}

	mode := req.ConnectionMode
	if mode == "" {
		mode = ModeRAG
	}

	if err := s.startChat(w, r, mode, req); err != nil {
		label := mode
		if mode != ModeRAG && mode != ModeDirect && mode != ModeMCP {
			label = "unknown"
		}
		s.deps.Metrics.ChatRequest(label, "error")
		handleServiceError(w, err, s.logger)
	}
}

// startChat returns an error only while nothing has been written, so the
// caller can still answer with a JSON error.
func (s *Server) startChat(w http.ResponseWriter, r *http.Request, mode string, req ChatRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	if mode == ModeRAG && req.Collection == "" {
		return types.NewInvalidRequest("collection", "RAG mode requires a `collection` parameter.")
	}

	query, history, err := types.ParseChatHistory(req.Messages)
	if err != nil {
		return err
	}

	ctx := r.Context()

	if mode == ModeRAG {
		framing, err := stream.ParseFraming(r.Header.Get(stream.Header), s.opts.DefaultFraming)
		if err != nil {
			return err
		}

		rerank := true
		if req.EnableReranking != nil {
			rerank = *req.EnableReranking
		}

		p, err := s.deps.RAG.Prepare(ctx, rag.Request{
			Query:           query,
			History:         history,
			Collection:      req.Collection,
			Model:           req.Model,
			SystemPrompt:    req.SystemPrompt,
			Temperature:     req.Temperature,
			EnableReranking: rerank,
		})
		if err != nil {
			return err
		}

		writeStreamHeaders(w, framing)
		if err := s.deps.RAG.Stream(ctx, p, stream.NewWriter(w, framing)); err != nil {
			s.streamFailed(mode, err)
			return nil
		}
		s.deps.Metrics.ChatRequest(mode, "ok")
		return nil
	}

	chat := s.chatFor(mode)
	if chat == nil {
		return types.NewInvalidRequest("connectionMode", mode+" mode is not configured")
	}

	cs, err := rag.Generate(ctx, chat, req.Model, req.SystemPrompt, history, query, req.Temperature)
	if err != nil {
		return err
	}

	writeStreamHeaders(w, stream.FramingNone)
	if err := rag.Pipe(cs, stream.NewWriter(w, stream.FramingNone)); err != nil {
		s.streamFailed(mode, err)
		return nil
	}
	s.deps.Metrics.ChatRequest(mode, "ok")
	return nil
}

func (s *Server) chatFor(mode string) provider.ChatModel {
	if mode == ModeDirect {
		return s.deps.Ollama
	}
	return s.deps.MCP
}

// streamFailed records an error that happened after the response started.
// The client sees a truncated body.
func (s *Server) streamFailed(mode string, err error) {
	s.deps.Metrics.ChatRequest(mode, "aborted")
	s.logger.Warn("chat stream aborted", zap.String("mode", mode), zap.Error(err))
}

func writeStreamHeaders(w http.ResponseWriter, framing stream.Framing) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-cache")
	h.Set(stream.Header, string(framing))
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) handleDeprecatedRAGChat(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusGone, "This endpoint is deprecated. Please use the unified /api/chat endpoint.", "", s.logger)
}
