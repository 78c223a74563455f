package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

// ModelRequest is the body of the model pull and delete endpoints.
type ModelRequest struct {
	Name string `json:"name" validate:"required"`
}

func (s *Server) handleBackendStatus(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = ModeMCP
	}
	if mode != ModeDirect && mode != ModeMCP {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid mode: %s", mode), "", s.logger)
		return
	}

	name := strings.ToUpper(mode) + " server"
	chat := s.chatFor(mode)
	if chat == nil {
		_ = writeJSON(w, http.StatusOK, StatusResponse{Online: false, Message: name + " is not configured."})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.HealthTimeout)
	defer cancel()

	resp := StatusResponse{Online: true, Message: name + " is responsive."}
	if err := chat.Ping(ctx); err != nil {
		resp = StatusResponse{Online: false, Message: connectMessage(name, err), Details: err.Error()}
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

// connectMessage describes why a status check failed.
func connectMessage(name string, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("Connection to %s timed out.", name)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Sprintf("Connection to %s refused. Is it running?", name)
	default:
		return fmt.Sprintf("Could not connect to %s.", name)
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.deps.MCP == nil {
		writeError(w, http.StatusServiceUnavailable, "MCP server is not configured.", "", s.logger)
		return
	}
	models, err := s.deps.MCP.Models(r.Context())
	if err != nil {
		s.writeModelError(w, "Failed to fetch models from MCP.", err)
		return
	}
	if models == nil {
		models = []provider.ModelInfo{}
	}
	_ = writeJSON(w, http.StatusOK, models)
}

// modelName decodes and validates a ModelRequest. It writes the error
// response itself and returns false when the request is unusable.
func (s *Server) modelName(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.deps.ModelManager == nil {
		writeError(w, http.StatusServiceUnavailable, "Ollama server is not configured.", "", s.logger)
		return "", false
	}
	var req ModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.", err.Error(), s.logger)
		return "", false
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validateStruct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Model name is required", "", s.logger)
		return "", false
	}
	return req.Name, true
}

// writeModelError passes an upstream status through; anything else is a 500.
func (s *Server) writeModelError(w http.ResponseWriter, message string, err error) {
	s.logger.Error(message, zap.Error(err))
	var gbe *types.GenerationBackendError
	if errors.As(err, &gbe) && gbe.Status > 0 {
		writeError(w, gbe.Status, message, gbe.Body, s.logger)
		return
	}
	writeError(w, http.StatusInternalServerError, message, err.Error(), s.logger)
}

func (s *Server) handlePullModel(w http.ResponseWriter, r *http.Request) {
	name, ok := s.modelName(w, r)
	if !ok {
		return
	}

	body, err := s.deps.ModelManager.PullModel(r.Context(), name)
	if err != nil {
		s.writeModelError(w, "Failed to pull model", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	buf := make([]byte, 32*1024)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				s.logger.Debug("pull progress client gone", zap.String("model", name), zap.Error(werr))
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if errors.Is(rerr, io.EOF) {
			return
		}
		if rerr != nil {
			s.logger.Error("pull progress stream failed", zap.String("model", name), zap.Error(rerr))
			return
		}
	}
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	name, ok := s.modelName(w, r)
	if !ok {
		return
	}

	if err := s.deps.ModelManager.DeleteModel(r.Context(), name); err != nil {
		s.writeModelError(w, "Failed to delete model", err)
		return
	}
	_ = writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Successfully deleted model %s", name)})
}
