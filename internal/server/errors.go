package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/spetr/ragchat/pkg/types"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, details string, logger *zap.Logger) {
	if err := writeJSON(w, status, ErrorResponse{Error: message, Details: details}); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}

// statusFor maps an error onto its HTTP status and public message.
func statusFor(err error) (int, string) {
	var gbe *types.GenerationBackendError
	switch {
	case errors.Is(err, types.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, types.ErrCollectionNotFound):
		return http.StatusNotFound, "Collection not found."
	case errors.Is(err, types.ErrCollectionExists):
		return http.StatusConflict, "Collection already exists."
	case errors.As(err, &gbe):
		return http.StatusInternalServerError, "Generation backend failed."
	case errors.Is(err, types.ErrEmbeddingBackend):
		return http.StatusInternalServerError, "Embedding backend failed."
	case errors.Is(err, types.ErrVectorStore):
		return http.StatusInternalServerError, "Vector store failed."
	default:
		return http.StatusInternalServerError, "Failed to process request."
	}
}

// handleServiceError writes err as a JSON error response. Upstream
// diagnostics go to details.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	status, message := statusFor(err)
	details := err.Error()
	if status == http.StatusBadRequest {
		details = ""
	}
	var gbe *types.GenerationBackendError
	if errors.As(err, &gbe) && gbe.Body != "" {
		details = gbe.Body
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, message, details, logger)
}
