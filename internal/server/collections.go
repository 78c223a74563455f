package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/spetr/ragchat/internal/index"
	"github.com/spetr/ragchat/pkg/types"
)

// CreateCollectionRequest is the body of POST /api/rag/collections.
type CreateCollectionRequest struct {
	Name string `json:"name" validate:"required"`
}

// StatusResponse reports whether an upstream service answers.
type StatusResponse struct {
	Online  bool   `json:"online"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.deps.Store.ListCollections(r.Context())
	if err != nil {
		handleServiceError(w, err, s.logger)
		return
	}
	if cols == nil {
		cols = []types.Collection{}
	}
	_ = writeJSON(w, http.StatusOK, cols)
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req CreateCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.", err.Error(), s.logger)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validateStruct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Collection name is required", "", s.logger)
		return
	}

	col, err := s.deps.Store.CreateCollection(r.Context(), req.Name)
	if errors.Is(err, types.ErrCollectionExists) {
		writeError(w, http.StatusConflict, fmt.Sprintf("Collection '%s' already exists.", req.Name), "", s.logger)
		return
	}
	if err != nil {
		handleServiceError(w, err, s.logger)
		return
	}
	_ = writeJSON(w, http.StatusOK, col)
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "Collection name is required", "", s.logger)
		return
	}
	if err := s.deps.Store.DeleteCollection(r.Context(), name); err != nil {
		handleServiceError(w, err, s.logger)
		return
	}
	_ = writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Collection %q deleted.", name)})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize)
	if err := r.ParseMultipartForm(s.opts.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large.", err.Error(), s.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form.", err.Error(), s.logger)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded.", "", s.logger)
		return
	}
	defer file.Close()

	collection := strings.TrimSpace(r.FormValue("collectionName"))
	if collection == "" {
		writeError(w, http.StatusBadRequest, "No collection name provided.", "", s.logger)
		return
	}

	if !isPlainText(header.Header.Get("Content-Type"), header.Filename) {
		writeError(w, http.StatusBadRequest, "Only .txt files are supported.", "", s.logger)
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file.", err.Error(), s.logger)
		return
	}

	res, err := s.deps.Indexer.IngestText(r.Context(), collection, header.Filename, string(content))
	if err != nil {
		handleServiceError(w, err, s.logger)
		return
	}
	_ = writeJSON(w, http.StatusOK, map[string]any{
		"message": "File processed successfully.",
		"count":   res.Chunks,
	})
}

// isPlainText accepts text/plain parts and, when the client sent a generic
// type, .txt file names.
func isPlainText(contentType, filename string) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if mt == "text/plain" {
			return true
		}
		if mt != "application/octet-stream" {
			return false
		}
	}
	return index.IsTextFile(filename)
}

func (s *Server) handleRAGStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.HealthTimeout)
	defer cancel()

	resp := StatusResponse{Online: true, Message: "Connection successful."}
	if err := s.deps.Store.Heartbeat(ctx); err != nil {
		resp = StatusResponse{Online: false, Message: connectMessage("vector store", err), Details: err.Error()}
	}
	_ = writeJSON(w, http.StatusOK, resp)
}
