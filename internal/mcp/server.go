// Package mcp exposes the RAG pipeline and the document collections as MCP
// tools, so assistants can query the knowledge base over stdio.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/spetr/ragchat/internal/index"
	"github.com/spetr/ragchat/internal/rag"
	"github.com/spetr/ragchat/internal/stream"
	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

const defaultSearchLimit = 5

// Server implements the MCP server.
type Server struct {
	mcpServer *server.MCPServer
	rag       *rag.Orchestrator
	store     provider.VectorStore
	chat      provider.ChatModel
	indexer   *index.Indexer
	model     string
	timeout   time.Duration
	logger    *zap.Logger
}

// Config contains server configuration.
type Config struct {
	Version       string
	RAG           *rag.Orchestrator
	Store         provider.VectorStore
	Chat          provider.ChatModel
	Indexer       *index.Indexer // nil disables the ingest_text tool
	DefaultModel  string
	StatusTimeout time.Duration
	Logger        *zap.Logger
}

// New creates a new MCP server.
func New(cfg Config) (*Server, error) {
	if cfg.RAG == nil || cfg.Store == nil {
		return nil, errors.New("mcp server needs a RAG pipeline and a vector store")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = 3 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		rag:     cfg.RAG,
		store:   cfg.Store,
		chat:    cfg.Chat,
		indexer: cfg.Indexer,
		model:   cfg.DefaultModel,
		timeout: cfg.StatusTimeout,
		logger:  cfg.Logger,
	}

	mcpServer := server.NewMCPServer(
		"ragchat",
		cfg.Version,
		server.WithLogging(),
	)
	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s, nil
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("rag_query",
		mcp.WithDescription("Answer a question from the documents of a collection. Returns the answer and the sources it was grounded on."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Question to answer")),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection to retrieve context from")),
		mcp.WithString("model", mcp.Description("Chat model (default from configuration)")),
		mcp.WithString("system_prompt", mcp.Description("Instructions placed before the retrieved context")),
		mcp.WithBoolean("rerank", mcp.Description("Rerank retrieved documents (default true)")),
	), s.handleRAGQuery)

	mcpServer.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Semantic search in a collection without generating an answer"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection to search")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 5)")),
	), s.handleSearchDocuments)

	mcpServer.AddTool(mcp.NewTool("list_collections",
		mcp.WithDescription("List the document collections of the vector store"),
	), s.handleListCollections)

	if s.indexer != nil {
		mcpServer.AddTool(mcp.NewTool("ingest_text",
			mcp.WithDescription("Chunk, embed and store a text in a collection (created if missing)"),
			mcp.WithString("collection", mcp.Required(), mcp.Description("Target collection")),
			mcp.WithString("text", mcp.Required(), mcp.Description("Plain text to ingest")),
			mcp.WithString("source", mcp.Description("Source name stored with every chunk (default \"mcp\")")),
		), s.handleIngestText)
	}

	mcpServer.AddTool(mcp.NewTool("get_status",
		mcp.WithDescription("Check that the vector store and the chat backend answer"),
	), s.handleGetStatus)
}

// ragQueryResult is the rag_query payload.
type ragQueryResult struct {
	Answer  string           `json:"answer"`
	Sources []types.Document `json:"sources"`
	Rerank  string           `json:"rerank"`
}

func (s *Server) handleRAGQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	collection := req.GetString("collection", "")
	if collection == "" {
		return mcp.NewToolResultError("collection is required"), nil
	}

	r := rag.Request{
		Query:           query,
		Collection:      collection,
		Model:           req.GetString("model", s.model),
		EnableReranking: req.GetBool("rerank", true),
	}
	if p := req.GetString("system_prompt", ""); p != "" {
		r.SystemPrompt = &p
	}

	prepared, err := s.rag.Prepare(ctx, r)
	if err != nil {
		return toolError("rag query failed", err), nil
	}

	var answer bytes.Buffer
	if err := s.rag.Stream(ctx, prepared, stream.NewWriter(&answer, stream.FramingNone)); err != nil {
		s.logger.Warn("rag answer interrupted", zap.String("collection", collection), zap.Error(err))
		return toolError("answer generation failed", err), nil
	}

	return jsonResult(ragQueryResult{
		Answer:  answer.String(),
		Sources: prepared.Sources,
		Rerank:  string(prepared.Rerank),
	})
}

func (s *Server) handleSearchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	collection := req.GetString("collection", "")
	if collection == "" {
		return mcp.NewToolResultError("collection is required"), nil
	}
	limit := req.GetInt("limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	docs, err := s.store.Query(ctx, collection, query, limit)
	if err != nil {
		return toolError("search failed", err), nil
	}
	if docs == nil {
		docs = []types.Document{}
	}
	return jsonResult(docs)
}

func (s *Server) handleListCollections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cols, err := s.store.ListCollections(ctx)
	if err != nil {
		return toolError("failed to list collections", err), nil
	}
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	return jsonResult(map[string]any{
		"collections": names,
		"count":       len(names),
	})
}

func (s *Server) handleIngestText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	collection := req.GetString("collection", "")
	if collection == "" {
		return mcp.NewToolResultError("collection is required"), nil
	}
	source := req.GetString("source", "mcp")

	result, err := s.indexer.IngestText(ctx, collection, source, req.GetString("text", ""))
	if err != nil {
		return toolError("ingest failed", err), nil
	}
	return jsonResult(result)
}

// componentStatus reports one backend in get_status.
type componentStatus struct {
	Name   string `json:"name"`
	Online bool   `json:"online"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleGetStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	status := []componentStatus{check("vector store ("+s.store.Name()+")", s.store.Heartbeat(ctx))}
	if s.chat != nil {
		status = append(status, check("chat backend ("+s.chat.Name()+")", s.chat.Ping(ctx)))
	}
	return jsonResult(map[string]any{"components": status})
}

func check(name string, err error) componentStatus {
	st := componentStatus{Name: name, Online: err == nil}
	if err != nil {
		st.Error = err.Error()
	}
	return st
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func toolError(msg string, err error) *mcp.CallToolResult {
	if errors.Is(err, types.ErrCollectionNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: collection not found", msg))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", msg, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
