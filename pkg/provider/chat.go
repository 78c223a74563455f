package provider

import (
	"context"

	"github.com/spetr/ragchat/pkg/types"
)

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string
	Messages    []types.ChatTurn
	Temperature *float64 // nil leaves the backend default
	Format      string   // "json" requests a JSON-only answer
}

// ChatStream yields answer fragments in order. Recv returns io.EOF after the
// last fragment.
type ChatStream interface {
	Recv() (string, error)
	Close() error
}

// ModelInfo describes a model offered by a chat backend.
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChatModel talks to a text generation backend.
type ChatModel interface {
	// Name returns the backend name (e.g., "ollama", "openai").
	Name() string

	// Chat performs a non-streaming completion and returns the whole answer.
	Chat(ctx context.Context, req ChatRequest) (string, error)

	// ChatStream starts a streaming completion. Errors that happen before the
	// first fragment (connection, non-2xx status) are returned here.
	ChatStream(ctx context.Context, req ChatRequest) (ChatStream, error)

	// Models lists the models the backend serves.
	Models(ctx context.Context) ([]ModelInfo, error)

	// Ping checks that the backend answers.
	Ping(ctx context.Context) error

	Close() error
}

// ChatConfig contains configuration for chat backends.
type ChatConfig struct {
	Provider string // "ollama", "openai"
	Endpoint string
	APIKey   string
}
