package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

func TestBaseURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"http://localhost:8008", "http://localhost:8008/v1"},
		{"http://localhost:8008/", "http://localhost:8008/v1"},
		{"http://localhost:8008/v1", "http://localhost:8008/v1"},
	}
	for _, tt := range tests {
		if got := baseURL(tt.in); got != tt.want {
			t.Errorf("baseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChatStream_SSE(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"Hel", "", "lo"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", tok)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, APIKey: "x"})
	s, err := c.ChatStream(context.Background(), provider.ChatRequest{
		Model:    "mcp-model",
		Messages: []types.ChatTurn{{Role: types.RoleSystem, Content: "be brief"}, {Role: types.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	defer s.Close()

	var sb strings.Builder
	for {
		tok, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		sb.WriteString(tok)
	}
	assert.Equal(t, "Hello", sb.String())
	assert.Equal(t, true, got["stream"])
	assert.Len(t, got["messages"], 2)
}

func TestChatStream_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"error":{"message":"upstream down","type":"server_error"}}`)
	}))
	defer srv.Close()

	_, err := New(Config{Endpoint: srv.URL, APIKey: "x"}).ChatStream(context.Background(), provider.ChatRequest{Model: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrGenerationBackend)

	var gbe *types.GenerationBackendError
	require.True(t, errors.As(err, &gbe))
	assert.Equal(t, http.StatusBadGateway, gbe.Status)
}

func TestModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"llama3","object":"model"},{"id":"qwen2","object":"model"}]}`)
	}))
	defer srv.Close()

	models, err := New(Config{Endpoint: srv.URL, APIKey: "x"}).Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []provider.ModelInfo{{ID: "llama3", Name: "llama3"}, {ID: "qwen2", Name: "qwen2"}}, models)
}
