// Package openai implements ChatModel for OpenAI-compatible servers, such as
// an MCP chat gateway exposing /v1/chat/completions.
package openai

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

// DefaultEndpoint is the local MCP gateway address.
const DefaultEndpoint = "http://localhost:8008"

// Config contains OpenAI-compatible chat configuration.
type Config struct {
	// Endpoint is the server root; "/v1" is appended unless already present.
	Endpoint string
	APIKey   string // If empty, uses OPENAI_API_KEY env var
}

// Client implements provider.ChatModel with go-openai.
type Client struct {
	client *openai.Client
}

// New creates a new OpenAI-compatible chat client.
func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = baseURL(cfg.Endpoint)

	return &Client{client: openai.NewClientWithConfig(clientConfig)}
}

func baseURL(endpoint string) string {
	endpoint = strings.TrimRight(endpoint, "/")
	if strings.HasSuffix(endpoint, "/v1") {
		return endpoint
	}
	return endpoint + "/v1"
}

// Name returns the backend name.
func (c *Client) Name() string {
	return "openai"
}

func buildRequest(req provider.ChatRequest, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	out := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   stream,
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	if req.Format == "json" {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return out
}

// backendError maps go-openai errors onto the generation error type.
func backendError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &types.GenerationBackendError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &types.GenerationBackendError{Status: reqErr.HTTPStatusCode, Body: string(reqErr.Body), Err: reqErr.Err}
	}
	return &types.GenerationBackendError{Err: err}
}

// Chat performs a non-streaming completion.
func (c *Client) Chat(ctx context.Context, req provider.ChatRequest) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, buildRequest(req, false))
	if err != nil {
		return "", backendError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &types.GenerationBackendError{Body: "response contained no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatStream starts a streaming completion over server-sent events.
func (c *Client) ChatStream(ctx context.Context, req provider.ChatRequest) (provider.ChatStream, error) {
	s, err := c.client.CreateChatCompletionStream(ctx, buildRequest(req, true))
	if err != nil {
		return nil, backendError(err)
	}
	return &stream{s: s}, nil
}

type stream struct {
	s *openai.ChatCompletionStream
}

func (s *stream) Recv() (string, error) {
	for {
		resp, err := s.s.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", backendError(err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *stream) Close() error {
	return s.s.Close()
}

// Models lists the server's models.
func (c *Client) Models(ctx context.Context) ([]provider.ModelInfo, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, backendError(err)
	}
	models := make([]provider.ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, provider.ModelInfo{ID: m.ID, Name: m.ID})
	}
	return models, nil
}

// Ping checks that the server answers the models listing.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.ListModels(ctx)
	return err
}

// Close releases resources.
func (c *Client) Close() error {
	return nil
}

var _ provider.ChatModel = (*Client)(nil)
