// Package ollama implements ChatModel against Ollama's /api/chat endpoint.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

// DefaultEndpoint is the local Ollama address.
const DefaultEndpoint = "http://localhost:11434"

// Config contains Ollama chat configuration.
type Config struct {
	Endpoint   string
	HTTPClient *http.Client
}

// Client implements provider.ChatModel for Ollama.
type Client struct {
	endpoint string
	client   *http.Client
}

// New creates a new Ollama chat client.
func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		// No client timeout: generations are bounded by the request context.
		client = &http.Client{}
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   client,
	}
}

// Name returns the backend name.
func (c *Client) Name() string {
	return "ollama"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

func buildRequest(req provider.ChatRequest, stream bool) chatRequest {
	msgs := make([]chatMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	out := chatRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   stream,
		Format:   req.Format,
	}
	if req.Temperature != nil {
		out.Options = &chatOptions{Temperature: req.Temperature}
	}
	return out
}

// post sends a chat request and returns the response on 2xx.
func (c *Client) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &types.GenerationBackendError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, &types.GenerationBackendError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// Chat performs a non-streaming completion.
func (c *Client) Chat(ctx context.Context, req provider.ChatRequest) (string, error) {
	resp, err := c.post(ctx, buildRequest(req, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &types.GenerationBackendError{Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if result.Error != "" {
		return "", &types.GenerationBackendError{Status: resp.StatusCode, Body: result.Error}
	}
	return result.Message.Content, nil
}

// ChatStream starts a streaming completion. Ollama answers with one JSON
// object per line; the object with done=true ends the stream.
func (c *Client) ChatStream(ctx context.Context, req provider.ChatRequest) (provider.ChatStream, error) {
	resp, err := c.post(ctx, buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	return &stream{body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

type stream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	done   bool
}

func (s *stream) Recv() (string, error) {
	for !s.done {
		line, err := s.reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var chunk chatResponse
			if jerr := json.Unmarshal(line, &chunk); jerr != nil {
				// A malformed line is skipped; the rest of the stream may still be good.
				if err == nil {
					continue
				}
			} else {
				if chunk.Error != "" {
					s.done = true
					return "", &types.GenerationBackendError{Body: chunk.Error}
				}
				if chunk.Done {
					s.done = true
				}
				if chunk.Message.Content != "" {
					return chunk.Message.Content, nil
				}
			}
		}
		if err != nil {
			s.done = true
			if errors.Is(err, io.EOF) {
				break
			}
			return "", &types.GenerationBackendError{Err: err}
		}
	}
	return "", io.EOF
}

func (s *stream) Close() error {
	return s.body.Close()
}

// Models lists locally installed models via /api/tags.
func (c *Client) Models(ctx context.Context) ([]provider.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &types.GenerationBackendError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &types.GenerationBackendError{Status: resp.StatusCode, Body: string(body)}
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode models: %w", err)
	}

	models := make([]provider.ModelInfo, 0, len(result.Models))
	for _, m := range result.Models {
		models = append(models, provider.ModelInfo{ID: m.Name, Name: m.Name})
	}
	return models, nil
}

// Ping checks that Ollama answers /api/tags.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server responded with status: %d", resp.StatusCode)
	}
	return nil
}

type modelRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream,omitempty"`
}

// do sends a JSON request to a model management endpoint and returns the
// response on 2xx. Other statuses are reported with the upstream body.
func (c *Client) do(ctx context.Context, method, path string, body modelRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &types.GenerationBackendError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, &types.GenerationBackendError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// PullModel starts downloading a model. The returned body carries Ollama's
// newline-delimited progress objects; the caller closes it.
func (c *Client) PullModel(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/pull", modelRequest{Name: name, Stream: true})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// DeleteModel removes a locally installed model.
func (c *Client) DeleteModel(ctx context.Context, name string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/delete", modelRequest{Name: name})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Close releases resources.
func (c *Client) Close() error {
	return nil
}

var _ provider.ChatModel = (*Client)(nil)
