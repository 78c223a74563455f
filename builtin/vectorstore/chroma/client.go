// Package chroma implements VectorStore on top of the ChromaDB REST API.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spetr/ragchat/pkg/types"
)

// DefaultURL is the local ChromaDB address.
const DefaultURL = "http://localhost:8000"

// Auth methods.
const (
	AuthNone  = ""
	AuthToken = "token"
	AuthBasic = "basic"
)

// ClientConfig contains connection settings.
type ClientConfig struct {
	URL        string
	AuthMethod string
	Token      string
	Username   string
	Password   string
	Tenant     string
	Database   string
	HTTPClient *http.Client
}

// Client is a minimal REST client for ChromaDB's v1 API.
type Client struct {
	base   string
	cfg    ClientConfig
	client *http.Client
}

// NewClient creates a new ChromaDB client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		base:   strings.TrimRight(cfg.URL, "/") + "/api/v1",
		cfg:    cfg,
		client: client,
	}
}

// collection is Chroma's collection model.
type collection struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

func (c collection) toType() types.Collection {
	return types.Collection{ID: c.ID, Name: c.Name, Metadata: c.Metadata}
}

type addRequest struct {
	IDs        []string         `json:"ids"`
	Embeddings [][]float32      `json:"embeddings"`
	Documents  []string         `json:"documents"`
	Metadatas  []map[string]any `json:"metadatas"`
}

type queryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]*string        `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

// apiError is a non-2xx Chroma response.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("chroma returned status %d: %s", e.status, e.body)
}

func (e *apiError) notFound() bool {
	if e.status == http.StatusNotFound {
		return true
	}
	b := strings.ToLower(e.body)
	return strings.Contains(b, "does not exist") || strings.Contains(b, "not found")
}

func (e *apiError) conflict() bool {
	if e.status == http.StatusConflict {
		return true
	}
	return strings.Contains(strings.ToLower(e.body), "already exists")
}

func (c *Client) tenantQuery() string {
	q := url.Values{}
	if c.cfg.Tenant != "" {
		q.Set("tenant", c.cfg.Tenant)
	}
	if c.cfg.Database != "" {
		q.Set("database", c.cfg.Database)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch c.cfg.AuthMethod {
	case AuthToken:
		if c.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		}
	case AuthBasic:
		if c.cfg.Username != "" && c.cfg.Password != "" {
			req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return &apiError{status: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Heartbeat calls GET /heartbeat.
func (c *Client) Heartbeat(ctx context.Context) error {
	var out map[string]any
	return c.do(ctx, http.MethodGet, "/heartbeat", nil, &out)
}

// ListCollections calls GET /collections.
func (c *Client) ListCollections(ctx context.Context) ([]collection, error) {
	var out []collection
	err := c.do(ctx, http.MethodGet, "/collections"+c.tenantQuery(), nil, &out)
	return out, err
}

// GetCollection calls GET /collections/{name}.
func (c *Client) GetCollection(ctx context.Context, name string) (*collection, error) {
	var out collection
	if err := c.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(name)+c.tenantQuery(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCollection calls POST /collections.
func (c *Client) CreateCollection(ctx context.Context, name string, getOrCreate bool) (*collection, error) {
	in := map[string]any{"name": name, "get_or_create": getOrCreate}
	var out collection
	if err := c.do(ctx, http.MethodPost, "/collections"+c.tenantQuery(), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCollection calls DELETE /collections/{name}.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/collections/"+url.PathEscape(name)+c.tenantQuery(), nil, nil)
}

// Add calls POST /collections/{id}/add.
func (c *Client) Add(ctx context.Context, id string, req addRequest) error {
	return c.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(id)+"/add", req, nil)
}

// Query calls POST /collections/{id}/query.
func (c *Client) Query(ctx context.Context, id string, req queryRequest) (*queryResponse, error) {
	var out queryResponse
	if err := c.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(id)+"/query", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
