package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spetr/ragchat/builtin/chunking/simple"
	"github.com/spetr/ragchat/builtin/reranker/llm"
	"github.com/spetr/ragchat/internal/index"
	"github.com/spetr/ragchat/internal/metrics"
	"github.com/spetr/ragchat/internal/rag"
	"github.com/spetr/ragchat/internal/stream"
	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/provider/providertest"
	"github.com/spetr/ragchat/pkg/types"
)

type testEnv struct {
	store  *providertest.VectorStore
	ollama *providertest.ChatModel
	mcp    *providertest.ChatModel
	models *fakeModels
	srv    *httptest.Server
}

type fakeModels struct {
	progress string
	err      error
	pulled   []string
	deleted  []string
}

func (f *fakeModels) PullModel(ctx context.Context, name string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.pulled = append(f.pulled, name)
	return io.NopCloser(strings.NewReader(f.progress)), nil
}

func (f *fakeModels) DeleteModel(ctx context.Context, name string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, name)
	return nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  &providertest.VectorStore{},
		ollama: &providertest.ChatModel{},
		mcp:    &providertest.ChatModel{},
		models: &fakeModels{},
	}
	m := metrics.New()
	orch := rag.New(rag.Backends{
		Store:    env.store,
		Reranker: llm.New(llm.Config{}, env.ollama),
		Chat:     env.ollama,
	}, rag.Options{}, nil, m)

	s := New(Deps{
		RAG:     orch,
		Store:   env.store,
		Ollama:  env.ollama,
		MCP:     env.mcp,
		Indexer: index.New(index.Config{Store: env.store, Chunker: simple.New(simple.Config{Size: 1000, Overlap: 200})}),
		Metrics: m,

		ModelManager: env.models,
	}, Options{})
	env.srv = httptest.NewServer(s.Handler())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header map[string]string) *http.Response {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	return e
}

func seeded(n int) []types.Document {
	docs := make([]types.Document, n)
	for i := range docs {
		docs[i] = types.Document{ID: fmt.Sprintf("doc-%d", i), Text: fmt.Sprintf("text %d", i), Metadata: map[string]any{}}
	}
	return docs
}

func chatBody(mode string) map[string]any {
	body := map[string]any{
		"model":      "llama3",
		"collection": "policies",
		"messages": []map[string]string{
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": "hello"},
			{"role": "user", "content": "What is the refund policy?"},
		},
	}
	if mode != "" {
		body["connectionMode"] = mode
	}
	return body
}

func isRanking(req provider.ChatRequest) bool    { return req.Format == "json" }
func isGeneration(req provider.ChatRequest) bool { return req.Format == "" }

func TestChat_RAGSentinel(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("Query", mock.Anything, "policies", "What is the refund policy?", 10).Return(seeded(3), nil)
	env.ollama.On("Chat", mock.Anything, mock.MatchedBy(isRanking)).Return(`{"ranked_ids":["doc-2","doc-0"]}`, nil)
	env.ollama.On("ChatStream", mock.Anything, mock.MatchedBy(isGeneration)).
		Return(&providertest.TokenStream{Tokens: []string{"Within ", "30 days."}}, nil)

	resp := env.do(t, http.MethodPost, "/api/chat", chatBody(""), map[string]string{stream.Header: "sentinel"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "sentinel", resp.Header.Get(stream.Header))

	body := readBody(t, resp)
	parts := strings.SplitN(body, stream.Separator, 2)
	require.Len(t, parts, 2)

	var sources []types.Document
	require.NoError(t, json.Unmarshal([]byte(parts[0]), &sources))
	require.Len(t, sources, 2)
	assert.Equal(t, "doc-2", sources[0].ID)
	assert.Equal(t, "doc-0", sources[1].ID)
	assert.Equal(t, "Within 30 days.", parts[1])
}

func TestChat_RAGDefaultFraming(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("Query", mock.Anything, "policies", mock.Anything, 10).Return(seeded(2), nil)
	env.ollama.On("ChatStream", mock.Anything, mock.Anything).
		Return(&providertest.TokenStream{Tokens: []string{"answer"}}, nil)

	body := chatBody(ModeRAG)
	body["enableReranking"] = false
	resp := env.do(t, http.MethodPost, "/api/chat", body, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "length-prefixed", resp.Header.Get(stream.Header))

	var sources []types.Document
	var text strings.Builder
	require.NoError(t, stream.Decode(resp.Body, stream.FramingLengthPrefixed,
		func(d []types.Document) { sources = d },
		func(s string) { text.WriteString(s) }))
	assert.Len(t, sources, 2)
	assert.Equal(t, "answer", text.String())
	env.ollama.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestChat_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		header map[string]string
	}{
		{"missing collection", func(b map[string]any) { delete(b, "collection") }, nil},
		{"missing model", func(b map[string]any) { delete(b, "model") }, nil},
		{"missing messages", func(b map[string]any) { delete(b, "messages") }, nil},
		{"empty messages", func(b map[string]any) { b["messages"] = []any{} }, nil},
		{"invalid mode", func(b map[string]any) { b["connectionMode"] = "telepathy" }, nil},
		{"invalid role", func(b map[string]any) {
			b["messages"] = []map[string]string{{"role": "robot", "content": "x"}}
		}, nil},
		{"temperature out of range", func(b map[string]any) { b["temperature"] = 5 }, nil},
		{"no user turn", func(b map[string]any) {
			b["messages"] = []map[string]string{{"role": "assistant", "content": "x"}}
		}, nil},
		{"unknown framing", func(map[string]any) {}, map[string]string{stream.Header: "carrier-pigeon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			body := chatBody("")
			tt.mutate(body)

			resp := env.do(t, http.MethodPost, "/api/chat", body, tt.header)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, decodeError(t, resp).Error)
			env.store.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestChat_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/chat", "{", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChat_CollectionNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("Query", mock.Anything, "policies", mock.Anything, 10).
		Return(nil, fmt.Errorf("collection %q: %w", "policies", types.ErrCollectionNotFound))

	resp := env.do(t, http.MethodPost, "/api/chat", chatBody(""), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	env.ollama.AssertNotCalled(t, "ChatStream", mock.Anything, mock.Anything)
}

func TestChat_BackendFailures(t *testing.T) {
	tests := []struct {
		name       string
		storeErr   error
		streamErr  error
		wantStatus int
		wantDetail string
	}{
		{"embedding backend", fmt.Errorf("embed: %w", types.ErrEmbeddingBackend), nil, http.StatusInternalServerError, "embed"},
		{"vector store", fmt.Errorf("query: %w", types.ErrVectorStore), nil, http.StatusInternalServerError, "query"},
		{"generation backend", nil, &types.GenerationBackendError{Status: 404, Body: "model 'x' not found"}, http.StatusInternalServerError, "model 'x' not found"},
		{"unexpected", errors.New("boom"), nil, http.StatusInternalServerError, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.storeErr != nil {
				env.store.On("Query", mock.Anything, "policies", mock.Anything, 10).Return(nil, tt.storeErr)
			} else {
				env.store.On("Query", mock.Anything, "policies", mock.Anything, 10).Return(seeded(1), nil)
				env.ollama.On("ChatStream", mock.Anything, mock.Anything).Return(nil, tt.streamErr)
			}

			body := chatBody("")
			body["enableReranking"] = false
			resp := env.do(t, http.MethodPost, "/api/chat", body, nil)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			e := decodeError(t, resp)
			assert.NotEmpty(t, e.Error)
			if tt.wantDetail != "" {
				assert.Contains(t, e.Details, tt.wantDetail)
			}
		})
	}
}

func TestChat_DirectMode(t *testing.T) {
	env := newTestEnv(t)
	var got provider.ChatRequest
	env.ollama.On("ChatStream", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(provider.ChatRequest) }).
		Return(&providertest.TokenStream{Tokens: []string{"Hello", " there"}}, nil)

	body := chatBody(ModeDirect)
	delete(body, "collection")
	body["systemPrompt"] = "Be terse."
	resp := env.do(t, http.MethodPost, "/api/chat", body, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello there", readBody(t, resp))
	assert.Equal(t, "none", resp.Header.Get(stream.Header))

	require.Len(t, got.Messages, 4)
	assert.Equal(t, types.ChatTurn{Role: types.RoleSystem, Content: "Be terse."}, got.Messages[0])
	assert.Equal(t, "What is the refund policy?", got.Messages[3].Content)
	env.mcp.AssertNotCalled(t, "ChatStream", mock.Anything, mock.Anything)
	env.store.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestChat_MCPMode(t *testing.T) {
	env := newTestEnv(t)
	env.mcp.On("ChatStream", mock.Anything, mock.Anything).
		Return(&providertest.TokenStream{Tokens: []string{"via mcp"}}, nil)

	resp := env.do(t, http.MethodPost, "/api/chat", chatBody(ModeMCP), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "via mcp", readBody(t, resp))
	env.ollama.AssertNotCalled(t, "ChatStream", mock.Anything, mock.Anything)
}

func TestChat_MCPModeBackendDown(t *testing.T) {
	env := newTestEnv(t)
	env.mcp.On("ChatStream", mock.Anything, mock.Anything).
		Return(nil, &types.GenerationBackendError{Status: 503, Body: "unavailable"})

	resp := env.do(t, http.MethodPost, "/api/chat", chatBody(ModeMCP), nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "unavailable", decodeError(t, resp).Details)
}

func TestCollections(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("ListCollections", mock.Anything).Return([]types.Collection{{ID: "1", Name: "policies"}}, nil)
	env.store.On("CreateCollection", mock.Anything, "manuals").Return(&types.Collection{ID: "2", Name: "manuals"}, nil)
	env.store.On("CreateCollection", mock.Anything, "policies").Return(nil, fmt.Errorf("create: %w", types.ErrCollectionExists))
	env.store.On("DeleteCollection", mock.Anything, "manuals").Return(nil)
	env.store.On("DeleteCollection", mock.Anything, "ghost").Return(fmt.Errorf("delete: %w", types.ErrCollectionNotFound))

	resp := env.do(t, http.MethodGet, "/api/rag/collections", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cols []types.Collection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cols))
	assert.Equal(t, "policies", cols[0].Name)

	resp = env.do(t, http.MethodPost, "/api/rag/collections", map[string]string{"name": "manuals"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/rag/collections", map[string]string{"name": "policies"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Collection 'policies' already exists.", decodeError(t, resp).Error)

	resp = env.do(t, http.MethodPost, "/api/rag/collections", map[string]string{"name": " "}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/rag/collections?name=manuals", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), `deleted.`)

	resp = env.do(t, http.MethodDelete, "/api/rag/collections?name=ghost", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/rag/collections", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func uploadRequest(t *testing.T, url, filename, contentType, collection string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	if collection != "" {
		require.NoError(t, mw.WriteField("collectionName", collection))
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url+"/api/rag/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("GetOrCreateCollection", mock.Anything, "policies").Return(&types.Collection{Name: "policies"}, nil)

	var added []types.Document
	env.store.On("Add", mock.Anything, "policies", mock.Anything).
		Run(func(args mock.Arguments) { added = append(added, args.Get(2).([]types.Document)...) }).
		Return(nil)

	content := []byte(strings.Repeat("a", 2500))
	resp, err := http.DefaultClient.Do(uploadRequest(t, env.srv.URL, "refunds.txt", "text/plain", "policies", content))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Message string `json:"message"`
		Count   int    `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "File processed successfully.", out.Message)
	// 2500 chars, window 1000, step 800: [0,1000) [800,1800) [1600,2500)
	assert.Equal(t, 3, out.Count)
	require.Len(t, added, 3)
	assert.True(t, strings.HasPrefix(added[0].ID, "refunds.txt-"))
	assert.True(t, strings.HasSuffix(added[2].ID, "-2"))
	assert.Equal(t, "refunds.txt", added[0].Source())
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		collection  string
		content     string
		want        string
	}{
		{"no file", "", "", "policies", "", "No file uploaded."},
		{"no collection", "a.txt", "text/plain", "", "x", "No collection name provided."},
		{"pdf", "a.pdf", "application/pdf", "policies", "x", "Only .txt files are supported."},
		{"empty", "a.txt", "text/plain", "policies", "", "file: file is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp, err := http.DefaultClient.Do(uploadRequest(t, env.srv.URL, tt.filename, tt.contentType, tt.collection, []byte(tt.content)))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.want, decodeError(t, resp).Error)
			env.store.AssertNotCalled(t, "Add", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestIsPlainText(t *testing.T) {
	assert.True(t, isPlainText("text/plain; charset=utf-8", "notes"))
	assert.True(t, isPlainText("application/octet-stream", "notes.txt"))
	assert.True(t, isPlainText("", "notes.TXT"))
	assert.False(t, isPlainText("application/pdf", "notes.txt"))
	assert.False(t, isPlainText("", "notes.md"))
}

func TestRAGStatus(t *testing.T) {
	env := newTestEnv(t)
	env.store.On("Heartbeat", mock.Anything).Return(nil).Once()
	env.store.On("Heartbeat", mock.Anything).Return(context.DeadlineExceeded).Once()

	var st StatusResponse
	resp := env.do(t, http.MethodGet, "/api/rag/status", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.True(t, st.Online)

	resp = env.do(t, http.MethodGet, "/api/rag/status", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.False(t, st.Online)
	assert.Equal(t, "Connection to vector store timed out.", st.Message)
}

func TestBackendStatus(t *testing.T) {
	env := newTestEnv(t)
	env.ollama.On("Ping", mock.Anything).Return(nil)
	env.mcp.On("Ping", mock.Anything).Return(errors.New("dial tcp: no such host"))

	var st StatusResponse
	resp := env.do(t, http.MethodGet, "/api/ollama/status?mode=direct", nil, nil)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.True(t, st.Online)
	assert.Equal(t, "DIRECT server is responsive.", st.Message)

	st = StatusResponse{}
	resp = env.do(t, http.MethodGet, "/api/ollama/status", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.False(t, st.Online)
	assert.Equal(t, "Could not connect to MCP server.", st.Message)
	assert.Contains(t, st.Details, "no such host")

	resp = env.do(t, http.MethodGet, "/api/ollama/status?mode=smoke", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestModels(t *testing.T) {
	env := newTestEnv(t)
	env.mcp.On("Models", mock.Anything).Return([]provider.ModelInfo{{ID: "gpt-4o", Name: "gpt-4o"}}, nil).Once()
	env.mcp.On("Models", mock.Anything).Return(nil, errors.New("connection refused")).Once()

	resp := env.do(t, http.MethodGet, "/api/ollama/models", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"id":"gpt-4o","name":"gpt-4o"}]`, readBody(t, resp))

	resp = env.do(t, http.MethodGet, "/api/ollama/models", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp).Details, "connection refused")
}

func TestDeprecatedRAGChat(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/rag/chat", map[string]string{}, nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp).Error, "/api/chat")
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// one failed chat so the counter has a sample
	env.do(t, http.MethodPost, "/api/chat", map[string]any{}, nil)

	resp = env.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), `ragchat_chat_requests_total{mode="rag",result="error"} 1`)
}

func TestPullModel(t *testing.T) {
	env := newTestEnv(t)
	env.models.progress = `{"status":"pulling manifest"}` + "\n" + `{"status":"success"}` + "\n"

	resp := env.do(t, http.MethodPost, "/api/ollama/pull", map[string]string{"name": "llama3"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, env.models.progress, readBody(t, resp))
	assert.Equal(t, []string{"llama3"}, env.models.pulled)
}

func TestPullModel_MissingName(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/ollama/pull", map[string]string{"name": " "}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Model name is required", decodeError(t, resp).Error)
	assert.Empty(t, env.models.pulled)
}

func TestPullModel_UpstreamStatus(t *testing.T) {
	env := newTestEnv(t)
	env.models.err = &types.GenerationBackendError{Status: 404, Body: "pull model manifest: file does not exist"}

	resp := env.do(t, http.MethodPost, "/api/ollama/pull", map[string]string{"name": "nope"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	e := decodeError(t, resp)
	assert.Equal(t, "Failed to pull model", e.Error)
	assert.Contains(t, e.Details, "file does not exist")
}

func TestDeleteModel(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/ollama/delete", map[string]string{"name": "llama3"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Successfully deleted model llama3"}`, readBody(t, resp))
	assert.Equal(t, []string{"llama3"}, env.models.deleted)

	resp = env.do(t, http.MethodPost, "/api/ollama/delete", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Model name is required", decodeError(t, resp).Error)
}

func TestDeleteModel_ConnectionFailure(t *testing.T) {
	env := newTestEnv(t)
	env.models.err = &types.GenerationBackendError{Err: errors.New("connection refused")}

	resp := env.do(t, http.MethodPost, "/api/ollama/delete", map[string]string{"name": "llama3"}, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp).Details, "connection refused")
}
