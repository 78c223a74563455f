package chroma

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetr/ragchat/pkg/provider/providertest"
	"github.com/spetr/ragchat/pkg/types"
)

// fakeChroma is an in-memory stand-in for the parts of the v1 API the store uses.
type fakeChroma struct {
	mu       sync.Mutex
	cols     map[string]string // name -> id
	gets     int
	auth     string
	added    map[string]addRequest
	queryRes queryResponse
	lastN    int
}

func newFakeChroma() *fakeChroma {
	return &fakeChroma{cols: map[string]string{}, added: map[string]addRequest{}}
}

func (f *fakeChroma) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = r.Header.Get("Authorization")

	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	switch {
	case path == "/heartbeat":
		_ = json.NewEncoder(w).Encode(map[string]any{"nanosecond heartbeat": 1})
	case path == "/collections" && r.Method == http.MethodGet:
		out := []collection{}
		for name, id := range f.cols {
			out = append(out, collection{ID: id, Name: name})
		}
		_ = json.NewEncoder(w).Encode(out)
	case path == "/collections" && r.Method == http.MethodPost:
		var in struct {
			Name        string `json:"name"`
			GetOrCreate bool   `json:"get_or_create"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		if id, ok := f.cols[in.Name]; ok {
			if !in.GetOrCreate {
				http.Error(w, `{"error":"UniqueConstraintError('Collection `+in.Name+` already exists')"}`, http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(collection{ID: id, Name: in.Name})
			return
		}
		id := "id-" + in.Name
		f.cols[in.Name] = id
		_ = json.NewEncoder(w).Encode(collection{ID: id, Name: in.Name})
	case strings.HasSuffix(path, "/add"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/collections/"), "/add")
		var in addRequest
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.added[id] = in
		_, _ = w.Write([]byte("true"))
	case strings.HasSuffix(path, "/query"):
		if !f.hasID(strings.TrimSuffix(strings.TrimPrefix(path, "/collections/"), "/query")) {
			http.Error(w, `{"error":"collection not found"}`, http.StatusNotFound)
			return
		}
		var in queryRequest
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.lastN = in.NResults
		_ = json.NewEncoder(w).Encode(f.queryRes)
	case strings.HasPrefix(path, "/collections/") && r.Method == http.MethodGet:
		f.gets++
		name := strings.TrimPrefix(path, "/collections/")
		id, ok := f.cols[name]
		if !ok {
			http.Error(w, `{"error":"ValueError('Collection `+name+` does not exist.')"}`, http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(collection{ID: id, Name: name})
	case strings.HasPrefix(path, "/collections/") && r.Method == http.MethodDelete:
		name := strings.TrimPrefix(path, "/collections/")
		if _, ok := f.cols[name]; !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		delete(f.cols, name)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeChroma) hasID(id string) bool {
	for _, v := range f.cols {
		if v == id {
			return true
		}
	}
	return false
}

func (f *fakeChroma) set(name, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == "" {
		delete(f.cols, name)
		return
	}
	f.cols[name] = id
}

func strp(s string) *string { return &s }

func TestQuery_ReturnsDocumentsInOrder(t *testing.T) {
	fake := newFakeChroma()
	fake.cols["policies"] = "id-policies"
	fake.queryRes = queryResponse{
		IDs:       [][]string{{"d1", "d2"}},
		Documents: [][]*string{{strp("refunds within 30 days"), strp("shipping")}},
		Metadatas: [][]map[string]any{{{"source": "policy.txt"}, nil}},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	emb := &providertest.Embedder{}
	s := New(ClientConfig{URL: srv.URL, AuthMethod: AuthToken, Token: "secret"}, emb)

	docs, err := s.Query(context.Background(), "policies", "refund window", 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d1", docs[0].ID)
	assert.Equal(t, "refunds within 30 days", docs[0].Text)
	assert.Equal(t, "policy.txt", docs[0].Source())
	assert.NotNil(t, docs[1].Metadata, "missing metadata becomes an empty map")
	assert.Empty(t, docs[1].Metadata)
	assert.Equal(t, 10, fake.lastN)
	assert.Equal(t, "Bearer secret", fake.auth)
	assert.Equal(t, [][]string{{"refund window"}}, emb.Calls)

	// name -> id is cached
	_, err = s.Query(context.Background(), "policies", "again", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.gets)
}

func TestQuery_RecreatedCollection(t *testing.T) {
	fake := newFakeChroma()
	fake.cols["policies"] = "old"
	fake.queryRes = queryResponse{IDs: [][]string{{"d1"}}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := New(ClientConfig{URL: srv.URL}, &providertest.Embedder{})
	ctx := context.Background()

	_, err := s.Query(ctx, "policies", "q", 10)
	require.NoError(t, err)

	// Another client drops and recreates the collection under a new id.
	fake.set("policies", "new")

	docs, err := s.Query(ctx, "policies", "q", 10)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, 2, fake.gets)

	id, ok := s.ids.Get("policies")
	require.True(t, ok)
	assert.Equal(t, "new", id)
}

func TestQuery_DroppedCollection(t *testing.T) {
	fake := newFakeChroma()
	fake.cols["policies"] = "old"
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := New(ClientConfig{URL: srv.URL}, &providertest.Embedder{})
	ctx := context.Background()

	_, err := s.Query(ctx, "policies", "q", 10)
	require.NoError(t, err)

	fake.set("policies", "")

	_, err = s.Query(ctx, "policies", "q", 10)
	assert.ErrorIs(t, err, types.ErrCollectionNotFound)
	_, cached := s.ids.Get("policies")
	assert.False(t, cached)
}

func TestQuery_UnknownCollection(t *testing.T) {
	srv := httptest.NewServer(newFakeChroma())
	defer srv.Close()

	emb := &providertest.Embedder{}
	_, err := New(ClientConfig{URL: srv.URL}, emb).Query(context.Background(), "nope", "q", 10)
	assert.ErrorIs(t, err, types.ErrCollectionNotFound)
	assert.Empty(t, emb.Calls, "no embedding for a missing collection")
}

func TestQuery_EmbeddingFailure(t *testing.T) {
	fake := newFakeChroma()
	fake.cols["c"] = "id-c"
	srv := httptest.NewServer(fake)
	defer srv.Close()

	emb := &providertest.Embedder{Err: types.ErrEmbeddingBackend}
	_, err := New(ClientConfig{URL: srv.URL}, emb).Query(context.Background(), "c", "q", 10)
	assert.ErrorIs(t, err, types.ErrEmbeddingBackend)
}

func TestCollections(t *testing.T) {
	fake := newFakeChroma()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := New(ClientConfig{URL: srv.URL, AuthMethod: AuthBasic, Username: "u", Password: "p"}, &providertest.Embedder{})
	ctx := context.Background()

	col, err := s.CreateCollection(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, "notes", col.Name)
	assert.True(t, strings.HasPrefix(fake.auth, "Basic "))

	_, err = s.CreateCollection(ctx, "notes")
	assert.ErrorIs(t, err, types.ErrCollectionExists)

	col, err = s.GetOrCreateCollection(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, "id-notes", col.ID)

	cols, err := s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Len(t, cols, 1)

	require.NoError(t, s.DeleteCollection(ctx, "notes"))
	err = s.DeleteCollection(ctx, "notes")
	assert.ErrorIs(t, err, types.ErrCollectionNotFound)
}

func TestAdd_EmbedsDocuments(t *testing.T) {
	fake := newFakeChroma()
	fake.cols["c"] = "id-c"
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := New(ClientConfig{URL: srv.URL}, &providertest.Embedder{Dims: 4})
	err := s.Add(context.Background(), "c", []types.Document{
		{ID: "a", Text: "alpha", Metadata: map[string]any{"source": "a.txt"}},
		{ID: "b", Text: "beta"},
	})
	require.NoError(t, err)

	got := fake.added["id-c"]
	assert.Equal(t, []string{"a", "b"}, got.IDs)
	assert.Len(t, got.Embeddings, 2)
	assert.Len(t, got.Embeddings[0], 4)
	assert.Equal(t, map[string]any{}, got.Metadatas[1])
}

func TestHeartbeat(t *testing.T) {
	srv := httptest.NewServer(newFakeChroma())
	s := New(ClientConfig{URL: srv.URL}, &providertest.Embedder{})
	require.NoError(t, s.Heartbeat(context.Background()))

	srv.Close()
	err := s.Heartbeat(context.Background())
	assert.True(t, errors.Is(err, types.ErrVectorStore))
}
