package shared

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedding struct {
	err error
}

func (f *fakeEmbedding) Name() string { return "fake-embedding" }

func (f *fakeEmbedding) Embed(texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *fakeEmbedding) Dimensions() int { return 2 }
func (f *fakeEmbedding) Warmup() error   { return nil }
func (f *fakeEmbedding) Close() error    { return nil }

type reverseReranker struct{}

func (reverseReranker) Name() string { return "reverse" }

func (reverseReranker) Rerank(query string, candidates []Candidate) ([]string, error) {
	if query == "" {
		return nil, errors.New("empty query")
	}
	ids := make([]string, 0, len(candidates))
	for i := len(candidates) - 1; i >= 0; i-- {
		ids = append(ids, candidates[i].ID)
	}
	return ids, nil
}

func (reverseReranker) Close() error { return nil }

func dispense(t *testing.T, kind PluginType, p plugin.Plugin) interface{} {
	t.Helper()
	client, _ := plugin.TestPluginRPCConn(t, map[string]plugin.Plugin{string(kind): p}, nil)
	t.Cleanup(func() { client.Close() })

	raw, err := client.Dispense(string(kind))
	require.NoError(t, err)
	return raw
}

func TestEmbeddingOverRPC(t *testing.T) {
	emb, ok := dispense(t, PluginTypeEmbedding, &EmbeddingPlugin{Impl: &fakeEmbedding{}}).(EmbeddingProvider)
	require.True(t, ok)

	assert.Equal(t, "fake-embedding", emb.Name())
	assert.Equal(t, 2, emb.Dimensions())
	assert.NoError(t, emb.Warmup())

	vecs, err := emb.Embed([]string{"ab", "abcd"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2, 1}, {4, 1}}, vecs)
}

func TestEmbeddingErrorOverRPC(t *testing.T) {
	emb := dispense(t, PluginTypeEmbedding, &EmbeddingPlugin{Impl: &fakeEmbedding{err: errors.New("model missing")}}).(EmbeddingProvider)

	_, err := emb.Embed([]string{"x"})
	var perr *PluginError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "model missing", perr.Message)
}

func TestRerankerOverRPC(t *testing.T) {
	rr, ok := dispense(t, PluginTypeReranker, &RerankerPlugin{Impl: reverseReranker{}}).(RerankerProvider)
	require.True(t, ok)
	assert.Equal(t, "reverse", rr.Name())

	ids, err := rr.Rerank("q", []Candidate{{ID: "a", Text: "1"}, {ID: "b", Text: "2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids)

	_, err = rr.Rerank("", nil)
	assert.EqualError(t, err, "empty query")
	assert.NoError(t, rr.Close())
}
