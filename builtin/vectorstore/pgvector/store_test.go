package pgvector

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetr/ragchat/pkg/provider/providertest"
	"github.com/spetr/ragchat/pkg/types"
)

func TestMetadataCodec(t *testing.T) {
	assert.Equal(t, "{}", encodeMetadata(nil))
	assert.Equal(t, `{"source":"a.txt"}`, encodeMetadata(map[string]any{"source": "a.txt"}))

	assert.Equal(t, map[string]any{}, decodeMetadata(""))
	assert.Equal(t, map[string]any{}, decodeMetadata("null"))
	assert.Equal(t, map[string]any{"source": "a.txt"}, decodeMetadata(`{"source":"a.txt"}`))
}

func TestNew_RequiresDSN(t *testing.T) {
	_, err := New("", &providertest.Embedder{})
	assert.True(t, errors.Is(err, types.ErrInvalidConfig))
}

// TestStore_Postgres runs against a real database when RAGCHAT_TEST_POSTGRES_DSN is set.
func TestStore_Postgres(t *testing.T) {
	dsn := os.Getenv("RAGCHAT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RAGCHAT_TEST_POSTGRES_DSN not set")
	}

	s, err := New(dsn, &providertest.Embedder{Dims: 8})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	name := "ragchat-test"
	_ = s.DeleteCollection(ctx, name)

	_, err = s.CreateCollection(ctx, name)
	require.NoError(t, err)
	_, err = s.CreateCollection(ctx, name)
	assert.ErrorIs(t, err, types.ErrCollectionExists)

	require.NoError(t, s.Add(ctx, name, []types.Document{
		{ID: "a", Text: "aaaa"},
		{ID: "b", Text: "bbbb", Metadata: map[string]any{"source": "b.txt"}},
	}))

	docs, err := s.Query(ctx, name, "bbbb", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0].ID)
	assert.Equal(t, "b.txt", docs[0].Source())

	require.NoError(t, s.DeleteCollection(ctx, name))
	_, err = s.Query(ctx, name, "x", 1)
	assert.ErrorIs(t, err, types.ErrCollectionNotFound)
}
