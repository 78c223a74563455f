package stream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetr/ragchat/pkg/types"
)

func sampleDocs() []types.Document {
	return []types.Document{
		{ID: "a", Text: "refunds within 30 days", Metadata: map[string]any{"source": "policy.txt"}},
		{ID: "b", Text: "contains " + Separator + " inside", Metadata: map[string]any{"page_no": float64(2)}},
	}
}

func frame(t *testing.T, framing Framing, docs []types.Document, tokens ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf, framing)
	require.NoError(t, w.WriteSources(docs))
	for _, tok := range tokens {
		require.NoError(t, w.WriteToken(tok))
	}
	return buf.Bytes()
}

func parseChunks(t *testing.T, framing Framing, chunks [][]byte) ([]types.Document, string) {
	t.Helper()
	p := NewParser(framing)
	var text strings.Builder
	for _, c := range chunks {
		out, err := p.Feed(c)
		require.NoError(t, err)
		text.WriteString(out)
	}
	require.NoError(t, p.Close())
	return p.Sources(), text.String()
}

func TestRoundTripEverySplitPoint(t *testing.T) {
	for _, framing := range []Framing{FramingLengthPrefixed, FramingSentinel} {
		t.Run(string(framing), func(t *testing.T) {
			data := frame(t, framing, sampleDocs(), "The refund ", "window is ", "30 days.")

			for i := 0; i <= len(data); i++ {
				docs, text := parseChunks(t, framing, [][]byte{data[:i], data[i:]})
				require.Len(t, docs, 2, "split at %d", i)
				assert.Equal(t, "b", docs[1].ID)
				assert.Equal(t, "contains "+Separator+" inside", docs[1].Text)
				assert.Equal(t, float64(2), docs[1].Metadata["page_no"])
				assert.Equal(t, "The refund window is 30 days.", text, "split at %d", i)
			}
		})
	}
}

func TestRoundTripByteAtATime(t *testing.T) {
	for _, framing := range []Framing{FramingLengthPrefixed, FramingSentinel} {
		data := frame(t, framing, sampleDocs(), "answer")
		chunks := make([][]byte, len(data))
		for i := range data {
			chunks[i] = data[i : i+1]
		}
		docs, text := parseChunks(t, framing, chunks)
		assert.Len(t, docs, 2)
		assert.Equal(t, "answer", text)
	}
}

func TestEmptySourcesWrittenAsEmptyArray(t *testing.T) {
	data := frame(t, FramingSentinel, nil, "no context")
	assert.True(t, bytes.HasPrefix(data, []byte("[]"+Separator)))

	data = frame(t, FramingLengthPrefixed, nil)
	assert.Equal(t, uint32(2), binary.BigEndian.Uint32(data))
	assert.Equal(t, "[]", string(data[4:]))

	docs, text := parseChunks(t, FramingLengthPrefixed, [][]byte{data})
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
	assert.Empty(t, text)
}

func TestSentinelHeaderNeverContainsSeparator(t *testing.T) {
	data := frame(t, FramingSentinel, sampleDocs(), "tail")
	idx := bytes.Index(data, []byte(Separator))
	require.Greater(t, idx, 0)
	assert.Equal(t, len(data)-len("tail")-len(Separator), idx)
	assert.NotContains(t, string(data[:idx]), "_")
}

func TestAnswerMayContainSeparator(t *testing.T) {
	data := frame(t, FramingSentinel, nil, "x "+Separator+" y")
	_, text := parseChunks(t, FramingSentinel, [][]byte{data})
	assert.Equal(t, "x "+Separator+" y", text)
}

func TestIncompleteHeader(t *testing.T) {
	for _, framing := range []Framing{FramingLengthPrefixed, FramingSentinel} {
		data := frame(t, framing, sampleDocs())
		p := NewParser(framing)
		text, err := p.Feed(data[:len(data)-1])
		require.NoError(t, err)
		assert.Empty(t, text)
		assert.False(t, p.HeaderComplete())
		assert.True(t, errors.Is(p.Close(), ErrIncompleteHeader))
	}
}

func TestMalformedHeader(t *testing.T) {
	p := NewParser(FramingSentinel)
	_, err := p.Feed([]byte("{not json" + Separator + "text"))
	assert.ErrorIs(t, err, ErrMalformedHeader)

	huge := make([]byte, 4)
	binary.BigEndian.PutUint32(huge, maxHeaderSize+1)
	p = NewParser(FramingLengthPrefixed)
	_, err = p.Feed(huge)
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestWriterSourcesOnce(t *testing.T) {
	w := NewWriter(&bytes.Buffer{}, FramingLengthPrefixed)
	require.NoError(t, w.WriteSources(nil))
	assert.ErrorIs(t, w.WriteSources(nil), ErrSourcesWritten)
}

func TestFramingNonePassesTokensThrough(t *testing.T) {
	data := frame(t, FramingNone, sampleDocs(), "hello ", "world")
	assert.Equal(t, "hello world", string(data))

	var got strings.Builder
	called := false
	err := Decode(bytes.NewReader(data), FramingNone, func([]types.Document) { called = true }, func(s string) { got.WriteString(s) })
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, "hello world", got.String())
}

type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (f *flushRecorder) Flush() { f.flushes++ }

func TestWriterFlushes(t *testing.T) {
	rec := &flushRecorder{}
	w := NewWriter(rec, FramingSentinel)
	require.NoError(t, w.WriteSources(nil))
	assert.Equal(t, 1, rec.flushes, "sources must be flushed before any token")
	require.NoError(t, w.WriteToken("a"))
	require.NoError(t, w.WriteToken(""))
	assert.Equal(t, 2, rec.flushes)
}

func TestDecode(t *testing.T) {
	data := frame(t, FramingLengthPrefixed, sampleDocs(), "one ", "two")

	var sources []types.Document
	var text strings.Builder
	err := Decode(bytes.NewReader(data), FramingLengthPrefixed,
		func(d []types.Document) { sources = d },
		func(s string) { text.WriteString(s) })
	require.NoError(t, err)
	assert.Len(t, sources, 2)
	assert.Equal(t, "one two", text.String())

	err = Decode(bytes.NewReader(data[:3]), FramingLengthPrefixed, nil, nil)
	assert.ErrorIs(t, err, ErrIncompleteHeader)
}

func TestParseFraming(t *testing.T) {
	f, err := ParseFraming("", FramingSentinel)
	require.NoError(t, err)
	assert.Equal(t, FramingSentinel, f)

	f, err = ParseFraming("length-prefixed", FramingSentinel)
	require.NoError(t, err)
	assert.Equal(t, FramingLengthPrefixed, f)

	_, err = ParseFraming("none", FramingSentinel)
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}
