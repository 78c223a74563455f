package simple

import (
	"strings"
	"testing"
)

func TestChunk_ShortText(t *testing.T) {
	c := New(Config{})
	got := c.Chunk("hello world")
	if len(got) != 1 || got[0] != "hello world" {
		t.Errorf("Chunk() = %v", got)
	}
	if got := c.Chunk("  \n"); got != nil {
		t.Errorf("Chunk(blank) = %v, want nil", got)
	}
}

func TestChunk_SlidingWindow(t *testing.T) {
	text := strings.Repeat("a", 1000) + strings.Repeat("b", 1000) + strings.Repeat("c", 500)
	c := New(Config{Size: 1000, Overlap: 200})
	chunks := c.Chunk(text)

	// starts at 0, 800, 1600; the third window reaches the end
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, ch := range chunks[:2] {
		if len([]rune(ch)) != 1000 {
			t.Errorf("chunk %d has %d chars", i, len(ch))
		}
	}
	if len(chunks[2]) != 900 {
		t.Errorf("last chunk has %d chars, want 900", len(chunks[2]))
	}
	// consecutive chunks share the overlap
	if chunks[0][800:] != chunks[1][:200] {
		t.Error("chunks 0 and 1 do not overlap by 200 chars")
	}
}

func TestChunk_Runes(t *testing.T) {
	text := strings.Repeat("ž", 25)
	chunks := New(Config{Size: 10, Overlap: 2}).Chunk(text)
	for i, ch := range chunks {
		if n := len([]rune(ch)); n > 10 {
			t.Errorf("chunk %d has %d runes", i, n)
		}
		if !strings.HasPrefix(text, ch) && !strings.Contains(text, ch) {
			t.Errorf("chunk %d is not a substring", i)
		}
	}
	if len(chunks) != 3 {
		t.Errorf("got %d chunks, want 3", len(chunks))
	}
}

func TestNew_InvalidOverlap(t *testing.T) {
	c := New(Config{Size: 100, Overlap: 100})
	if c.config.Overlap != 20 {
		t.Errorf("Overlap = %d, want 20", c.config.Overlap)
	}
}
