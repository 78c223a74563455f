// Package simple implements a sliding-window chunking strategy over characters.
package simple

import (
	"strings"

	"github.com/spetr/ragchat/pkg/provider"
)

// Default values
const (
	DefaultSize    = 1000 // characters per chunk
	DefaultOverlap = 200  // characters shared by neighbouring chunks
)

// Config contains configuration for simple chunking.
type Config struct {
	Size    int
	Overlap int
}

// Chunker splits text into fixed-size windows that overlap.
type Chunker struct {
	config Config
}

// New creates a new simple chunker. An overlap that is not smaller than the
// window size is reset to the default ratio.
func New(cfg Config) *Chunker {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Size {
		cfg.Overlap = cfg.Size / 5
	}
	return &Chunker{config: cfg}
}

// Name returns the strategy name.
func (c *Chunker) Name() string {
	return "simple"
}

// Chunk splits text into windows of Size characters, each starting
// Size-Overlap characters after the previous one. Windows never split a
// UTF-8 sequence. Text no longer than Size is returned as a single chunk.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.config.Size {
		return []string{text}
	}

	step := c.config.Size - c.config.Overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := min(start+c.config.Size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Ensure Chunker implements Chunker interface
var _ provider.Chunker = (*Chunker)(nil)
