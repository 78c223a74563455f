package provider

// Chunker splits a document text into pieces small enough to embed.
type Chunker interface {
	// Name returns the strategy name (e.g., "simple").
	Name() string

	// Chunk splits text. Empty input yields no chunks.
	Chunk(text string) []string
}

// ChunkingConfig contains configuration for chunking strategies.
type ChunkingConfig struct {
	Strategy string // "simple"
	Size     int    // Max characters per chunk
	Overlap  int    // Characters shared by consecutive chunks
}
