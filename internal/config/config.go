// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Ollama      OllamaConfig      `mapstructure:"ollama" yaml:"ollama"`
	MCP         MCPConfig         `mapstructure:"mcp" yaml:"mcp"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding" yaml:"embedding"`
	VectorStore VectorStoreConfig `mapstructure:"vectorstore" yaml:"vectorstore"`
	Reranker    RerankerConfig    `mapstructure:"reranker" yaml:"reranker"`
	RAG         RAGConfig         `mapstructure:"rag" yaml:"rag"`
	Chunking    ChunkingConfig    `mapstructure:"chunking" yaml:"chunking"`
	Stream      StreamConfig      `mapstructure:"stream" yaml:"stream"`
	Watch       WatchConfig       `mapstructure:"watch" yaml:"watch"`
	Plugins     PluginsConfig     `mapstructure:"plugins" yaml:"plugins"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Addr          string        `mapstructure:"addr" yaml:"addr"`                     // listen address
	HealthTimeout time.Duration `mapstructure:"health_timeout" yaml:"health_timeout"` // upstream status checks
	CORSOrigins   []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	MaxUploadSize int64         `mapstructure:"max_upload_size" yaml:"max_upload_size"` // bytes
}

// OllamaConfig points at the Ollama server used for direct and RAG chat.
type OllamaConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// MCPConfig points at the OpenAI-compatible MCP chat server.
type MCPConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"` // ollama, openai, plugin:<name>
	Model    string `mapstructure:"model" yaml:"model"`       // model name
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"` // empty: ollama.endpoint
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`   // API key
}

// VectorStoreConfig contains vector store configuration.
type VectorStoreConfig struct {
	Provider string         `mapstructure:"provider" yaml:"provider"` // chroma, sqlitevec, pgvector
	Chroma   ChromaConfig   `mapstructure:"chroma" yaml:"chroma"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// ChromaConfig contains ChromaDB connection settings.
type ChromaConfig struct {
	URL        string `mapstructure:"url" yaml:"url"`
	AuthMethod string `mapstructure:"auth_method" yaml:"auth_method"` // "", token, basic
	Token      string `mapstructure:"token" yaml:"token"`
	Username   string `mapstructure:"username" yaml:"username"`
	Password   string `mapstructure:"password" yaml:"password"`
	Tenant     string `mapstructure:"tenant" yaml:"tenant"`
	Database   string `mapstructure:"database" yaml:"database"`
}

// SQLiteConfig contains the local sqlite-vec store settings.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig contains the pgvector store settings.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// RerankerConfig contains reranker configuration.
type RerankerConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"` // llm, none, plugin:<name>
	Model    string `mapstructure:"model" yaml:"model"`       // empty: the request's chat model
}

// RAGConfig contains retrieval sizes.
type RAGConfig struct {
	Candidates        int `mapstructure:"candidates" yaml:"candidates"`                   // documents fetched from the store
	ContextSize       int `mapstructure:"context_size" yaml:"context_size"`               // documents given to the model
	EmptyRankFallback int `mapstructure:"empty_rank_fallback" yaml:"empty_rank_fallback"` // kept when ranking is empty
}

// ChunkingConfig contains chunking strategy configuration.
type ChunkingConfig struct {
	Strategy string `mapstructure:"strategy" yaml:"strategy"` // simple
	Size     int    `mapstructure:"size" yaml:"size"`         // characters per chunk
	Overlap  int    `mapstructure:"overlap" yaml:"overlap"`   // characters shared by neighbours
}

// StreamConfig selects the default response framing.
type StreamConfig struct {
	Framing string `mapstructure:"framing" yaml:"framing"` // length-prefixed, sentinel
}

// WatchConfig contains the directory auto-ingest settings.
type WatchConfig struct {
	Dir        string        `mapstructure:"dir" yaml:"dir"`
	Collection string        `mapstructure:"collection" yaml:"collection"`
	Debounce   time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// PluginsConfig contains external plugin settings.
type PluginsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
	File   string `mapstructure:"file" yaml:"file"`     // empty: stderr
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          ":3000",
			HealthTimeout: 3 * time.Second,
			CORSOrigins:   []string{"*"},
			MaxUploadSize: 10 << 20,
		},
		Ollama: OllamaConfig{
			Endpoint: "http://localhost:11434",
		},
		MCP: MCPConfig{
			Endpoint: "http://localhost:8008",
		},
		Embedding: EmbeddingConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
		},
		VectorStore: VectorStoreConfig{
			Provider: "chroma",
			Chroma: ChromaConfig{
				URL: "http://localhost:8000",
			},
			SQLite: SQLiteConfig{
				Path: filepath.Join(".ragchat", "vectors.db"),
			},
		},
		Reranker: RerankerConfig{
			Provider: "llm",
		},
		RAG: RAGConfig{
			Candidates:        10,
			ContextSize:       5,
			EmptyRankFallback: 2,
		},
		Chunking: ChunkingConfig{
			Strategy: "simple",
			Size:     1000,
			Overlap:  200,
		},
		Stream: StreamConfig{
			Framing: "length-prefixed",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Plugins: PluginsConfig{
			Dir: filepath.Join(".ragchat", "plugins"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ConfigDir returns the path to the .ragchat directory.
func ConfigDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".ragchat")
}

// ConfigPath returns the path to config.yaml.
func ConfigPath(projectRoot string) string {
	return filepath.Join(ConfigDir(projectRoot), "config.yaml")
}

// legacyEnv maps config keys to the environment variable names the original
// web deployment used. RAGCHAT_* variables take precedence over them.
var legacyEnv = map[string]string{
	"ollama.endpoint":                "OLLAMA_BASE_URL",
	"mcp.endpoint":                   "MCP_URL",
	"vectorstore.chroma.url":         "CHROMA_URL",
	"vectorstore.chroma.auth_method": "CHROMA_AUTH_METHOD",
	"vectorstore.chroma.token":       "CHROMA_TOKEN",
	"vectorstore.chroma.username":    "CHROMA_USERNAME",
	"vectorstore.chroma.password":    "CHROMA_PASSWORD",
	"vectorstore.postgres.dsn":       "DATABASE_URL",
}

// setDefaults registers every key with viper so that environment
// overrides apply even when the key is absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	defaults := map[string]any{
		"server.addr":                    d.Server.Addr,
		"server.health_timeout":          d.Server.HealthTimeout,
		"server.cors_origins":            d.Server.CORSOrigins,
		"server.max_upload_size":         d.Server.MaxUploadSize,
		"ollama.endpoint":                d.Ollama.Endpoint,
		"mcp.endpoint":                   d.MCP.Endpoint,
		"mcp.api_key":                    d.MCP.APIKey,
		"embedding.provider":             d.Embedding.Provider,
		"embedding.model":                d.Embedding.Model,
		"embedding.endpoint":             d.Embedding.Endpoint,
		"embedding.api_key":              d.Embedding.APIKey,
		"vectorstore.provider":           d.VectorStore.Provider,
		"vectorstore.chroma.url":         d.VectorStore.Chroma.URL,
		"vectorstore.chroma.auth_method": d.VectorStore.Chroma.AuthMethod,
		"vectorstore.chroma.token":       d.VectorStore.Chroma.Token,
		"vectorstore.chroma.username":    d.VectorStore.Chroma.Username,
		"vectorstore.chroma.password":    d.VectorStore.Chroma.Password,
		"vectorstore.chroma.tenant":      d.VectorStore.Chroma.Tenant,
		"vectorstore.chroma.database":    d.VectorStore.Chroma.Database,
		"vectorstore.sqlite.path":        d.VectorStore.SQLite.Path,
		"vectorstore.postgres.dsn":       d.VectorStore.Postgres.DSN,
		"reranker.provider":              d.Reranker.Provider,
		"reranker.model":                 d.Reranker.Model,
		"rag.candidates":                 d.RAG.Candidates,
		"rag.context_size":               d.RAG.ContextSize,
		"rag.empty_rank_fallback":        d.RAG.EmptyRankFallback,
		"chunking.strategy":              d.Chunking.Strategy,
		"chunking.size":                  d.Chunking.Size,
		"chunking.overlap":               d.Chunking.Overlap,
		"stream.framing":                 d.Stream.Framing,
		"watch.dir":                      d.Watch.Dir,
		"watch.collection":               d.Watch.Collection,
		"watch.debounce":                 d.Watch.Debounce,
		"plugins.dir":                    d.Plugins.Dir,
		"logging.level":                  d.Logging.Level,
		"logging.format":                 d.Logging.Format,
		"logging.file":                   d.Logging.File,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix("RAGCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		primary := "RAGCHAT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, primary, legacy); err != nil {
			return err
		}
	}
	return nil
}

// Load loads configuration from path, falling back to defaults, then applies
// environment overrides. An empty path means ConfigPath("."). A missing file
// is not an error; it is reported in the returned warnings.
func Load(path string) (*Config, []string, error) {
	cfg := DefaultConfig()
	warnings := []string{}

	if path == "" {
		path = ConfigPath(".")
	}

	v := viper.New()
	setDefaults(v, cfg)
	if err := bindEnv(v); err != nil {
		return nil, nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		warnings = append(warnings, "No config file found, using defaults")
	} else {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults for values explicitly blanked in the file
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
		warnings = append(warnings, "Using default embedding provider: ollama")
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Stream.Framing == "" {
		cfg.Stream.Framing = "length-prefixed"
	}
	if cfg.Reranker.Provider == "" {
		cfg.Reranker.Provider = "none"
		warnings = append(warnings, "No reranker configured, results keep retrieval order")
	}

	return cfg, warnings, nil
}

// Save saves configuration to path.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("ollama", cfg.Ollama)
	v.Set("mcp", cfg.MCP)
	v.Set("embedding", cfg.Embedding)
	v.Set("vectorstore", cfg.VectorStore)
	v.Set("reranker", cfg.Reranker)
	v.Set("rag", cfg.RAG)
	v.Set("chunking", cfg.Chunking)
	v.Set("stream", cfg.Stream)
	v.Set("watch", cfg.Watch)
	v.Set("plugins", cfg.Plugins)
	v.Set("logging", cfg.Logging)

	return v.WriteConfig()
}

// EmbeddingEndpoint returns the embedding endpoint, defaulting to Ollama's.
func (c *Config) EmbeddingEndpoint() string {
	if c.Embedding.Endpoint != "" {
		return c.Embedding.Endpoint
	}
	if c.Embedding.Provider == "ollama" {
		return c.Ollama.Endpoint
	}
	return ""
}

// Validate validates the configuration.
func Validate(cfg *Config) []error {
	var errs []error

	validEmbeddingProviders := map[string]bool{"ollama": true, "openai": true}
	if !validEmbeddingProviders[cfg.Embedding.Provider] && !isPlugin(cfg.Embedding.Provider) {
		errs = append(errs, fmt.Errorf("invalid embedding provider: %s", cfg.Embedding.Provider))
	}

	validStores := map[string]bool{"chroma": true, "sqlitevec": true, "pgvector": true}
	if !validStores[cfg.VectorStore.Provider] {
		errs = append(errs, fmt.Errorf("invalid vector store: %s", cfg.VectorStore.Provider))
	}
	switch cfg.VectorStore.Provider {
	case "chroma":
		if cfg.VectorStore.Chroma.URL == "" {
			errs = append(errs, fmt.Errorf("vectorstore.chroma.url is required"))
		}
		validAuth := map[string]bool{"": true, "token": true, "basic": true}
		if !validAuth[cfg.VectorStore.Chroma.AuthMethod] {
			errs = append(errs, fmt.Errorf("invalid chroma auth method: %s (valid: token, basic)", cfg.VectorStore.Chroma.AuthMethod))
		}
	case "pgvector":
		if cfg.VectorStore.Postgres.DSN == "" {
			errs = append(errs, fmt.Errorf("vectorstore.postgres.dsn is required for pgvector"))
		}
	}

	validRerankers := map[string]bool{"llm": true, "none": true}
	if !validRerankers[cfg.Reranker.Provider] && !isPlugin(cfg.Reranker.Provider) {
		errs = append(errs, fmt.Errorf("invalid reranker provider: %s", cfg.Reranker.Provider))
	}

	if cfg.RAG.Candidates <= 0 {
		errs = append(errs, fmt.Errorf("rag.candidates must be positive, got %d", cfg.RAG.Candidates))
	}
	if cfg.RAG.ContextSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.context_size must be positive, got %d", cfg.RAG.ContextSize))
	}
	if cfg.RAG.EmptyRankFallback < 0 {
		errs = append(errs, fmt.Errorf("rag.empty_rank_fallback must not be negative, got %d", cfg.RAG.EmptyRankFallback))
	}

	if cfg.Chunking.Strategy != "simple" {
		errs = append(errs, fmt.Errorf("invalid chunking strategy: %s", cfg.Chunking.Strategy))
	}
	if cfg.Chunking.Size <= 0 || cfg.Chunking.Overlap < 0 || cfg.Chunking.Overlap >= cfg.Chunking.Size {
		errs = append(errs, fmt.Errorf("invalid chunking window: size=%d overlap=%d", cfg.Chunking.Size, cfg.Chunking.Overlap))
	}

	validFramings := map[string]bool{"length-prefixed": true, "sentinel": true}
	if !validFramings[cfg.Stream.Framing] {
		errs = append(errs, fmt.Errorf("invalid stream framing: %s (valid: length-prefixed, sentinel)", cfg.Stream.Framing))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid log level: %s", cfg.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Errorf("invalid log format: %s", cfg.Logging.Format))
	}

	if cfg.Watch.Dir != "" && strings.TrimSpace(cfg.Watch.Collection) == "" {
		errs = append(errs, fmt.Errorf("watch.collection is required when watch.dir is set"))
	}

	if cfg.Server.HealthTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.health_timeout must be positive"))
	}

	return errs
}

func isPlugin(name string) bool {
	return strings.HasPrefix(name, "plugin:") && len(name) > len("plugin:")
}
