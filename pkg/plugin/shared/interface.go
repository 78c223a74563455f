// Package shared defines the contract between ragchat and its external
// embedding and reranker plugins.
package shared

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// Handshake is a common handshake that is shared by plugin and host.
// Prevents plugins compiled with different versions from running.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "RAGCHAT_PLUGIN",
	MagicCookieValue: "ragchat-v1",
}

// PluginType identifies the type of plugin.
type PluginType string

const (
	PluginTypeEmbedding PluginType = "embedding"
	PluginTypeReranker  PluginType = "reranker"
)

// PluginMap is the map of plugins we can dispense.
var PluginMap = map[string]plugin.Plugin{
	string(PluginTypeEmbedding): &EmbeddingPlugin{},
	string(PluginTypeReranker):  &RerankerPlugin{},
}

// EmbeddingProvider is the interface that embedding plugins must implement.
// It mirrors provider.EmbeddingProvider without contexts, which do not
// cross the RPC boundary.
type EmbeddingProvider interface {
	Name() string
	Embed(texts []string) ([][]float32, error)
	Dimensions() int
	Warmup() error
	Close() error
}

// Candidate is a retrieved chunk sent to a reranker plugin.
type Candidate struct {
	ID   string
	Text string
}

// RerankerProvider is the interface that reranker plugins must implement.
// Rerank returns candidate ids, most relevant first. Ids it leaves out are
// dropped from the context; unknown ids are ignored by the host.
type RerankerProvider interface {
	Name() string
	Rerank(query string, candidates []Candidate) ([]string, error)
	Close() error
}

// EmbeddingPlugin is the plugin.Plugin implementation for embedding providers.
type EmbeddingPlugin struct {
	Impl EmbeddingProvider
}

func (p *EmbeddingPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &EmbeddingRPCServer{Impl: p.Impl}, nil
}

func (p *EmbeddingPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &EmbeddingRPCClient{client: c}, nil
}

// RerankerPlugin is the plugin.Plugin implementation for reranker providers.
type RerankerPlugin struct {
	Impl RerankerProvider
}

func (p *RerankerPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &RerankerRPCServer{Impl: p.Impl}, nil
}

func (p *RerankerPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RerankerRPCClient{client: c}, nil
}

// PluginError is an error returned by the plugin implementation, as opposed
// to a transport failure.
type PluginError struct {
	Message string
}

func (e *PluginError) Error() string {
	return e.Message
}

func pluginError(msg string) error {
	if msg == "" {
		return nil
	}
	return &PluginError{Message: msg}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
