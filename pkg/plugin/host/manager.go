// Package host loads external plugins and exposes them as providers.
package host

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
	"go.uber.org/zap"

	"github.com/spetr/ragchat/pkg/plugin/shared"
	"github.com/spetr/ragchat/pkg/provider"
	"github.com/spetr/ragchat/pkg/types"
)

// Prefix marks a provider name that refers to a plugin binary.
const Prefix = "plugin:"

// PluginName returns the binary name of a "plugin:<name>" provider.
func PluginName(providerName string) (string, bool) {
	if !strings.HasPrefix(providerName, Prefix) {
		return "", false
	}
	name := strings.TrimPrefix(providerName, Prefix)
	return name, name != ""
}

// Manager manages external plugins.
type Manager struct {
	pluginsDir string
	plugins    map[string]*LoadedPlugin
	mu         sync.RWMutex
	hclogger   hclog.Logger
	logger     *zap.Logger
}

// LoadedPlugin represents a loaded plugin.
type LoadedPlugin struct {
	Name      string
	Type      shared.PluginType
	Path      string
	Client    *plugin.Client
	Embedding shared.EmbeddingProvider
	Reranker  shared.RerankerProvider
}

// NewManager creates a new plugin manager. Plugin process output goes to
// stderr through hclog at warn level.
func NewManager(pluginsDir string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		pluginsDir: pluginsDir,
		plugins:    make(map[string]*LoadedPlugin),
		hclogger: hclog.New(&hclog.LoggerOptions{
			Name:   "plugins",
			Level:  hclog.Warn,
			Output: os.Stderr,
		}),
		logger: logger,
	}
}

// DiscoverPlugins lists the executables in the plugins directory, sorted.
func (m *Manager) DiscoverPlugins() ([]string, error) {
	entries, err := os.ReadDir(m.pluginsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plugins directory: %w", err)
	}

	var plugins []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Mode()&0111 != 0 {
			plugins = append(plugins, entry.Name())
		}
	}
	sort.Strings(plugins)
	return plugins, nil
}

// LoadPlugin starts a plugin binary and dispenses the requested type.
// Loading the same name twice returns the running plugin.
func (m *Manager) LoadPlugin(name string, pluginType shared.PluginType) (*LoadedPlugin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, exists := m.plugins[name]; exists {
		if p.Type != pluginType {
			return nil, fmt.Errorf("plugin %s already loaded as %s", name, p.Type)
		}
		return p, nil
	}

	pluginPath := filepath.Join(m.pluginsDir, name)
	if _, err := os.Stat(pluginPath); err != nil {
		return nil, fmt.Errorf("%w: plugin %s: %v", types.ErrProviderNotAvailable, name, err)
	}

	m.logger.Info("loading plugin",
		zap.String("name", name),
		zap.String("type", string(pluginType)),
		zap.String("path", pluginPath))

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: shared.Handshake,
		Plugins:         shared.PluginMap,
		Cmd:             exec.Command(pluginPath),
		Logger:          m.hclogger,
		AllowedProtocols: []plugin.Protocol{
			plugin.ProtocolNetRPC,
		},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to connect to plugin: %w", err)
	}

	raw, err := rpcClient.Dispense(string(pluginType))
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin: %w", err)
	}

	loaded := &LoadedPlugin{
		Name:   name,
		Type:   pluginType,
		Path:   pluginPath,
		Client: client,
	}

	switch pluginType {
	case shared.PluginTypeEmbedding:
		p, ok := raw.(shared.EmbeddingProvider)
		if !ok {
			client.Kill()
			return nil, fmt.Errorf("plugin %s does not implement EmbeddingProvider", name)
		}
		loaded.Embedding = p
	case shared.PluginTypeReranker:
		p, ok := raw.(shared.RerankerProvider)
		if !ok {
			client.Kill()
			return nil, fmt.Errorf("plugin %s does not implement RerankerProvider", name)
		}
		loaded.Reranker = p
	default:
		client.Kill()
		return nil, fmt.Errorf("unsupported plugin type: %s", pluginType)
	}

	m.plugins[name] = loaded
	return loaded, nil
}

// Embedding loads an embedding plugin and adapts it.
func (m *Manager) Embedding(name string) (provider.EmbeddingProvider, error) {
	p, err := m.LoadPlugin(name, shared.PluginTypeEmbedding)
	if err != nil {
		return nil, err
	}
	return NewEmbeddingAdapter(p.Embedding), nil
}

// Reranker loads a reranker plugin and adapts it.
func (m *Manager) Reranker(name string, fallback int) (provider.Reranker, error) {
	p, err := m.LoadPlugin(name, shared.PluginTypeReranker)
	if err != nil {
		return nil, err
	}
	return NewRerankerAdapter(p.Reranker, fallback), nil
}

// UnloadAll closes every plugin and kills its process.
func (m *Manager) UnloadAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, p := range m.plugins {
		var err error
		switch {
		case p.Embedding != nil:
			err = p.Embedding.Close()
		case p.Reranker != nil:
			err = p.Reranker.Close()
		}
		if err != nil {
			m.logger.Warn("plugin close failed", zap.String("name", name), zap.Error(err))
		}
		p.Client.Kill()
		m.logger.Debug("plugin unloaded", zap.String("name", name))
	}

	m.plugins = make(map[string]*LoadedPlugin)
}

// ListLoaded returns the names of loaded plugins, sorted.
func (m *Manager) ListLoaded() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.plugins))
	for name := range m.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
