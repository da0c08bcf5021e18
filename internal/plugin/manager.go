// Package plugin holds the search plugins and the store that selects the
// enabled ones.
package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"metasearch/internal/domain"
	"metasearch/internal/usecase/results"
	"metasearch/internal/usecase/search"
)

// Describer is implemented by plugins that can explain themselves.
type Describer interface {
	Description() string
}

// Info describes a registered plugin.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Manager keeps the registered plugins and the enabled subset, in
// registration order.
type Manager struct {
	mu      sync.RWMutex
	plugins map[string]search.Plugin
	order   []string
	enabled map[string]bool
	logger  *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		plugins: make(map[string]search.Plugin),
		enabled: make(map[string]bool),
		logger:  logger,
	}
}

// NewDefaultManager registers the built-in plugins and enables the named ones.
func NewDefaultManager(enabled []string, logger *slog.Logger) (*Manager, error) {
	m := NewManager(logger)
	for _, p := range Builtins() {
		if err := m.Register(p); err != nil {
			return nil, err
		}
	}
	if err := m.Enable(enabled...); err != nil {
		return nil, err
	}
	return m, nil
}

// Builtins returns fresh instances of the built-in plugins.
func Builtins() []search.Plugin {
	return []search.Plugin{
		Hash{},
		TrackerURLRemover{},
		SelfInfo{},
	}
}

// Register adds a plugin, disabled.
func (m *Manager) Register(p search.Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := p.Name()
	if _, exists := m.plugins[name]; exists {
		return domain.NewSubSystemError("plugin", "plugin.Register", domain.ErrDuplicate, name)
	}
	m.plugins[name] = p
	m.order = append(m.order, name)
	return nil
}

// Enable turns on the named plugins. Unknown names are an error and
// leave the enabled set unchanged.
func (m *Manager) Enable(names ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, name := range names {
		if _, ok := m.plugins[name]; !ok {
			return domain.NewSubSystemError("plugin", "plugin.Enable", domain.ErrNotFound, fmt.Sprintf("plugin %q", name))
		}
	}
	for _, name := range names {
		if !m.enabled[name] {
			m.enabled[name] = true
			m.logger.Info("plugin enabled", "name", name)
		}
	}
	return nil
}

// Enabled returns the enabled plugins in registration order.
func (m *Manager) Enabled() []search.Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]search.Plugin, 0, len(m.enabled))
	for _, name := range m.order {
		if m.enabled[name] {
			out = append(out, m.plugins[name])
		}
	}
	return out
}

// List describes every registered plugin.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.order))
	for _, name := range m.order {
		info := Info{Name: name, Enabled: m.enabled[name]}
		if d, ok := m.plugins[name].(Describer); ok {
			info.Description = d.Description()
		}
		out = append(out, info)
	}
	return out
}

// Search runs q through the orchestrator with the enabled plugins.
func (m *Manager) Search(ctx context.Context, o *search.Orchestrator, q domain.SearchQuery, info search.RequestInfo) *results.Container {
	return o.SearchWithPlugins(ctx, q, info, m.Enabled())
}

// Names lists registered plugin names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := slices.Clone(m.order)
	slices.Sort(names)
	return names
}
