package backends

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Manager is the shared search-provider registry. It dispatches to a primary
// provider and falls back to the configured alternatives when it fails.
type Manager struct {
	mu        sync.RWMutex
	primary   string
	fallbacks []string
	registry  map[string]SearchBackend
}

// NewManager creates a new backend manager
func NewManager() *Manager {
	return &Manager{
		registry: make(map[string]SearchBackend),
	}
}

// Register adds a backend under its own name
func (m *Manager) Register(backend SearchBackend) bool {
	return m.RegisterAs(backend.Name(), backend)
}

// RegisterAs adds a backend under the given name. A name registers once; later
// registrations under the same name are ignored and report false.
func (m *Manager) RegisterAs(name string, backend SearchBackend) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.registry[name]; exists {
		return false
	}
	m.registry[name] = backend
	if m.primary == "" {
		m.primary = name
	}
	return true
}

// RegisterProvider satisfies the plugin registry contract
func (m *Manager) RegisterProvider(name string, backend SearchBackend) bool {
	return m.RegisterAs(name, backend)
}

// SetPrimary sets the primary search backend by name
func (m *Manager) SetPrimary(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.registry[name]; !ok {
		return fmt.Errorf("unknown backend: %s (available: %s)", name, m.availableNames())
	}
	m.primary = name
	return nil
}

// SetFallbacks sets the fallback backends in order
func (m *Manager) SetFallbacks(names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fallbacks := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := m.registry[name]; !ok {
			return fmt.Errorf("unknown fallback backend: %s (available: %s)", name, m.availableNames())
		}
		fallbacks = append(fallbacks, name)
	}
	m.fallbacks = fallbacks
	return nil
}

// SearchWeb runs a web search on the primary backend, falling back to alternatives.
// Returns the results, the backend name that succeeded, and any error.
func (m *Manager) SearchWeb(ctx context.Context, query string, opts SearchOptions) (*WebSearchResult, string, error) {
	var res *WebSearchResult
	name, err := m.each(func(b SearchBackend) error {
		var err error
		res, err = b.SearchWeb(ctx, query, opts)
		return err
	})
	return res, name, err
}

// SearchNews runs a news search on the primary backend, falling back to alternatives
func (m *Manager) SearchNews(ctx context.Context, query string, opts SearchOptions) (*NewsSearchResult, string, error) {
	var res *NewsSearchResult
	name, err := m.each(func(b SearchBackend) error {
		var err error
		res, err = b.SearchNews(ctx, query, opts)
		return err
	})
	return res, name, err
}

// each calls fn on the primary and then on every available fallback until one succeeds
func (m *Manager) each(fn func(SearchBackend) error) (string, error) {
	m.mu.RLock()
	primary, ok := m.registry[m.primary]
	primaryName := m.primary
	fallbacks := make([]string, len(m.fallbacks))
	copy(fallbacks, m.fallbacks)
	m.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("no primary backend configured")
	}

	err := fn(primary)
	if err == nil {
		return primaryName, nil
	}

	errs := []error{wrapError(primaryName, err)}
	for _, name := range fallbacks {
		if name == primaryName {
			continue
		}
		fb, ok := m.Get(name)
		if !ok || !fb.IsAvailable() {
			errs = append(errs, &BackendError{Backend: name, Err: errNotConfigured, Code: ErrCodeUnavailable})
			continue
		}
		fbErr := fn(fb)
		if fbErr == nil {
			return name, nil
		}
		errs = append(errs, wrapError(name, fbErr))
	}

	if len(errs) == 1 {
		return "", errs[0]
	}
	return "", &FallbackError{Errs: errs}
}

// Use returns the named backend, or an error when it is unknown or unconfigured
func (m *Manager) Use(name string) (SearchBackend, error) {
	backend, ok := m.Get(name)
	if !ok {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return nil, fmt.Errorf("unknown backend: %s (available: %s)", name, m.availableNames())
	}
	if !backend.IsAvailable() {
		return nil, &BackendError{
			Backend: name,
			Err:     fmt.Errorf("backend %s is not configured (missing API key?)", name),
			Code:    ErrCodeUnavailable,
		}
	}
	return backend, nil
}

// Get returns a backend by name
func (m *Manager) Get(name string) (SearchBackend, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.registry[name]
	return b, ok
}

// Primary returns the name of the primary backend
func (m *Manager) Primary() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primary
}

// AvailableBackends returns sorted names of all registered backends
func (m *Manager) AvailableBackends() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.names(false)
}

// ConfiguredBackends returns sorted names of backends that are available (configured)
func (m *Manager) ConfiguredBackends() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.names(true)
}

func (m *Manager) names(configuredOnly bool) []string {
	names := make([]string, 0, len(m.registry))
	for name, backend := range m.registry {
		if configuredOnly && !backend.IsAvailable() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) availableNames() string {
	return strings.Join(m.names(false), ", ")
}
