package asset

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jchantrell/spak/internal/cache"
)

// Manager puts an LRU cache in front of a single Source. It is the only
// component callers are expected to hold.
//
// The Manager serialises every call with one mutex, so it is safe for
// concurrent use even though neither the cache nor most sources are.
type Manager struct {
	mu     sync.Mutex
	source Source
	cache  *cache.LRU
	logger *slog.Logger
	closed bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for cache diagnostics.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a manager caching up to capacity assets from source.
// The manager takes ownership of source and closes it on Close when it
// implements io.Closer.
func NewManager(source Source, capacity int, opts ...ManagerOption) (*Manager, error) {
	if source == nil {
		return nil, fmt.Errorf("asset source cannot be nil")
	}

	lru, err := cache.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("creating asset cache: %w", err)
	}

	m := &Manager{
		source: source,
		cache:  lru,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// GetAsset returns the contents of path, consulting the cache first. The
// returned slice belongs to the caller.
//
// A nil result, which a lenient source returns for a missing asset, is
// passed through without being cached. Empty assets are non-nil and cached
// like any other.
func (m *Manager) GetAsset(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	if data, ok := m.cache.Get(path); ok {
		m.logger.Debug("Asset cache hit", "path", path)
		return data, nil
	}

	data, err := m.source.Fetch(path)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	if evicted, ok := m.cache.Put(path, data); ok {
		m.logger.Debug("Evicted asset from cache", "path", evicted)
	}
	m.logger.Debug("Asset cached", "path", path, "size", len(data))

	return bytes.Clone(data), nil
}

// GetMetadata returns the metadata for path straight from the source.
// Metadata is not cached.
func (m *Manager) GetMetadata(path string) (Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	return m.source.FetchMetadata(path)
}

// Invalidate drops any cached copy of path, forcing the next GetAsset back
// to the source.
func (m *Manager) Invalidate(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cache.Remove(path)
}

// Stats returns the cache counters.
func (m *Manager) Stats() cache.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cache.Stats()
}

// Close frees every cached buffer and closes the source.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.cache.Clear()

	if closer, ok := m.source.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("closing asset source: %w", err)
		}
	}
	return nil
}
