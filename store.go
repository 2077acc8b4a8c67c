// store.go
// Durable key-value storage surface for persisted cache snapshots.
// These interfaces are public and intended for use by users and driver developers.

package swrcache

import (
	"context"
	"sync"
)

// Store defines the interface for durable key-value storage drivers. GetItem
// returns ErrNotFound when the name is absent.
type Store interface {
	GetItem(ctx context.Context, name string) (string, error)
	SetItem(ctx context.Context, name string, value string) error
	RemoveItem(ctx context.Context, name string) error
}

// Watcher is an optional interface for Store implementations that can observe
// writes made by another execution context (another process, another
// connection). onChange fires after an external write to the named item.
type Watcher interface {
	Watch(ctx context.Context, name string, onChange func()) (stop func(), err error)
}

// StoreStats holds store operation counters for monitoring.
type StoreStats struct {
	Counters map[string]int // Operation name to count
}

// MemoryStore implements Store using an in-memory sync.Map. It also
// implements Watcher: NotifyExternalChange simulates a write arriving from
// another execution context, which is how tests exercise cross-context sync.
type MemoryStore struct {
	store      sync.Map // map[string]string
	watchersMu sync.Mutex
	watchers   map[string]map[int]func()
	nextID     int
	countersMu sync.Mutex
	counters   map[string]int
}

// DefaultMemoryStore is a shared in-memory store instance.
var DefaultMemoryStore = NewMemoryStore()

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		watchers: make(map[string]map[int]func()),
		counters: make(map[string]int),
	}
}

func (m *MemoryStore) GetItem(ctx context.Context, name string) (string, error) {
	m.incrCounter("GetItem")
	if v, ok := m.store.Load(name); ok {
		if s, ok := v.(string); ok {
			m.incrCounter("GetItemHit")
			return s, nil
		}
	}
	m.incrCounter("GetItemMiss")
	return "", ErrNotFound
}

func (m *MemoryStore) SetItem(ctx context.Context, name string, value string) error {
	m.incrCounter("SetItem")
	m.store.Store(name, value)
	return nil
}

func (m *MemoryStore) RemoveItem(ctx context.Context, name string) error {
	m.incrCounter("RemoveItem")
	m.store.Delete(name)
	return nil
}

// Watch registers onChange for external writes to the named item.
func (m *MemoryStore) Watch(ctx context.Context, name string, onChange func()) (func(), error) {
	m.incrCounter("Watch")
	m.watchersMu.Lock()
	defer m.watchersMu.Unlock()
	if m.watchers[name] == nil {
		m.watchers[name] = make(map[int]func())
	}
	id := m.nextID
	m.nextID++
	m.watchers[name][id] = onChange
	return func() {
		m.watchersMu.Lock()
		defer m.watchersMu.Unlock()
		if ws, ok := m.watchers[name]; ok {
			delete(ws, id)
			if len(ws) == 0 {
				delete(m.watchers, name)
			}
		}
	}, nil
}

// NotifyExternalChange fires the watchers for a name as if another execution
// context had just written it. The caller is expected to have stored the new
// value first.
func (m *MemoryStore) NotifyExternalChange(name string) {
	m.watchersMu.Lock()
	ws := make([]func(), 0, len(m.watchers[name]))
	for _, fn := range m.watchers[name] {
		ws = append(ws, fn)
	}
	m.watchersMu.Unlock()
	for _, fn := range ws {
		fn()
	}
}

func (m *MemoryStore) incrCounter(name string) {
	m.countersMu.Lock()
	defer m.countersMu.Unlock()
	m.counters[name]++
}

// Stats returns store operation statistics for monitoring.
func (m *MemoryStore) Stats() StoreStats {
	m.countersMu.Lock()
	defer m.countersMu.Unlock()
	cloned := make(map[string]int, len(m.counters))
	for k, v := range m.counters {
		cloned[k] = v
	}
	return StoreStats{Counters: cloned}
}

// Interface conformance checks.
var (
	_ Store   = (*MemoryStore)(nil)
	_ Watcher = (*MemoryStore)(nil)
)
