package orderedmap

import (
	"encoding/json"
	"fmt"
)

// Map is a string-keyed map that preserves key insertion order and supports
// JSON serialization with that order.
type Map[T any] struct {
	keys   []string
	values map[string]T
}

// New creates a new empty Map.
func New[T any]() *Map[T] {
	return &Map[T]{
		keys:   make([]string, 0),
		values: make(map[string]T),
	}
}

// Set sets the value for a key, preserving insertion order.
func (m *Map[T]) Set(key string, value T) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get retrieves the value for a key.
func (m *Map[T]) Get(key string) (T, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Delete removes a key. Unknown keys are a no-op.
func (m *Map[T]) Delete(key string) {
	if _, exists := m.values[key]; !exists {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (m *Map[T]) Len() int {
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Map[T]) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Reset removes all entries.
func (m *Map[T]) Reset() {
	m.keys = m.keys[:0]
	m.values = make(map[string]T)
}

// MarshalJSON implements json.Marshaler, outputting keys in insertion order.
func (m *Map[T]) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range m.keys {
		v := m.values[k]
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key: %w", err)
		}
		valBytes, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf = append(buf, keyBytes...)
		buf = append(buf, ':')
		buf = append(buf, valBytes...)
		if i < len(m.keys)-1 {
			buf = append(buf, ',')
		}
	}
	buf = append(buf, '}')
	return buf, nil
}
