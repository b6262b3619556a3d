package cache

import (
	"maps"
	"sync"
)

// Memory keeps entries in a map and never touches disk.
type Memory[V any] struct {
	mu   sync.RWMutex
	data map[string]V
}

// NewMemory creates an empty in-memory store.
func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{data: make(map[string]V)}
}

// Get returns the value stored under key.
func (m *Memory[V]) Get(key string) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

// Put stores value under key.
func (m *Memory[V]) Put(key string, value V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// PutAll stores every entry of values.
func (m *Memory[V]) PutAll(values map[string]V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	maps.Copy(m.data, values)
	return nil
}

// Snapshot returns a copy of the stored entries.
func (m *Memory[V]) Snapshot() map[string]V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.data)
}

// Len reports the number of stored entries.
func (m *Memory[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
