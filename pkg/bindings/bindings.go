// Package bindings provides the name/value store scripts read with get and
// write with set, plus the type description the rewriter uses to turn a
// $name occurrence into a typed lookup.
package bindings

import (
	"sort"
	"sync"
)

// Context is a mutable mapping from names to values, shared by the host and
// every script evaluated against it.
// Absent names are not an error: Get yields nil and Lookup reports false.
type Context interface {
	Get(name string) any
	Lookup(name string) (any, bool)
	Put(name string, value any)
	Delete(name string)
	Keys() []string
}

// Map is the default Context. It is safe for concurrent use.
type Map struct {
	mu     sync.RWMutex
	values map[string]any
}

// New returns an empty Map.
func New() *Map {
	return &Map{values: make(map[string]any)}
}

// FromMap returns a Map seeded with a copy of values.
func FromMap(values map[string]any) *Map {
	m := New()
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

func (m *Map) Get(name string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[name]
}

func (m *Map) Lookup(name string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[name]
	return v, ok
}

func (m *Map) Put(name string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
}

// Delete removes name from the map.
func (m *Map) Delete(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, name)
}

// Keys returns the bound names in sorted order.
func (m *Map) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.values))
	for name := range m.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the current contents.
func (m *Map) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}
