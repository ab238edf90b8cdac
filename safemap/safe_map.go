// Package safemap provides a generic map guarded by a read-write mutex. The
// control server publishes per-connection snapshots into one so that the
// operator console and metrics collectors can read them from other goroutines
// while the event loop stays the only writer.
package safemap

import "sync"

// SafeMap is a map safe for concurrent use. The zero value is not usable; use
// NewSafeMap.
type SafeMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// NewSafeMap creates an empty SafeMap.
func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{m: make(map[K]V)}
}

// Store sets the value for k, replacing any previous value.
func (m *SafeMap[K, V]) Store(k K, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[k] = v
}

// Load returns the value for k.
//
// Returns:
//   - The value and true, or the zero value and false when k is absent
func (m *SafeMap[K, V]) Load(k K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.m[k]
	return v, ok
}

// Update replaces the value for k with fn(current, found) atomically with
// respect to other writers.
func (m *SafeMap[K, V]) Update(k K, fn func(v V, found bool) V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.m[k]
	m.m[k] = fn(v, ok)
}

// Delete removes k. Deleting a missing key is a no-op.
func (m *SafeMap[K, V]) Delete(k K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, k)
}

// Has reports whether k is present.
func (m *SafeMap[K, V]) Has(k K) bool {
	_, ok := m.Load(k)
	return ok
}

// Len returns the number of entries.
func (m *SafeMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

// Range calls f for every entry until f returns false. The read lock is held
// for the whole iteration, so f must not write to the map.
func (m *SafeMap[K, V]) Range(f func(k K, v V) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, v := range m.m {
		if !f(k, v) {
			return
		}
	}
}

// Values returns a copy of all values in unspecified order.
func (m *SafeMap[K, V]) Values() []V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]V, 0, len(m.m))
	for _, v := range m.m {
		out = append(out, v)
	}
	return out
}
