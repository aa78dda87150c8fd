package maps

import "github.com/cornelk/hashmap"

// CornelkMap backs ConcurrentMap with the lock-free cornelk/hashmap.
type CornelkMap[K Integer, V any] struct {
	m *hashmap.Map[K, V]
}

func NewCornelkMap[K Integer, V any]() ConcurrentMap[K, V] {
	return &CornelkMap[K, V]{m: hashmap.New[K, V]()}
}

func (m *CornelkMap[K, V]) Load(key K) (V, bool) { return m.m.Get(key) }
func (m *CornelkMap[K, V]) Store(key K, value V) { m.m.Set(key, value) }
func (m *CornelkMap[K, V]) Delete(key K)         { m.m.Del(key) }
func (m *CornelkMap[K, V]) Len() int             { return m.m.Len() }

func (m *CornelkMap[K, V]) Range(f func(key K, value V) bool) { m.m.Range(f) }

// LoadAndDelete is not atomic: a Store between the Get and the Del is lost.
// Region ids are never reused, so the table never hits that window.
func (m *CornelkMap[K, V]) LoadAndDelete(key K) (V, bool) {
	val, ok := m.m.Get(key)
	if ok {
		m.m.Del(key)
	}
	return val, ok
}

// LoadOrStore always builds the candidate value.
func (m *CornelkMap[K, V]) LoadOrStore(key K, valueFactory func() V) (V, bool) {
	return m.m.GetOrInsert(key, valueFactory())
}
