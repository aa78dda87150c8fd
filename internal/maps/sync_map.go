package maps

import (
	"sync"
	"sync/atomic"
)

// StdSyncMap backs ConcurrentMap with sync.Map. sync.Map has no length, so
// one is kept alongside it.
type StdSyncMap[K Integer, V any] struct {
	m sync.Map
	n atomic.Int64
}

func NewStdSyncMap[K Integer, V any]() ConcurrentMap[K, V] {
	return &StdSyncMap[K, V]{}
}

func (m *StdSyncMap[K, V]) Load(key K) (V, bool) {
	val, ok := m.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return val.(V), true
}

func (m *StdSyncMap[K, V]) Store(key K, value V) {
	if _, loaded := m.m.Swap(key, value); !loaded {
		m.n.Add(1)
	}
}

func (m *StdSyncMap[K, V]) Delete(key K) {
	m.LoadAndDelete(key)
}

func (m *StdSyncMap[K, V]) LoadAndDelete(key K) (V, bool) {
	val, loaded := m.m.LoadAndDelete(key)
	if !loaded {
		var zero V
		return zero, false
	}
	m.n.Add(-1)
	return val.(V), true
}

func (m *StdSyncMap[K, V]) LoadOrStore(key K, valueFactory func() V) (V, bool) {
	if val, ok := m.m.Load(key); ok {
		return val.(V), true
	}
	val, loaded := m.m.LoadOrStore(key, valueFactory())
	if !loaded {
		m.n.Add(1)
	}
	return val.(V), loaded
}

func (m *StdSyncMap[K, V]) Range(f func(key K, value V) bool) {
	m.m.Range(func(key, value any) bool {
		return f(key.(K), value.(V))
	})
}

func (m *StdSyncMap[K, V]) Len() int { return int(m.n.Load()) }
