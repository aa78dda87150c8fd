package maps

import "github.com/puzpuzpuz/xsync/v4"

// XSyncMap backs ConcurrentMap with puzpuzpuz/xsync, the default table.
type XSyncMap[K Integer, V any] struct {
	m *xsync.Map[K, V]
}

func NewXSyncMap[K Integer, V any]() ConcurrentMap[K, V] {
	return &XSyncMap[K, V]{m: xsync.NewMap[K, V]()}
}

func (m *XSyncMap[K, V]) Load(key K) (V, bool)          { return m.m.Load(key) }
func (m *XSyncMap[K, V]) Store(key K, value V)          { m.m.Store(key, value) }
func (m *XSyncMap[K, V]) Delete(key K)                  { m.m.Delete(key) }
func (m *XSyncMap[K, V]) LoadAndDelete(key K) (V, bool) { return m.m.LoadAndDelete(key) }
func (m *XSyncMap[K, V]) Range(f func(key K, value V) bool) { m.m.Range(f) }
func (m *XSyncMap[K, V]) Len() int                      { return m.m.Size() }

// LoadOrStore runs the factory at most once per missing key.
func (m *XSyncMap[K, V]) LoadOrStore(key K, valueFactory func() V) (V, bool) {
	return m.m.LoadOrCompute(key, func() (V, bool) {
		return valueFactory(), false
	})
}
