package maps

import "fmt"

// Implementation names accepted by New.
const (
	XSync   = "xsync"
	Cornelk = "cornelk"
	Sharded = "sharded"
	Sync    = "sync"
)

// DefaultImplementation is used when no implementation is configured.
const DefaultImplementation = XSync

// Integer is a constraint that permits any integer type.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// ConcurrentMap is a thread-safe map keyed by integers. The region table
// publishes regions from caller goroutines and resolves them on the event
// processing goroutine through it.
type ConcurrentMap[K Integer, V any] interface {
	Load(key K) (V, bool)
	Store(key K, value V)
	Delete(key K)
	LoadAndDelete(key K) (V, bool)
	// LoadOrStore returns the existing value, or stores the factory's value.
	// loaded reports whether the value was already present.
	LoadOrStore(key K, valueFactory func() V) (actual V, loaded bool)
	Range(f func(key K, value V) bool)
	Len() int
}

// NewConcurrentMap returns the default implementation.
func NewConcurrentMap[K Integer, V any]() ConcurrentMap[K, V] {
	m, _ := New[K, V](DefaultImplementation)
	return m
}

// New returns the named implementation. An empty name selects the default.
func New[K Integer, V any](impl string) (ConcurrentMap[K, V], error) {
	switch impl {
	case XSync, "":
		return NewXSyncMap[K, V](), nil
	case Sharded:
		return NewShardedMap[K, V](), nil
	case Cornelk:
		return NewCornelkMap[K, V](), nil
	case Sync:
		return NewStdSyncMap[K, V](), nil
	default:
		return nil, fmt.Errorf("unknown map implementation %q", impl)
	}
}

// Names lists the accepted implementation names.
func Names() []string {
	return []string{XSync, Cornelk, Sharded, Sync}
}
