package maps

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keySpace = 1024

type entry struct{ id uint64 }

func eachImplementation(t *testing.T, f func(t *testing.T, m ConcurrentMap[uint64, *entry])) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			m, err := New[uint64, *entry](name)
			require.NoError(t, err)
			f(t, m)
		})
	}
}

func TestNewUnknownImplementation(t *testing.T) {
	_, err := New[uint64, int]("btree")
	assert.ErrorContains(t, err, `unknown map implementation "btree"`)

	m, err := New[uint64, int]("")
	require.NoError(t, err)
	assert.IsType(t, &XSyncMap[uint64, int]{}, m)
}

func TestBasicOperations(t *testing.T) {
	eachImplementation(t, func(t *testing.T, m ConcurrentMap[uint64, *entry]) {
		a, b := &entry{1}, &entry{2}
		m.Store(1, a)
		m.Store(2, b)
		m.Store(2, b)
		assert.Equal(t, 2, m.Len())

		got, ok := m.Load(1)
		require.True(t, ok)
		assert.Same(t, a, got)

		got, ok = m.LoadAndDelete(2)
		require.True(t, ok)
		assert.Same(t, b, got)
		_, ok = m.LoadAndDelete(2)
		assert.False(t, ok)

		m.Delete(1)
		_, ok = m.Load(1)
		assert.False(t, ok)
		assert.Equal(t, 0, m.Len())
	})
}

func TestLoadOrStoreReportsLoaded(t *testing.T) {
	eachImplementation(t, func(t *testing.T, m ConcurrentMap[uint64, *entry]) {
		first, loaded := m.LoadOrStore(7, func() *entry { return &entry{7} })
		assert.False(t, loaded)

		second, loaded := m.LoadOrStore(7, func() *entry { return &entry{8} })
		assert.True(t, loaded)
		assert.Same(t, first, second)
	})
}

func TestRangeStopsEarly(t *testing.T) {
	eachImplementation(t, func(t *testing.T, m ConcurrentMap[uint64, *entry]) {
		for i := range uint64(10) {
			m.Store(i, &entry{i})
		}
		seen := 0
		m.Range(func(_ uint64, _ *entry) bool {
			seen++
			return seen < 3
		})
		assert.Equal(t, 3, seen)
	})
}

// Publishers store ids while a single resolver loads and retires them, the
// access pattern of the region table.
func TestPublishResolveRetire(t *testing.T) {
	eachImplementation(t, func(t *testing.T, m ConcurrentMap[uint64, *entry]) {
		const publishers, perPublisher = 4, 500
		var next atomic.Uint64
		ids := make(chan uint64, publishers*perPublisher)

		var wg sync.WaitGroup
		for range publishers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range perPublisher {
					id := next.Add(1)
					m.Store(id, &entry{id})
					ids <- id
				}
			}()
		}
		wg.Wait()
		close(ids)

		for id := range ids {
			e, ok := m.Load(id)
			require.True(t, ok)
			require.Equal(t, id, e.id)
			m.Delete(id)
		}
		assert.Equal(t, 0, m.Len())
	})
}

func runMixedWorkloadBenchmark(b *testing.B, bm ConcurrentMap[uint64, *entry], readRatio int) {
	e := &entry{}
	for i := range uint64(keySpace) {
		bm.Store(i, e)
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := r.Uint64() % keySpace
			if r.Intn(100) < readRatio {
				_, _ = bm.Load(key)
			} else {
				bm.Store(key, e)
			}
		}
	})
}

func BenchmarkRegionTable(b *testing.B) {
	for _, name := range Names() {
		b.Run(name+"/ReadHeavy_90R_10W", func(b *testing.B) {
			m, _ := New[uint64, *entry](name)
			runMixedWorkloadBenchmark(b, m, 90)
		})
		b.Run(name+"/WriteHeavy_10R_90W", func(b *testing.B) {
			m, _ := New[uint64, *entry](name)
			runMixedWorkloadBenchmark(b, m, 10)
		})
	}
}
