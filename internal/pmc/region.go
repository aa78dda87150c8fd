package pmc

import (
	"errors"
	"sync/atomic"
)

// ErrRegionBusy is returned when a region is opened again before its
// previous measurement completed.
var ErrRegionBusy = errors.New("region is already being measured")

const (
	phaseIdle uint32 = iota
	phaseInFlight
	phaseComplete
)

type listState uint8

const (
	detached listState = iota
	running
	suspended
)

// Totals is the result of a completed region.
type Totals struct {
	Counters           [MaxCounters]uint64
	CounterCount       int
	CyclesElapsed      uint64
	ContextSwitchCount uint64
}

// Values returns the active counters.
func (t *Totals) Values() []uint64 {
	return t.Counters[:t.CounterCount]
}

// Region accumulates counter deltas for one measured code region.
//
// The caller owns the memory. Between Open and observed completion the engine
// writes totals from the processing goroutine; the caller must not read
// totals or reuse the region until IsComplete reports true.
type Region struct {
	totals Totals
	owner  uint32
	id     uint64

	// engine-private
	state         listState
	awaitingStart bool

	phase atomic.Uint32
}

// ID returns the engine-assigned identifier of the current measurement.
func (r *Region) ID() uint64 { return r.id }

// Owner returns the OS thread id that opened the region.
func (r *Region) Owner() uint32 { return r.owner }

// IsComplete reports whether the close marker has been applied. A true result
// makes every totals write by the engine visible to the caller.
func (r *Region) IsComplete() bool {
	return r.phase.Load() == phaseComplete
}

// Totals returns the accumulated totals. Only meaningful once IsComplete is
// true.
func (r *Region) Totals() Totals {
	return r.totals
}

// Begin prepares the region for a new measurement. It must be called on the
// caller side before the open marker is emitted.
func (r *Region) Begin(id uint64, owner uint32, counterCount int) error {
	p := r.phase.Load()
	if p == phaseInFlight || !r.phase.CompareAndSwap(p, phaseInFlight) {
		return ErrRegionBusy
	}
	r.totals = Totals{CounterCount: counterCount}
	r.owner = owner
	r.id = id
	r.state = detached
	r.awaitingStart = false
	return nil
}

// Abandon returns a region whose open marker was never emitted to idle.
func (r *Region) Abandon() {
	r.phase.CompareAndSwap(phaseInFlight, phaseIdle)
}

func (r *Region) complete() {
	r.state = detached
	r.phase.Store(phaseComplete)
}

func (r *Region) applyOpen(counters []uint64, cycles uint64) {
	for i := range r.totals.CounterCount {
		r.totals.Counters[i] -= counters[i]
	}
	r.totals.CyclesElapsed -= cycles
}

func (r *Region) applyClose(counters []uint64, cycles uint64) {
	for i := range r.totals.CounterCount {
		r.totals.Counters[i] += counters[i]
	}
	r.totals.CyclesElapsed += cycles
}
