package pmc

import (
	"fmt"

	"github.com/phuslu/log"
)

// RegionLookup resolves region ids carried in marker payloads.
type RegionLookup interface {
	Load(id uint64) (*Region, bool)
	Delete(id uint64)
}

// Options configures an Engine.
type Options struct {
	// Key filters markers; markers carrying any other key are ignored.
	Key uint64
	// CPUCount is the number of per-core states to allocate.
	CPUCount int
	// CounterCount is the number of counters attached to every kernel event.
	CounterCount int
	Regions      RegionLookup
	// Diagnostics receives a line per engine decision when non-nil.
	Diagnostics *DiagLog
	Logger      log.Logger
}

// Engine correlates marker, thread-switch and syscall events into
// per-region counter totals.
//
// HandleEvent must be called from a single goroutine. The latch, stats and
// region completion flags are the only state read from other goroutines.
type Engine struct {
	key          uint64
	counterCount int
	cpus         []cpuState
	suspended    regionList
	regions      RegionLookup

	latch Latch
	stats engineStats
	diag  *DiagLog
	trace log.Logger
	log   log.Logger
}

// NewEngine validates opts and allocates per-core state.
func NewEngine(opts Options) (*Engine, error) {
	if opts.CounterCount < 1 || opts.CounterCount > MaxCounters {
		return nil, NewError(ConfigurationError,
			fmt.Sprintf("counter count %d outside 1..%d", opts.CounterCount, MaxCounters), nil)
	}
	if opts.CPUCount < 1 {
		return nil, NewError(ResourceError, "unable to allocate memory for CPU core tracking",
			fmt.Errorf("invalid core count %d", opts.CPUCount))
	}
	if opts.Regions == nil {
		return nil, NewError(ResourceError, "no region table", nil)
	}
	return &Engine{
		key:          opts.Key,
		counterCount: opts.CounterCount,
		cpus:         make([]cpuState, opts.CPUCount),
		regions:      opts.Regions,
		diag:         opts.Diagnostics,
		trace:        opts.Diagnostics.Logger(),
		log:          opts.Logger,
	}, nil
}

// Latch exposes the engine's sticky error.
func (e *Engine) Latch() *Latch { return &e.latch }

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats { return e.stats.snapshot() }

// CPUCount returns the number of tracked cores.
func (e *Engine) CPUCount() int { return len(e.cpus) }

// HandleEvent dispatches one event. Events that violate the protocol latch
// a ProtocolError and leave engine state unchanged.
func (e *Engine) HandleEvent(ev *Event) {
	e.stats.events.Add(1)

	if int(ev.CPU) >= len(e.cpus) {
		e.fail(ev, "out-of-bounds CPU index in event")
		return
	}
	cpu := &e.cpus[ev.CPU]

	switch ev.Provider {
	case ProviderMarker:
		e.handleMarker(cpu, ev)
	case ProviderThread:
		if ev.Opcode == OpcodeThreadSwitch {
			e.stats.switches.Add(1)
			e.handleThreadSwitch(cpu, ev)
			return
		}
		e.stats.ignored.Add(1)
	case ProviderSyscall:
		switch ev.Opcode {
		case OpcodeSyscallEnter:
			e.stats.enters.Add(1)
			e.handleSyscallEnter(cpu, ev)
		case OpcodeSyscallExit:
			e.stats.exits.Add(1)
			e.handleSyscallExit(cpu, ev)
		default:
			e.stats.ignored.Add(1)
		}
	default:
		e.stats.ignored.Add(1)
	}
}

func (e *Engine) handleMarker(cpu *cpuState, ev *Event) {
	key, id, ok := DecodeMarker(ev.Payload)
	if !ok {
		e.fail(ev, "malformed marker payload")
		return
	}
	if key != e.key {
		e.stats.foreignMarkers.Add(1)
		return
	}
	r, ok := e.regions.Load(id)
	if !ok {
		e.fail(ev, fmt.Sprintf("marker references unknown region %d", id))
		return
	}

	switch ev.Opcode {
	case OpcodeMarkerOpen:
		e.stats.opens.Add(1)
		e.handleOpen(cpu, r, ev)
	case OpcodeMarkerClose:
		e.stats.closes.Add(1)
		e.handleClose(cpu, r, ev)
	default:
		e.fail(ev, fmt.Sprintf("unrecognized marker opcode %d", ev.Opcode))
	}
}

// fetchCounters validates the PMC block attached to ev.
func (e *Engine) fetchCounters(ev *Event) ([]uint64, bool) {
	if len(ev.Counters) != e.counterCount {
		e.fail(ev, fmt.Sprintf("unexpected PMC data size: %d counters, want %d",
			len(ev.Counters), e.counterCount))
		return nil, false
	}
	if ev.CounterSets != 1 {
		e.fail(ev, fmt.Sprintf("unexpected PMC data count: %d blocks", ev.CounterSets))
		return nil, false
	}
	return ev.Counters, true
}

// fail latches a ProtocolError for ev. Only the first error is kept; every
// failure is counted and logged.
func (e *Engine) fail(ev *Event, msg string) {
	e.stats.errors.Add(1)
	err := &Error{Kind: ProtocolError, Message: msg, CPU: int(ev.CPU), Timestamp: ev.Timestamp}
	first := e.latch.Set(err)

	e.trace.Trace().
		Str("op", "error").
		Uint32("cpu", ev.CPU).
		Uint64("ts", ev.Timestamp).
		Bool("latched", first).
		Msg(msg)
	if first {
		e.log.Error().
			Str("provider", ev.Provider.String()).
			Uint8("opcode", ev.Opcode).
			Uint32("cpu", ev.CPU).
			Uint64("ts", ev.Timestamp).
			Msg(msg)
	}
}
