package pmc

import "sync/atomic"

// engineStats are updated by the processing goroutine and read by collectors.
type engineStats struct {
	events         atomic.Uint64
	opens          atomic.Uint64
	closes         atomic.Uint64
	foreignMarkers atomic.Uint64
	switches       atomic.Uint64
	enters         atomic.Uint64
	exits          atomic.Uint64
	ignored        atomic.Uint64
	suspends       atomic.Uint64
	resumes        atomic.Uint64
	completed      atomic.Uint64
	errors         atomic.Uint64
	suspendedNow   atomic.Int64
}

// Stats is a point-in-time copy of the engine counters.
type Stats struct {
	Events           uint64
	MarkerOpens      uint64
	MarkerCloses     uint64
	ForeignMarkers   uint64
	ThreadSwitches   uint64
	SyscallEnters    uint64
	SyscallExits     uint64
	Ignored          uint64
	Suspends         uint64
	Resumes          uint64
	RegionsCompleted uint64
	Errors           uint64
	Suspended        int64
}

func (s *engineStats) snapshot() Stats {
	return Stats{
		Events:           s.events.Load(),
		MarkerOpens:      s.opens.Load(),
		MarkerCloses:     s.closes.Load(),
		ForeignMarkers:   s.foreignMarkers.Load(),
		ThreadSwitches:   s.switches.Load(),
		SyscallEnters:    s.enters.Load(),
		SyscallExits:     s.exits.Load(),
		Ignored:          s.ignored.Load(),
		Suspends:         s.suspends.Load(),
		Resumes:          s.resumes.Load(),
		RegionsCompleted: s.completed.Load(),
		Errors:           s.errors.Load(),
		Suspended:        s.suspendedNow.Load(),
	}
}
