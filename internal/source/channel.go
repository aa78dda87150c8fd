// Package source provides an in-process event source. It delivers scripted
// and injected events to an engine on one goroutine, in injection order.
package source

import (
	"errors"
	"sync"
	"time"

	"github.com/phuslu/log"

	"pmctrace/internal/counters"
	"pmctrace/internal/pmc"
)

var (
	ErrStopped        = errors.New("event source stopped")
	ErrNotStarted     = errors.New("event source not started")
	ErrAlreadyStarted = errors.New("event source already started")
)

// Stamper supplies the processor number and timestamp for an emitted marker.
type Stamper func() (cpu uint32, timestamp uint64)

// MonotonicStamper stamps markers on processor 0 with nanoseconds elapsed
// since the stamper was created.
func MonotonicStamper() Stamper {
	start := time.Now()
	return func() (uint32, uint64) {
		return 0, uint64(time.Since(start))
	}
}

// ChannelSource is a buffered, single-consumer event source.
type ChannelSource struct {
	stamp Stamper
	log   log.Logger

	mu      sync.RWMutex
	events  chan pmc.Event
	started bool
	stopped bool
	done    chan struct{}

	mapping counters.Mapping
}

// NewChannelSource returns a source buffering up to buffer events.
func NewChannelSource(buffer int, stamp Stamper, logger log.Logger) *ChannelSource {
	if stamp == nil {
		stamp = MonotonicStamper()
	}
	return &ChannelSource{
		stamp:  stamp,
		log:    logger,
		events: make(chan pmc.Event, buffer),
		done:   make(chan struct{}),
	}
}

// Start begins delivering events to sink on a new goroutine.
func (s *ChannelSource) Start(mapping counters.Mapping, sink pmc.EventSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.stopped:
		return ErrStopped
	case s.started:
		return ErrAlreadyStarted
	}
	s.started = true
	s.mapping = mapping

	go func() {
		defer close(s.done)
		for ev := range s.events {
			sink.HandleEvent(&ev)
		}
	}()

	s.log.Debug().Strs("counters", mapping.Names).Int("buffer", cap(s.events)).Msg("Channel source started")
	return nil
}

// Mapping returns the counter mapping the source was started with.
func (s *ChannelSource) Mapping() counters.Mapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mapping
}

// Inject queues ev for delivery, blocking while the buffer is full. The
// event's slices must not be modified afterwards.
func (s *ChannelSource) Inject(ev pmc.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.stopped:
		return ErrStopped
	case !s.started:
		return ErrNotStarted
	}
	s.events <- ev
	return nil
}

// EmitMarker stamps m with the current processor and time and queues it.
func (s *ChannelSource) EmitMarker(m pmc.Marker) error {
	cpu, ts := s.stamp()
	return s.Inject(pmc.MarkerEvent(m, cpu, ts))
}

// Stop closes the stream and waits for every queued event to be handled.
// Later calls are no-ops.
func (s *ChannelSource) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	close(s.events)
	s.mu.Unlock()

	if started {
		<-s.done
	}
	s.log.Debug().Msg("Channel source stopped")
	return nil
}
