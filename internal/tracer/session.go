// Package tracer ties counter resolution, an event source and the
// correlation engine into a measurement session.
package tracer

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/phuslu/log"
	"github.com/rs/xid"
	"go.uber.org/multierr"

	"pmctrace/internal/counters"
	"pmctrace/internal/maps"
	"pmctrace/internal/osthread"
	"pmctrace/internal/pmc"
)

//go:generate mockgen -destination=mock_eventsource_test.go -package=tracer . EventSource

// EventSource is the host tracing facility feeding a session.
//
// Start must deliver events to sink from a single goroutine in timestamp
// order. Stop must not return until every delivered event has been handled.
type EventSource interface {
	Start(mapping counters.Mapping, sink pmc.EventSink) error
	EmitMarker(m pmc.Marker) error
	Stop() error
}

// Options tune a session. The zero value is usable.
type Options struct {
	// CPUCount overrides the detected logical processor count.
	CPUCount int
	// RegionTable names the concurrent map implementation; see maps.Names.
	RegionTable string
	// DiagnosticBytes bounds the diagnostic log. Zero disables it.
	DiagnosticBytes int
	Wait            pmc.WaitPolicy
	// Thread returns the calling OS thread id. Defaults to osthread.CurrentID.
	Thread func() uint32
	Logger log.Logger
}

// ResolveCounters maps logical counter names through cat.
func ResolveCounters(cat counters.Catalog, names []string) (counters.Mapping, error) {
	return counters.Resolve(cat, names)
}

// Session is one running measurement engine.
type Session struct {
	id      xid.ID
	key     uint64
	mapping counters.Mapping

	engine  *pmc.Engine
	regions maps.ConcurrentMap[uint64, *pmc.Region]
	source  EventSource
	diag    *pmc.DiagLog
	wait    pmc.WaitPolicy
	thread  func() uint32
	log     log.Logger

	nextID  atomic.Uint64
	endOnce sync.Once
	endErr  error
}

// BeginSession validates mapping, allocates the engine and starts src.
func BeginSession(mapping counters.Mapping, src EventSource, opts Options) (*Session, error) {
	if !mapping.Valid || mapping.Count < 1 || mapping.Count > pmc.MaxCounters {
		return nil, pmc.NewError(pmc.ConfigurationError, "invalid counter source mapping", nil)
	}

	cpus := opts.CPUCount
	if cpus == 0 {
		cpus = osthread.LogicalCPUs(context.Background())
	}

	key, err := newSessionKey()
	if err != nil {
		return nil, pmc.NewError(pmc.ResourceError, "unable to generate session key", err)
	}

	regions, err := maps.New[uint64, *pmc.Region](opts.RegionTable)
	if err != nil {
		return nil, pmc.NewError(pmc.ConfigurationError, "invalid region table", err)
	}

	var diag *pmc.DiagLog
	if opts.DiagnosticBytes > 0 {
		diag = pmc.NewDiagLog(opts.DiagnosticBytes)
	}

	s := &Session{
		id:      xid.New(),
		key:     key,
		mapping: mapping,
		regions: regions,
		source:  src,
		diag:    diag,
		wait:    opts.Wait,
		thread:  opts.Thread,
	}
	if s.thread == nil {
		s.thread = osthread.CurrentID
	}
	s.log = opts.Logger
	s.log.Context = log.NewContext(s.log.Context).Str("session", s.id.String()).Value()

	s.engine, err = pmc.NewEngine(pmc.Options{
		Key:          key,
		CPUCount:     cpus,
		CounterCount: mapping.Count,
		Regions:      regions,
		Diagnostics:  diag,
		Logger:       s.log,
	})
	if err != nil {
		return nil, err
	}

	if err := src.Start(mapping, s.engine); err != nil {
		return nil, pmc.NewError(pmc.SessionError, "failed to start event delivery", err)
	}

	s.log.Info().
		Int("cpus", cpus).
		Strs("counters", mapping.Names).
		Bool("diagnostics", diag != nil).
		Msg("Session started")
	return s, nil
}

func newSessionKey() (uint64, error) {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		if k := binary.LittleEndian.Uint64(b[:]); k != 0 {
			return k, nil
		}
	}
}

// End stops event delivery and waits for the processing goroutine to drain.
// It is safe to call more than once; later calls return the first result.
func (s *Session) End() error {
	s.endOnce.Do(func() {
		if err := s.source.Stop(); err != nil {
			s.endErr = multierr.Append(s.endErr,
				pmc.NewError(pmc.SessionError, "failed to stop event delivery", err))
		}
		if n := s.regions.Len(); n > 0 {
			s.log.Warn().Int("regions", n).Msg("Session ended with regions still open")
		}
		st := s.engine.Stats()
		s.log.Info().
			Uint64("events", st.Events).
			Uint64("regions_completed", st.RegionsCompleted).
			Uint64("errors", st.Errors).
			Msg("Session ended")
	})
	return s.endErr
}

// Open starts measuring r on the calling OS thread. The caller's goroutine
// must stay locked to its thread until the matching Close.
func (s *Session) Open(r *pmc.Region) error {
	id := s.nextID.Add(1)
	if err := r.Begin(id, s.thread(), s.mapping.Count); err != nil {
		return err
	}
	s.regions.Store(id, r)

	err := s.source.EmitMarker(pmc.Marker{Opcode: pmc.OpcodeMarkerOpen, Key: s.key, RegionID: id, Thread: r.Owner()})
	if err != nil {
		s.regions.Delete(id)
		r.Abandon()
		return s.emitFailed("failed to emit region open marker", id, err)
	}
	return nil
}

// Close ends the measurement of r. Totals become available asynchronously;
// use Wait or IsComplete.
func (s *Session) Close(r *pmc.Region) error {
	err := s.source.EmitMarker(pmc.Marker{Opcode: pmc.OpcodeMarkerClose, Key: s.key, RegionID: r.ID(), Thread: s.thread()})
	if err != nil {
		return s.emitFailed("failed to emit region close marker", r.ID(), err)
	}
	return nil
}

func (s *Session) emitFailed(msg string, id uint64, err error) error {
	e := pmc.NewError(pmc.SessionError, msg, fmt.Errorf("region %d: %w", id, err))
	if s.engine.Latch().Set(e) {
		s.log.Error().Err(err).Uint64("region", id).Msg(msg)
	}
	return e
}

// IsComplete reports whether r's totals are final.
func (s *Session) IsComplete(r *pmc.Region) bool {
	return r.IsComplete()
}

// Wait blocks until r completes or the session latches an error.
func (s *Session) Wait(ctx context.Context, r *pmc.Region) (pmc.Totals, error) {
	return pmc.Wait(ctx, r, s.engine.Latch(), s.wait)
}

// HasError reports whether an error has been latched.
func (s *Session) HasError() bool { return s.engine.Latch().Tripped() }

// ErrorMessage returns the latched error message, or "" if none.
func (s *Session) ErrorMessage() string { return s.engine.Latch().Message() }

// Err returns the latched error.
func (s *Session) Err() error { return s.engine.Latch().Err() }

// DiagnosticLog returns the recorded engine decisions.
func (s *Session) DiagnosticLog() string {
	if s.diag == nil {
		return "diagnostic logging is disabled for this session; set a diagnostic byte limit to enable it\n"
	}
	return s.diag.String()
}

// Stats returns engine counters.
func (s *Session) Stats() pmc.Stats { return s.engine.Stats() }

// Key returns the session key embedded in this session's markers.
func (s *Session) Key() uint64 { return s.key }

// ID returns the session's unique id.
func (s *Session) ID() xid.ID { return s.id }

// Mapping returns the counter mapping the session measures.
func (s *Session) Mapping() counters.Mapping { return s.mapping }

// CPUCount returns the number of tracked processors.
func (s *Session) CPUCount() int { return s.engine.CPUCount() }
