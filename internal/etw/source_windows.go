//go:build windows

package etwmain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/phuslu/log"
	"github.com/tekert/goetw/etw"
	"github.com/tekert/goetw/logsampler/logadapters"
	"go.uber.org/multierr"
	"golang.org/x/sys/windows"

	"pmctrace/internal/counters"
	"pmctrace/internal/etw/guids"
	"pmctrace/internal/logger"
	"pmctrace/internal/pmc"
)

const consumerStopTimeout = 10 * time.Second

// Source runs a kernel trace session with PMC counters attached to context
// switch and system call events, and feeds its records to an engine.
type Source struct {
	name    string
	name16  *uint16
	log     log.Logger
	sampled *logadapters.SampledLogger

	mu          sync.Mutex
	buf         traceBuffer
	traceHandle uint64
	regHandle   uint64
	category    guid
	consumer    *etw.Consumer
	ctx         context.Context
	cancel      context.CancelFunc
	running     bool

	sink pmc.EventSink
	// ev and counters are reused for every record; the consumer calls back
	// from a single goroutine.
	ev       pmc.Event
	counters [pmc.MaxCounters + 1]uint64

	events  atomic.Uint64
	markers atomic.Uint64
}

// NewSource prepares a source for the named trace session.
func NewSource(sessionName string) (*Source, error) {
	if sessionName == "" || len(sessionName) >= maxSessionNameLength {
		return nil, fmt.Errorf("invalid trace session name %q", sessionName)
	}
	name16, err := windows.UTF16PtrFromString(sessionName)
	if err != nil {
		return nil, fmt.Errorf("invalid trace session name %q: %w", sessionName, err)
	}
	return &Source{
		name:     sessionName,
		name16:   name16,
		log:      logger.NewLoggerWithContext("etw_source"),
		sampled:  logger.NewSampledLoggerCtx("etw_source"),
		category: toGUID(guids.MarkerCategoryGUID),
	}, nil
}

// Name returns the trace session name.
func (s *Source) Name() string { return s.name }

// Start creates the trace session, selects mapping's counters, registers the
// marker provider and starts consuming.
func (s *Source) Start(mapping counters.Mapping, sink pmc.EventSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("trace source already running")
	}

	s.log.Info().Str("session", s.name).Strs("counters", mapping.Names).Msg("Starting PMC trace session...")

	handle, err := startTrace(s.name16, &s.buf)
	if err != nil {
		return fmt.Errorf("failed to start trace session: %w", err)
	}
	s.traceHandle = handle
	s.log.Debug().Uint64("handle", handle).Msg("Trace session started")

	if err := selectPMCSources(handle, mapping.Indices()); err != nil {
		return multierr.Append(fmt.Errorf("failed to select PMC sources: %w", err), s.stopTrace())
	}
	s.log.Debug().Any("sources", mapping.Indices()).Msg("PMC sources selected")

	reg, err := registerMarkerProvider()
	if err != nil {
		return multierr.Append(fmt.Errorf("failed to register marker provider: %w", err), s.stopTrace())
	}
	s.regHandle = reg

	s.sink = sink
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.consumer = etw.NewConsumer(s.ctx)
	s.consumer.FromTraceNames(s.name)
	s.consumer.EventRecordCallback = s.eventRecordCallback

	if err := s.consumer.Start(); err != nil {
		s.cancel()
		return multierr.Combine(
			fmt.Errorf("failed to start consumer: %w", err),
			s.stopTrace(),
			s.unregister(),
		)
	}

	s.running = true
	s.log.Info().Str("session", s.name).Msg("PMC trace session running")
	return nil
}

// EmitMarker writes m into the trace from the calling thread.
func (s *Source) EmitMarker(m pmc.Marker) error {
	rec := newMarkerRecord(s.category, m)
	if err := traceEvent(s.traceHandle, &rec); err != nil {
		return err
	}
	s.markers.Add(1)
	return nil
}

// Stop stops the trace session, waits for the consumer to deliver what it
// has buffered and unregisters the marker provider.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	var errs error
	if err := s.stopTrace(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to stop trace session: %w", err))
	}
	if err := s.consumer.StopWithTimeout(consumerStopTimeout); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to stop consumer: %w", err))
	}
	s.cancel()
	if err := s.unregister(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to unregister marker provider: %w", err))
	}

	s.log.Info().Str("session", s.name).
		Uint64("events", s.events.Load()).
		Uint64("markers", s.markers.Load()).
		Msg("PMC trace session stopped")
	return errs
}

func (s *Source) stopTrace() error {
	if s.traceHandle == 0 {
		return nil
	}
	err := stopTrace(s.name16, &s.buf)
	s.traceHandle = 0
	return err
}

func (s *Source) unregister() error {
	if s.regHandle == 0 {
		return nil
	}
	err := unregisterMarkerProvider(s.regHandle)
	s.regHandle = 0
	return err
}

// IsRunning reports whether the session is being consumed.
func (s *Source) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// eventRecordCallback decodes every record straight from the EVENT_RECORD
// and hands it to the engine. Records never reach goetw's parser.
func (s *Source) eventRecordCallback(er *etw.EventRecord) bool {
	s.events.Add(1)

	ev := &s.ev
	*ev = pmc.Event{
		Provider:  classify(&er.EventHeader.ProviderId),
		Opcode:    er.EventHeader.EventDescriptor.Opcode,
		CPU:       uint32(er.ProcessorNumber()),
		Timestamp: uint64(er.EventHeader.TimeStamp),
		Payload:   userData(unsafe.Pointer(er.UserData), er.UserDataLength),
	}

	if n := int(er.ExtendedDataCount); n > 0 {
		items := unsafe.Slice((*extendedItem)(unsafe.Pointer(er.ExtendedData)), n)
		ev.Counters, ev.CounterSets = decodePMC(items, s.counters[:])
	}

	if ev.Provider == pmc.ProviderThread && len(ev.Payload) != pmc.SwitchPayloadSize {
		s.sampled.SampledWarn("cswitch-size").
			Uint8("version", er.EventHeader.EventDescriptor.Version).
			Uint16("datalen", er.UserDataLength).
			Msg("CSwitch event with unexpected payload size")
	}

	s.sink.HandleEvent(ev)
	return false
}

func classify(provider *etw.GUID) pmc.Provider {
	switch {
	case provider.Equals(guids.MarkerCategoryGUID):
		return pmc.ProviderMarker
	case provider.Equals(guids.ThreadKernelGUID):
		return pmc.ProviderThread
	case provider.Equals(guids.PerfInfoKernelGUID):
		return pmc.ProviderSyscall
	default:
		return pmc.ProviderUnknown
	}
}

// sessionStats are the kernel-side buffer counters of the trace session.
type sessionStats struct {
	BuffersInUse        uint32
	BuffersFree         uint32
	EventsLost          uint32
	RealTimeBuffersLost uint32
}

func (s *Source) querySession() (sessionStats, error) {
	var buf traceBuffer
	if err := queryTrace(s.name16, &buf); err != nil {
		return sessionStats{}, err
	}
	return sessionStats{
		BuffersInUse:        buf.Props.NumberOfBuffers,
		BuffersFree:         buf.Props.FreeBuffers,
		EventsLost:          buf.Props.EventsLost,
		RealTimeBuffersLost: buf.Props.RealTimeBuffersLost,
	}, nil
}
