// Package metrics exposes engine statistics to Prometheus.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"pmctrace/internal/pmc"
)

// StatsSource is the part of a session the collector reads.
type StatsSource interface {
	Stats() pmc.Stats
	HasError() bool
}

// EngineCollector implements prometheus.Collector over one or more sessions,
// labelled by session id. Values are read on scrape; nothing is cached.
type EngineCollector struct {
	mu       sync.RWMutex
	sessions map[string]StatsSource

	eventsDesc       *prometheus.Desc
	foreignDesc      *prometheus.Desc
	ignoredDesc      *prometheus.Desc
	suspendsDesc     *prometheus.Desc
	resumesDesc      *prometheus.Desc
	completedDesc    *prometheus.Desc
	errorsDesc       *prometheus.Desc
	suspendedDesc    *prometheus.Desc
	errorLatchedDesc *prometheus.Desc
}

// NewEngineCollector returns a collector with no sessions attached.
func NewEngineCollector() *EngineCollector {
	session := []string{"session"}
	return &EngineCollector{
		sessions: make(map[string]StatsSource),

		eventsDesc: prometheus.NewDesc(
			"pmctrace_events_total",
			"Events handled by the correlation engine, by kind.",
			[]string{"session", "kind"}, nil,
		),
		foreignDesc: prometheus.NewDesc(
			"pmctrace_foreign_markers_total",
			"Marker events ignored because they carried another session's key.",
			session, nil,
		),
		ignoredDesc: prometheus.NewDesc(
			"pmctrace_ignored_events_total",
			"Events from unrelated providers or opcodes.",
			session, nil,
		),
		suspendsDesc: prometheus.NewDesc(
			"pmctrace_region_suspends_total",
			"Regions switched out with their owning thread.",
			session, nil,
		),
		resumesDesc: prometheus.NewDesc(
			"pmctrace_region_resumes_total",
			"Suspended regions switched back in.",
			session, nil,
		),
		completedDesc: prometheus.NewDesc(
			"pmctrace_regions_completed_total",
			"Regions whose close marker was applied.",
			session, nil,
		),
		errorsDesc: prometheus.NewDesc(
			"pmctrace_engine_errors_total",
			"Events rejected by the engine. Only the first is latched.",
			session, nil,
		),
		suspendedDesc: prometheus.NewDesc(
			"pmctrace_regions_suspended",
			"Regions currently waiting for their thread to be switched back in.",
			session, nil,
		),
		errorLatchedDesc: prometheus.NewDesc(
			"pmctrace_error_latched",
			"1 once the session has latched an error.",
			session, nil,
		),
	}
}

// Add starts reporting s under id.
func (c *EngineCollector) Add(id string, s StatsSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[id] = s
}

// Remove stops reporting the session with the given id.
func (c *EngineCollector) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
}

// Describe implements prometheus.Collector.
func (c *EngineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.eventsDesc
	ch <- c.foreignDesc
	ch <- c.ignoredDesc
	ch <- c.suspendsDesc
	ch <- c.resumesDesc
	ch <- c.completedDesc
	ch <- c.errorsDesc
	ch <- c.suspendedDesc
	ch <- c.errorLatchedDesc
}

// Collect implements prometheus.Collector.
func (c *EngineCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, s := range c.sessions {
		c.collectSession(ch, id, s)
	}
}

func (c *EngineCollector) collectSession(ch chan<- prometheus.Metric, id string, s StatsSource) {
	st := s.Stats()

	for kind, v := range map[string]uint64{
		"marker_open":   st.MarkerOpens,
		"marker_close":  st.MarkerCloses,
		"thread_switch": st.ThreadSwitches,
		"syscall_enter": st.SyscallEnters,
		"syscall_exit":  st.SyscallExits,
	} {
		ch <- prometheus.MustNewConstMetric(c.eventsDesc, prometheus.CounterValue, float64(v), id, kind)
	}

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), id)
	}
	counter(c.foreignDesc, st.ForeignMarkers)
	counter(c.ignoredDesc, st.Ignored)
	counter(c.suspendsDesc, st.Suspends)
	counter(c.resumesDesc, st.Resumes)
	counter(c.completedDesc, st.RegionsCompleted)
	counter(c.errorsDesc, st.Errors)

	ch <- prometheus.MustNewConstMetric(c.suspendedDesc, prometheus.GaugeValue, float64(st.Suspended), id)

	latched := 0.0
	if s.HasError() {
		latched = 1
	}
	ch <- prometheus.MustNewConstMetric(c.errorLatchedDesc, prometheus.GaugeValue, latched, id)
}
