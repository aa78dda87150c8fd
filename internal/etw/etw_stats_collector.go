//go:build windows

package etwmain

import (
	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"

	"pmctrace/internal/logger"
)

// ETWStatsCollector implements prometheus.Collector for the health of a
// Source: what the consumer lost and what the kernel session dropped.
type ETWStatsCollector struct {
	source *Source
	log    log.Logger

	recordsDesc *prometheus.Desc
	markersDesc *prometheus.Desc

	consumerEventsLostDesc *prometheus.Desc
	traceRTEventsLostDesc  *prometheus.Desc
	traceRTBuffersLostDesc *prometheus.Desc

	sessionBuffersInUseDesc  *prometheus.Desc
	sessionBuffersFreeDesc   *prometheus.Desc
	sessionEventsLostDesc    *prometheus.Desc
	sessionRTBuffersLostDesc *prometheus.Desc
}

// NewETWStatsCollector creates a collector for src.
func NewETWStatsCollector(src *Source) *ETWStatsCollector {
	trace := []string{"trace"}
	return &ETWStatsCollector{
		source: src,
		log:    logger.NewLoggerWithContext("etw_stats_collector"),

		recordsDesc: prometheus.NewDesc(
			"pmctrace_etw_records_total",
			"Event records delivered by the consumer to the engine.",
			trace, nil,
		),
		markersDesc: prometheus.NewDesc(
			"pmctrace_etw_markers_emitted_total",
			"Region markers written into the trace session.",
			trace, nil,
		),

		consumerEventsLostDesc: prometheus.NewDesc(
			"pmctrace_etw_consumer_events_lost_total",
			"Events lost across the consumer's traces.",
			nil, nil,
		),
		traceRTEventsLostDesc: prometheus.NewDesc(
			"pmctrace_etw_trace_rt_events_lost_total",
			"Real-time events lost for a trace, reported by the consumer.",
			trace, nil,
		),
		traceRTBuffersLostDesc: prometheus.NewDesc(
			"pmctrace_etw_trace_rt_buffers_lost_total",
			"Real-time buffers lost for a trace, reported by the consumer.",
			trace, nil,
		),

		sessionBuffersInUseDesc: prometheus.NewDesc(
			"pmctrace_etw_session_buffers_in_use",
			"Buffers allocated by the trace session.",
			trace, nil,
		),
		sessionBuffersFreeDesc: prometheus.NewDesc(
			"pmctrace_etw_session_buffers_free",
			"Free buffers available to the trace session.",
			trace, nil,
		),
		sessionEventsLostDesc: prometheus.NewDesc(
			"pmctrace_etw_session_events_lost_total",
			"Events the trace session could not record.",
			trace, nil,
		),
		sessionRTBuffersLostDesc: prometheus.NewDesc(
			"pmctrace_etw_session_realtime_buffers_lost_total",
			"Real-time buffers the trace session could not deliver.",
			trace, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *ETWStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.recordsDesc
	ch <- c.markersDesc
	ch <- c.consumerEventsLostDesc
	ch <- c.traceRTEventsLostDesc
	ch <- c.traceRTBuffersLostDesc
	ch <- c.sessionBuffersInUseDesc
	ch <- c.sessionBuffersFreeDesc
	ch <- c.sessionEventsLostDesc
	ch <- c.sessionRTBuffersLostDesc
}

// Collect implements prometheus.Collector. Nothing is reported while the
// source is stopped.
func (c *ETWStatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source
	if !s.IsRunning() {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.recordsDesc, prometheus.CounterValue, float64(s.events.Load()), s.name)
	ch <- prometheus.MustNewConstMetric(c.markersDesc, prometheus.CounterValue, float64(s.markers.Load()), s.name)

	s.mu.Lock()
	consumer := s.consumer
	s.mu.Unlock()
	if consumer != nil {
		ch <- prometheus.MustNewConstMetric(c.consumerEventsLostDesc, prometheus.CounterValue,
			float64(consumer.LostEvents.Load()))
		for traceName, trace := range consumer.GetTraces() {
			ch <- prometheus.MustNewConstMetric(c.traceRTEventsLostDesc, prometheus.CounterValue,
				float64(trace.RTLostEvents.Load()), traceName)
			ch <- prometheus.MustNewConstMetric(c.traceRTBuffersLostDesc, prometheus.CounterValue,
				float64(trace.RTLostBuffer.Load()), traceName)
		}
	}

	st, err := s.querySession()
	if err != nil {
		c.log.Error().Err(err).Str("session", s.name).Msg("Failed to query trace session for stats")
		return
	}
	ch <- prometheus.MustNewConstMetric(c.sessionBuffersInUseDesc, prometheus.GaugeValue, float64(st.BuffersInUse), s.name)
	ch <- prometheus.MustNewConstMetric(c.sessionBuffersFreeDesc, prometheus.GaugeValue, float64(st.BuffersFree), s.name)
	ch <- prometheus.MustNewConstMetric(c.sessionEventsLostDesc, prometheus.CounterValue, float64(st.EventsLost), s.name)
	ch <- prometheus.MustNewConstMetric(c.sessionRTBuffersLostDesc, prometheus.CounterValue, float64(st.RealTimeBuffersLost), s.name)
}
