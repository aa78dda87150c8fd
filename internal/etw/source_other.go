//go:build !windows

package etwmain

import (
	"github.com/prometheus/client_golang/prometheus"

	"pmctrace/internal/counters"
	"pmctrace/internal/pmc"
)

// Source is unavailable on this platform.
type Source struct{}

func NewSource(string) (*Source, error) { return nil, ErrUnsupported }

func (*Source) Name() string { return "" }
func (*Source) Start(counters.Mapping, pmc.EventSink) error { return ErrUnsupported }
func (*Source) EmitMarker(pmc.Marker) error { return ErrUnsupported }
func (*Source) Stop() error { return nil }
func (*Source) IsRunning() bool { return false }

// ETWStatsCollector reports nothing on this platform.
type ETWStatsCollector struct{}

func NewETWStatsCollector(*Source) *ETWStatsCollector { return &ETWStatsCollector{} }

func (*ETWStatsCollector) Describe(chan<- *prometheus.Desc) {}
func (*ETWStatsCollector) Collect(chan<- prometheus.Metric) {}
