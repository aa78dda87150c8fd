package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmctrace/internal/config"
	"pmctrace/internal/counters"
	"pmctrace/internal/pmc"
	"pmctrace/internal/tracer"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(config.EnvLogLevel, "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReplayCommand(t *testing.T) {
	out, err := execute(t, "replay", "-f", "csv",
		filepath.Join("internal", "scenario", "testdata", "interleaved.toml"),
		filepath.Join("internal", "scenario", "testdata", "migration.toml"))
	require.NoError(t, err, out)

	assert.Contains(t, out, "Scenario,Region,Complete,Cycles,Switches,Counters\n")
	assert.Contains(t, out, ",a,true,30,1,[80]\n")
	assert.Contains(t, out, "ok: 2 scenarios\n")
}

func TestReplayCommandReportsFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wrong.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
name = "wrong"

[[step]]
op = "open"
region = "a"
thread = 3

[[step]]
op = "exit"
cycles = 10
counters = [100]

[[step]]
op = "enter"
cycles = 40
counters = [130]

[[step]]
op = "close"
region = "a"
thread = 3

[expect.a]
counters = [31]
`), 0o644))

	out, err := execute(t, "replay", path)
	require.EqualError(t, err, "1 of 1 scenarios failed")
	assert.Contains(t, out, `FAIL wrong: region "a": counters = [30], want [31]`)

	out, err = execute(t, "replay", "--no-check", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok: 1 scenarios")
}

func TestReplayCommandDiagnostics(t *testing.T) {
	out, err := execute(t, "replay", "--diagnostics",
		filepath.Join("internal", "scenario", "testdata", "single_thread.toml"))
	require.NoError(t, err)
	assert.Contains(t, out, "diagnostic log ---")
	assert.NotContains(t, out, "diagnostic logging is disabled")
}

func TestReplayCommandMissingFile(t *testing.T) {
	_, err := execute(t, "replay", filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)

	_, err = execute(t, "replay")
	assert.ErrorContains(t, err, "requires at least 1 arg")
}

func TestCountersCommandUnknownCatalog(t *testing.T) {
	_, err := execute(t, "counters", "--catalog", "bogus")
	assert.ErrorContains(t, err, `unknown counter catalog "bogus"`)
}

func TestConfigGenerate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "pmctrace.toml")
	out, err := execute(t, "config", "generate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Tracer.Counters, cfg.Tracer.Counters)
}

func TestWriteSources(t *testing.T) {
	var buf bytes.Buffer
	writeSources(NewCSVWriter(&buf), counters.Sorted(counters.StaticCatalog{
		{Name: "TotalIssues", Index: 2, MinInterval: 4096, MaxInterval: 65536},
		{Name: "BranchMispredictions", Index: 11},
	}))
	assert.Equal(t, "Name,Index,Min interval,Max interval\n"+
		"BranchMispredictions,11,0,0\n"+
		"TotalIssues,2,4096,65536\n", buf.String())
}

func TestNewResultWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := newResultWriter("table", &buf)
	require.NoError(t, err)
	w.SetHeader([]string{"A", "B"})
	w.Append([]string{"1", "2"})
	w.Render()
	assert.True(t, strings.Contains(buf.String(), "| A | B |"), buf.String())

	_, err = newResultWriter("xml", &buf)
	assert.ErrorContains(t, err, `unknown output format "xml"`)
}

// syntheticKernel brackets every marker with the system call events the
// kernel would report around it. Counter values and timestamps come from one
// monotonic clock.
type syntheticKernel struct {
	mu   sync.Mutex
	sink pmc.EventSink
	now  uint64
}

func (k *syntheticKernel) Start(_ counters.Mapping, sink pmc.EventSink) error {
	k.sink = sink
	return nil
}

func (k *syntheticKernel) Stop() error { return nil }

func (k *syntheticKernel) EmitMarker(m pmc.Marker) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	switch m.Opcode {
	case pmc.OpcodeMarkerOpen:
		k.deliver(pmc.MarkerEvent(m, 0, k.tick()))
		ts := k.tick()
		k.deliver(pmc.SyscallExitEvent(0, ts, []uint64{ts}))
	case pmc.OpcodeMarkerClose:
		k.now += 50
		ts := k.tick()
		k.deliver(pmc.SyscallEnterEvent(0, ts, []uint64{ts}))
		k.deliver(pmc.MarkerEvent(m, 0, k.tick()))
	}
	return nil
}

func (k *syntheticKernel) tick() uint64 {
	k.now++
	return k.now
}

func (k *syntheticKernel) deliver(ev pmc.Event) {
	k.sink.HandleEvent(&ev)
}

func TestWorkloadMeasuresEveryRegion(t *testing.T) {
	s, err := tracer.BeginSession(
		counters.Mapping{Names: []string{"cycles"}, Count: 1, Valid: true},
		&syntheticKernel{},
		tracer.Options{CPUCount: 1, Logger: log.Logger{Level: log.PanicLevel}},
	)
	require.NoError(t, err)
	defer s.End()

	wl := workload{workers: 3, regions: 20, bufferSize: 4096, seed: 7}
	results, err := wl.run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, i, r.Worker)
		assert.Equal(t, 20, r.Measured)
		assert.Positive(t, r.Checksum)
		assert.GreaterOrEqual(t, r.Best.CyclesElapsed, uint64(51))
		assert.Equal(t, []uint64{r.Best.CyclesElapsed}, r.Best.Values())
		assert.Zero(t, r.Best.ContextSwitchCount)
	}
	require.NoError(t, s.End())
	assert.False(t, s.HasError())
	assert.EqualValues(t, 60, s.Stats().RegionsCompleted)
}

func TestWorkloadStopsOnCancel(t *testing.T) {
	s, err := tracer.BeginSession(
		counters.Mapping{Names: []string{"cycles"}, Count: 1, Valid: true},
		&syntheticKernel{},
		tracer.Options{CPUCount: 1, Logger: log.Logger{Level: log.PanicLevel}},
	)
	require.NoError(t, err)
	defer s.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = workload{workers: 2, regions: 5, bufferSize: 16}.run(ctx, s)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBranchyScan(t *testing.T) {
	assert.Equal(t, 2, branchyScan([]byte{0x00, 0x80, 0x7f, 0xff}))
	assert.Zero(t, branchyScan(nil))
}
