package pmc

import (
	"sync"

	"github.com/phuslu/log"
)

// DiagLog is a bounded in-memory log of engine decisions. Once full it
// stops accepting entries; entries are never split.
type DiagLog struct {
	mu      sync.Mutex
	buf     []byte
	limit   int
	dropped uint64
}

// NewDiagLog returns a diagnostic log holding at most limit bytes.
func NewDiagLog(limit int) *DiagLog {
	return &DiagLog{buf: make([]byte, 0, min(limit, 64*1024)), limit: limit}
}

// Write implements io.Writer. Entries that do not fit are counted and
// discarded; Write never fails.
func (d *DiagLog) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.buf)+len(p) > d.limit {
		d.dropped++
		return len(p), nil
	}
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// String returns the collected entries.
func (d *DiagLog) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return string(d.buf)
}

// Dropped returns the number of entries discarded because the log was full.
func (d *DiagLog) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Logger returns a trace-level logger writing JSON lines into d. A nil
// DiagLog yields a logger that discards everything without formatting.
func (d *DiagLog) Logger() log.Logger {
	if d == nil {
		return log.Logger{Level: log.PanicLevel + 1, Writer: &log.IOWriter{Writer: discard{}}}
	}
	return log.Logger{
		Level:      log.TraceLevel,
		TimeFormat: log.TimeFormatUnixMs,
		Writer:     &log.IOWriter{Writer: d},
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
