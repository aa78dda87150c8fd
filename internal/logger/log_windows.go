//go:build windows

package logger

import (
	"time"

	"github.com/phuslu/log"
	"github.com/tekert/goetw/etw"
	"github.com/tekert/goetw/logsampler"
	"github.com/tekert/goetw/logsampler/logadapters"

	"pmctrace/internal/config"
)

// mainSampler deduplicates repeated errors from the event callback path.
var mainSampler logsampler.Sampler

func createEventlogWriter(cfg *config.EventlogConfig) (log.Writer, error) {
	return async(&log.EventlogWriter{
		Source: cfg.Source,
		ID:     uintptr(cfg.ID),
		Host:   cfg.Host,
	}, cfg.Async), nil
}

// configureTraceLibrary routes goetw's internal loggers to the shared writer
// and builds the sampler used by NewSampledLoggerCtx.
func configureTraceLibrary(level string, w log.Writer) error {
	mainSampler = logsampler.NewDeduplicatingSampler(logsampler.BackoffConfig{
		InitialInterval: time.Second,
		MaxInterval:     time.Hour,
		Factor:          1.5,
		ResetInterval:   10 * time.Minute,
	}, &logadapters.SummaryReporter{Logger: &log.DefaultLogger})

	lm := etw.GetLogManager()
	lvl := ParseLevel(level)
	lm.SetLogLevels(map[etw.LoggerName]log.Level{
		etw.ConsumerLogger: lvl,
		etw.SessionLogger:  lvl,
		etw.DefaultLogger:  lvl,
	})
	lm.SetBaseContext(log.NewContext(nil).Str("source", "etw-lib").Value())
	lm.SetWriter(w)
	return nil
}

// NewSampledLoggerCtx returns a component logger whose keyed error calls are
// rate limited by the shared sampler.
func NewSampledLoggerCtx(component string) *logadapters.SampledLogger {
	l := NewLoggerWithContext(component)
	return logadapters.NewSampledLogger(&l, mainSampler)
}
