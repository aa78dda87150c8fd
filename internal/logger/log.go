package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/phuslu/log"

	"pmctrace/internal/config"
)

// ParseLevel converts a configured level name to a log.Level. Unknown names
// map to info.
func ParseLevel(levelStr string) log.Level {
	switch levelStr {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

func parseTimeLocation(location string) *time.Location {
	switch location {
	case "Local":
		return time.Local
	case "UTC":
		return time.UTC
	default:
		if loc, err := time.LoadLocation(location); err == nil {
			return loc
		}
		return time.Local
	}
}

func mapTimeFormat(format string) string {
	switch format {
	case "Unix":
		return log.TimeFormatUnix
	case "UnixMs":
		return log.TimeFormatUnixMs
	default:
		return format
	}
}

// GlogFormatter writes entries as "Lmmdd hh:mm:ss.uuuuuu goid caller] msg".
type GlogFormatter struct{}

func (f GlogFormatter) Formatter(w io.Writer, a *log.FormatterArgs) (int, error) {
	var buf bytes.Buffer
	if len(a.Level) > 0 {
		buf.WriteByte(a.Level[0] - 32)
	} else {
		buf.WriteByte('?')
	}
	buf.WriteString(a.Time)
	buf.WriteByte(' ')
	buf.WriteString(a.Goid)
	buf.WriteByte(' ')
	buf.WriteString(a.Caller)
	buf.WriteString("] ")
	buf.WriteString(a.Message)
	for _, kv := range a.KeyValues {
		buf.WriteByte(' ')
		buf.WriteString(kv.Key)
		buf.WriteByte('=')
		buf.WriteString(kv.Value)
	}
	buf.WriteByte('\n')
	return w.Write(buf.Bytes())
}

func async(w log.Writer, enabled bool) log.Writer {
	if !enabled {
		return w
	}
	return &log.AsyncWriter{ChannelSize: 4096, Writer: w}
}

func createConsoleWriter(cfg *config.ConsoleConfig) log.Writer {
	var out io.Writer = os.Stderr
	if cfg.Writer == "stdout" {
		out = os.Stdout
	}

	if cfg.FastIO {
		return async(&log.IOWriter{Writer: out}, cfg.Async)
	}

	cw := &log.ConsoleWriter{
		ColorOutput:    cfg.ColorOutput,
		QuoteString:    cfg.QuoteString,
		EndWithMessage: true,
		Writer:         out,
	}
	switch cfg.Format {
	case "logfmt":
		cw.Formatter = log.LogfmtFormatter{TimeField: "time"}.Formatter
	case "glog":
		cw.Formatter = GlogFormatter{}.Formatter
	}
	return async(cw, cfg.Async)
}

func createFileWriter(cfg *config.FileConfig) (log.Writer, error) {
	if cfg.EnsureFolder {
		if err := os.MkdirAll(filepath.Dir(cfg.Filename), 0755); err != nil {
			return nil, err
		}
	}
	return async(&log.FileWriter{
		Filename:     cfg.Filename,
		FileMode:     0644,
		MaxSize:      cfg.MaxSize * 1024 * 1024,
		MaxBackups:   cfg.MaxBackups,
		TimeFormat:   mapTimeFormat(cfg.TimeFormat),
		LocalTime:    cfg.LocalTime,
		HostName:     cfg.HostName,
		ProcessID:    cfg.ProcessID,
		EnsureFolder: cfg.EnsureFolder,
	}, cfg.Async), nil
}

func createSyslogWriter(cfg *config.SyslogConfig) log.Writer {
	return async(&log.SyslogWriter{
		Network:  cfg.Network,
		Address:  cfg.Address,
		Hostname: cfg.Hostname,
		Tag:      cfg.Tag,
		Marker:   cfg.Marker,
	}, cfg.Async)
}

func createWriter(output config.LogOutput) (log.Writer, error) {
	switch output.Type {
	case "console":
		if output.Console == nil {
			return nil, fmt.Errorf("console output missing console configuration")
		}
		return createConsoleWriter(output.Console), nil
	case "file":
		if output.File == nil {
			return nil, fmt.Errorf("file output missing file configuration")
		}
		return createFileWriter(output.File)
	case "syslog":
		if output.Syslog == nil {
			return nil, fmt.Errorf("syslog output missing syslog configuration")
		}
		return createSyslogWriter(output.Syslog), nil
	case "eventlog":
		if output.Eventlog == nil {
			return nil, fmt.Errorf("eventlog output missing eventlog configuration")
		}
		return createEventlogWriter(output.Eventlog)
	default:
		return nil, fmt.Errorf("unknown output type: %s", output.Type)
	}
}

// createMultiWriter fans entries out to every enabled output, falling back to
// stderr when none is enabled.
func createMultiWriter(outputs []config.LogOutput) (log.Writer, error) {
	var writers []log.Writer
	for _, output := range outputs {
		if !output.Enabled {
			continue
		}
		w, err := createWriter(output)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}

	switch len(writers) {
	case 0:
		return &log.IOWriter{Writer: os.Stderr}, nil
	case 1:
		return writers[0], nil
	default:
		mw := log.MultiEntryWriter(writers)
		return &mw, nil
	}
}

// ConfigureLogging installs the configured outputs on log.DefaultLogger, the
// base for every component logger.
func ConfigureLogging(cfg config.LoggingConfig) error {
	writer, err := createMultiWriter(cfg.Outputs)
	if err != nil {
		return err
	}

	log.DefaultLogger = log.Logger{
		Level:        ParseLevel(cfg.Defaults.Level),
		Caller:       cfg.Defaults.Caller,
		TimeField:    cfg.Defaults.TimeField,
		TimeFormat:   mapTimeFormat(cfg.Defaults.TimeFormat),
		TimeLocation: parseTimeLocation(cfg.Defaults.TimeLocation),
		Writer:       writer,
	}

	if err := configureTraceLibrary(cfg.LibLevel, writer); err != nil {
		return fmt.Errorf("failed to configure ETW library logging: %w", err)
	}

	log.Debug().
		Str("app_level", cfg.Defaults.Level).
		Str("lib_level", cfg.LibLevel).
		Strs("outputs", enabledOutputs(cfg.Outputs)).
		Msg("Loggers configured")
	return nil
}

func enabledOutputs(outputs []config.LogOutput) []string {
	var names []string
	for _, o := range outputs {
		if o.Enabled {
			names = append(names, o.Type)
		}
	}
	return names
}

// NewLoggerWithContext copies log.DefaultLogger and tags it with a component
// name. Call it after ConfigureLogging.
func NewLoggerWithContext(component string) log.Logger {
	bl := &log.DefaultLogger
	return log.Logger{
		Level:        bl.Level,
		TimeField:    bl.TimeField,
		TimeFormat:   bl.TimeFormat,
		TimeLocation: bl.TimeLocation,
		Writer:       bl.Writer,
		Context:      log.NewContext(bl.Context).Str("component", component).Value(),
	}
}
