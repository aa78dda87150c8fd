package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables honored by Load.
const (
	EnvConfigPath = "PMCTRACE_CONFIG"
	EnvLogLevel   = "PMCTRACE_LOG_LEVEL"
)

// AppConfig is the complete application configuration.
type AppConfig struct {
	Tracer  TracerConfig  `toml:"tracer"`
	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`
}

// TracerConfig selects counters and sizes the correlation engine.
type TracerConfig struct {
	// Logical counter names, at most 8 (default: TotalIssues, BranchInstructions)
	Counters []string `toml:"counters"`

	// Counter catalog: "auto", "etw" or "perf" (default: "auto")
	Catalog string `toml:"catalog"`

	// Name of the trace session (default: "PMCTraceSession")
	SessionName string `toml:"session_name"`

	// Concurrent map backing the region table (default: "xsync")
	RegionTable string `toml:"region_table"`

	// Number of CPU slots; 0 means every logical CPU (default: 0)
	CPUCount int `toml:"cpu_count"`

	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
	Wait        WaitConfig        `toml:"wait"`
}

// DiagnosticsConfig controls the per-session decision log.
type DiagnosticsConfig struct {
	// Record handler decisions (default: false)
	Enabled bool `toml:"enabled"`

	// Upper bound on retained log bytes (default: 1048576)
	MaxBytes int `toml:"max_bytes"`
}

// WaitConfig tunes how waiters poll for region completion.
type WaitConfig struct {
	// Spins before yielding or sleeping (default: 1024)
	SpinLimit int `toml:"spin_limit"`

	// Sleep between polls after the spin limit; empty yields instead (default: "")
	Backoff string `toml:"backoff"`
}

// BackoffDuration parses Backoff. Empty means zero.
func (w WaitConfig) BackoffDuration() (time.Duration, error) {
	if w.Backoff == "" {
		return 0, nil
	}
	return time.ParseDuration(w.Backoff)
}

// ServerConfig contains HTTP server settings for the run command.
type ServerConfig struct {
	// Serve metrics and diagnostics while running (default: false)
	Enabled bool `toml:"enabled"`

	// Listen address (default: "localhost:9190")
	ListenAddress string `toml:"listen_address"`

	// Metrics endpoint path (default: "/metrics")
	MetricsPath string `toml:"metrics_path"`

	// Diagnostic log endpoint path (default: "/diagnostics")
	DiagnosticsPath string `toml:"diagnostics_path"`
}

// LoggingConfig contains the complete logging configuration
type LoggingConfig struct {
	// Default logging settings applied to all loggers
	Defaults LogDefaults `toml:"defaults"`

	// Output configurations - can have multiple outputs
	Outputs []LogOutput `toml:"outputs"`

	// ETW library log level (default: "warn")
	LibLevel string `toml:"lib_level"`
}

// LogDefaults contains default logger settings
type LogDefaults struct {
	// Log level (default: "info")
	Level string `toml:"level"`

	// Include caller information (default: 0)
	Caller int `toml:"caller"`

	// Time field name (default: "time")
	TimeField string `toml:"time_field"`

	// Time format (default: "" = RFC3339 with milliseconds)
	TimeFormat string `toml:"time_format"`

	// Time zone (default: "Local")
	TimeLocation string `toml:"time_location"`
}

// LogOutput represents a single output configuration
type LogOutput struct {
	// Output type: "console", "file", "syslog", "eventlog"
	Type string `toml:"type"`

	Enabled bool `toml:"enabled"`

	Console  *ConsoleConfig  `toml:"console,omitempty"`
	File     *FileConfig     `toml:"file,omitempty"`
	Syslog   *SyslogConfig   `toml:"syslog,omitempty"`
	Eventlog *EventlogConfig `toml:"eventlog,omitempty"`
}

// ConsoleConfig contains console/terminal output settings
type ConsoleConfig struct {
	// Use fast JSON output (default: false)
	FastIO bool `toml:"fast_io"`

	// Output format when fast_io=false: "auto", "logfmt", "glog" (default: "auto")
	Format string `toml:"format"`

	ColorOutput bool `toml:"color_output"`
	QuoteString bool `toml:"quote_string"`

	// "stdout" or "stderr" (default: "stderr")
	Writer string `toml:"writer"`

	Async bool `toml:"async"`
}

// FileConfig contains file output settings
type FileConfig struct {
	Filename string `toml:"filename"`

	// Maximum file size in megabytes (default: 10)
	MaxSize    int64  `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	TimeFormat string `toml:"time_format"`

	LocalTime    bool `toml:"local_time"`
	HostName     bool `toml:"host_name"`
	ProcessID    bool `toml:"process_id"`
	EnsureFolder bool `toml:"ensure_folder"`
	Async        bool `toml:"async"`
}

// SyslogConfig contains syslog output settings
type SyslogConfig struct {
	Network  string `toml:"network"`
	Address  string `toml:"address"`
	Hostname string `toml:"hostname"`
	Tag      string `toml:"tag"`
	Marker   string `toml:"marker"`
	Async    bool   `toml:"async"`
}

// EventlogConfig contains Windows Event Log settings
type EventlogConfig struct {
	Source string `toml:"source"`
	ID     int    `toml:"id"`
	Host   string `toml:"host"`
	Async  bool   `toml:"async"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Tracer: TracerConfig{
			Counters:    []string{"TotalIssues", "BranchInstructions"},
			Catalog:     "auto",
			SessionName: "PMCTraceSession",
			RegionTable: "xsync",
			Diagnostics: DiagnosticsConfig{
				Enabled:  false,
				MaxBytes: 1 << 20,
			},
			Wait: WaitConfig{SpinLimit: 1024},
		},
		Server: ServerConfig{
			Enabled:         false,
			ListenAddress:   "localhost:9190",
			MetricsPath:     "/metrics",
			DiagnosticsPath: "/diagnostics",
		},
		Logging: LoggingConfig{
			Defaults: LogDefaults{
				Level:        "info",
				TimeField:    "time",
				TimeLocation: "Local",
			},
			Outputs: []LogOutput{
				{
					Type:    "console",
					Enabled: true,
					Console: &ConsoleConfig{
						Format:      "auto",
						ColorOutput: true,
						QuoteString: true,
						Writer:      "stderr",
					},
				},
				{
					Type:    "file",
					Enabled: false,
					File: &FileConfig{
						Filename:     "logs/pmctrace.log",
						MaxSize:      10,
						MaxBackups:   7,
						TimeFormat:   "2006-01-02T15-04-05",
						LocalTime:    true,
						HostName:     true,
						ProcessID:    true,
						EnsureFolder: true,
						Async:        true,
					},
				},
				{
					Type:    "syslog",
					Enabled: false,
					Syslog: &SyslogConfig{
						Network: "udp",
						Address: "localhost:514",
						Tag:     "pmctrace",
						Marker:  "@cee:",
						Async:   true,
					},
				},
			},
			LibLevel: "warn",
		},
	}
}

// Load reads .env (if present), resolves the config path from the argument or
// PMCTRACE_CONFIG, and applies PMCTRACE_LOG_LEVEL over the file.
func Load(configPath string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	if configPath == "" {
		configPath = os.Getenv(EnvConfigPath)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		cfg.Logging.Defaults.Level = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadConfig loads configuration from a TOML file, falling back to defaults
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()
	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	md, err := toml.DecodeFile(configPath, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in %s: %v", configPath, undecoded)
	}
	return config, nil
}

// SaveConfig saves the configuration to a TOML file
func SaveConfig(configPath string, config *AppConfig) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file %s: %w", configPath, err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}
	return nil
}

// GenerateExampleConfig writes the default configuration with a short header.
func GenerateExampleConfig(outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	header := `# pmctrace example configuration
# Generated from the built-in defaults. Copy and edit as needed.
#
# Environment overrides: PMCTRACE_CONFIG, PMCTRACE_LOG_LEVEL

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := toml.NewEncoder(file).Encode(DefaultConfig()); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors
func (c *AppConfig) Validate() error {
	t := c.Tracer
	if len(t.Counters) == 0 {
		return fmt.Errorf("tracer.counters cannot be empty")
	}
	if len(t.Counters) > 8 {
		return fmt.Errorf("tracer.counters lists %d counters, at most 8 supported", len(t.Counters))
	}
	if t.SessionName == "" {
		return fmt.Errorf("tracer.session_name cannot be empty")
	}
	if t.CPUCount < 0 {
		return fmt.Errorf("tracer.cpu_count cannot be negative")
	}
	if t.Diagnostics.Enabled && t.Diagnostics.MaxBytes <= 0 {
		return fmt.Errorf("tracer.diagnostics.max_bytes must be positive when diagnostics are enabled")
	}
	if t.Wait.SpinLimit < 0 {
		return fmt.Errorf("tracer.wait.spin_limit cannot be negative")
	}
	if _, err := t.Wait.BackoffDuration(); err != nil {
		return fmt.Errorf("tracer.wait.backoff: %w", err)
	}

	if c.Server.Enabled {
		if c.Server.ListenAddress == "" {
			return fmt.Errorf("server.listen_address cannot be empty")
		}
		if c.Server.MetricsPath == "" {
			return fmt.Errorf("server.metrics_path cannot be empty")
		}
		if c.Server.DiagnosticsPath == "" {
			return fmt.Errorf("server.diagnostics_path cannot be empty")
		}
	}

	hasEnabledOutput := false
	for _, output := range c.Logging.Outputs {
		if output.Enabled {
			hasEnabledOutput = true
			break
		}
	}
	if !hasEnabledOutput {
		return fmt.Errorf("at least one logging output must be enabled")
	}
	return nil
}
