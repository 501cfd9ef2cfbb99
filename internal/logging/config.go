// Package logging configures zerolog for the holoclient binary and tests.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "HOLOCLIENT_LOG_LEVEL"
	EnvLogFormat    = "HOLOCLIENT_LOG_FORMAT"
	EnvLogTimestamp = "HOLOCLIENT_LOG_TIMESTAMP"
	EnvLogNoColor   = "HOLOCLIENT_LOG_NOCOLOR"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config selects level and rendering of log output.
type Config struct {
	Level     zerolog.Level
	Format    string
	Timestamp bool
	NoColor   bool
}

var configureOnce sync.Once

// DefaultConfig returns the defaults of a profile. Tests log at debug
// without timestamps so output is stable.
func DefaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{Level: zerolog.DebugLevel, Format: FormatConsole, NoColor: true}
	default:
		return Config{Level: zerolog.InfoLevel, Format: FormatConsole, Timestamp: true}
	}
}

// Apply overlays a level and format given as text, such as from a config
// file. Unrecognized values are ignored.
func (c *Config) Apply(level, format string) {
	if lvl, ok := ParseLevel(level); ok {
		c.Level = lvl
	}
	if f, ok := parseFormat(format); ok {
		c.Format = f
	}
}

// ApplyEnv overlays the HOLOCLIENT_LOG_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	c.Apply(getenv(EnvLogLevel), getenv(EnvLogFormat))
	if v, ok := parseBool(getenv(EnvLogTimestamp)); ok {
		c.Timestamp = v
	}
	if v, ok := parseBool(getenv(EnvLogNoColor)); ok {
		c.NoColor = v
	}
}

// New builds a logger writing to w.
func New(cfg Config, w io.Writer) zerolog.Logger {
	if cfg.Format != FormatJSON {
		w = zerolog.ConsoleWriter{Out: w, NoColor: cfg.NoColor, TimeFormat: time.RFC3339}
	}
	ctx := zerolog.New(w).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

// Configure installs the global logger for a profile once per process,
// after environment overrides. Later calls return the installed logger.
func Configure(profile Profile, overrides ...func(*Config)) zerolog.Logger {
	configureOnce.Do(func() {
		cfg := DefaultConfig(profile)
		for _, o := range overrides {
			o(&cfg)
		}
		cfg.ApplyEnv(os.Getenv)
		zerolog.SetGlobalLevel(cfg.Level)
		log.Logger = New(cfg, os.Stderr)
	})
	return log.Logger
}

func ConfigureRuntime(overrides ...func(*Config)) zerolog.Logger {
	return Configure(ProfileRuntime, overrides...)
}

func ConfigureTests() zerolog.Logger {
	return Configure(ProfileTest)
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseFormat(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case FormatConsole, "text":
		return FormatConsole, true
	case FormatJSON:
		return FormatJSON, true
	default:
		return "", false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
