// Package config loads the holoclient configuration file.
//
// The file is YAML. Before decoding it is unified with the #Config CUE
// definition in schema.cue, so unknown keys, malformed URLs and
// malformed durations are reported with the offending path.
package config

import (
	_ "embed"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/roach88/holoclient/internal/transport"
)

//go:embed schema.cue
var schemaSource []byte

// Environment overrides.
const (
	EnvAdminURL = "HOLOCLIENT_ADMIN_URL"
	EnvAppURL   = "HOLOCLIENT_APP_URL"
)

// Config is the holoclient configuration.
type Config struct {
	AdminURL string `yaml:"admin_url"`
	AppURL   string `yaml:"app_url"`
	AppID    string `yaml:"app_id"`

	// Credentials is the path of the signing credential file.
	Credentials string `yaml:"credentials"`

	// Registry is the path of the SQLite clone registry. Empty keeps the
	// registry in memory.
	Registry string `yaml:"registry"`

	Transport Transport `yaml:"transport"`
	Log       Log       `yaml:"log"`
}

// Transport tunes the websocket sessions.
type Transport struct {
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ConnectAttempts int           `yaml:"connect_attempts"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`

	// RateLimit caps outgoing requests per second. Zero means unlimited.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	tc := transport.DefaultConfig()
	return Config{
		AdminURL: "ws://localhost:65000",
		Transport: Transport{
			ConnectTimeout:  tc.ConnectTimeout,
			ConnectAttempts: tc.ConnectAttempts,
			RequestTimeout:  tc.RequestTimeout,
			WriteTimeout:    tc.WriteTimeout,
			PingInterval:    tc.PingInterval,
			RateBurst:       1,
		},
		Log: Log{Level: "info", Format: "console"},
	}
}

// Load reads path, validates it and applies environment overrides. An
// empty path yields the defaults with overrides applied.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		cfg.ApplyEnv(os.Getenv)
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	cfg, err := Parse(path, data)
	if err != nil {
		return Config{}, err
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// Parse validates YAML data against the schema and decodes it over the
// defaults. filename only labels errors.
func Parse(filename string, data []byte) (Config, error) {
	if err := Validate(filename, data); err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// Validate checks YAML data against #Config.
func Validate(filename string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return errors.Wrap(err, "compile config schema")
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return errors.Wrap(err, "parse config")
	}
	v := ctx.BuildFile(file)
	if err := v.Err(); err != nil {
		return errors.Wrap(err, "parse config")
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// ApplyEnv overlays the endpoint variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvAdminURL); v != "" {
		c.AdminURL = v
	}
	if v := getenv(EnvAppURL); v != "" {
		c.AppURL = v
	}
}

// SessionConfig converts the transport section to a session config.
func (t Transport) SessionConfig() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.ConnectTimeout = t.ConnectTimeout
	cfg.ConnectAttempts = t.ConnectAttempts
	cfg.RequestTimeout = t.RequestTimeout
	cfg.WriteTimeout = t.WriteTimeout
	cfg.PingInterval = t.PingInterval
	return cfg
}

// SessionOptions returns the transport options for one session. Each
// call builds its own limiter.
func (t Transport) SessionOptions() []transport.Option {
	opts := []transport.Option{transport.WithConfig(t.SessionConfig())}
	if t.RateLimit > 0 {
		burst := t.RateBurst
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, transport.WithRateLimiter(rate.NewLimiter(rate.Limit(t.RateLimit), burst)))
	}
	return opts
}
