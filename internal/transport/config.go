package transport

import "time"

// BackoffConfig defines dial retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines session timeouts and retry behavior.
type Config struct {
	// ConnectTimeout bounds one websocket handshake.
	ConnectTimeout time.Duration

	// ConnectAttempts is the number of dial attempts before giving up.
	ConnectAttempts int

	// RequestTimeout bounds each call unless the caller's context
	// expires first. Zero disables the session-level deadline.
	RequestTimeout time.Duration

	// WriteTimeout bounds one frame write. Zero disables the deadline.
	WriteTimeout time.Duration

	// PingInterval is the keepalive period. Zero disables pings. With
	// pings on, a peer that sends nothing, not even a pong, for two
	// intervals is treated as lost.
	PingInterval time.Duration

	Backoff BackoffConfig
}

// DefaultConfig returns the session defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:  5 * time.Second,
		ConnectAttempts: 3,
		RequestTimeout:  60 * time.Second,
		WriteTimeout:    10 * time.Second,
		PingInterval:    30 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}
