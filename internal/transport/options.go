package transport

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// SignalHandler receives the payload of each Signal frame. It runs on the
// receive loop and must not block.
type SignalHandler func(data []byte)

// Option configures a Session.
type Option func(*Session)

// WithConfig replaces the session configuration.
func WithConfig(cfg Config) Option {
	return func(s *Session) {
		s.cfg = cfg
	}
}

// WithLogger sets the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.log = logger
	}
}

// WithSignalHandler delivers Signal frames to h.
func WithSignalHandler(h SignalHandler) Option {
	return func(s *Session) {
		s.onSignal = h
	}
}

// WithRateLimiter throttles outgoing requests.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(s *Session) {
		s.limiter = l
	}
}

// WithMetrics records call statistics into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithHeader adds headers to the websocket handshake, e.g. Origin.
func WithHeader(h http.Header) Option {
	return func(s *Session) {
		s.header = h
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(s *Session) {
		s.dialer = d
	}
}
