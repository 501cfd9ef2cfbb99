package conductor

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/roach88/holoclient/internal/signing"
	"github.com/roach88/holoclient/internal/transport"
)

type options struct {
	log       zerolog.Logger
	signer    signing.Signer
	transport []transport.Option
}

// Option configures an admin or app client.
type Option func(*options)

// WithLogger sets the client logger. It is also passed to the transport
// session.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.log = logger
	}
}

// WithSigner sets the signer used for zome calls.
func WithSigner(s signing.Signer) Option {
	return func(o *options) {
		o.signer = s
	}
}

// WithTransportOptions passes options through to transport.Dial.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) {
		o.transport = append(o.transport, opts...)
	}
}

func buildOptions(opts []Option) options {
	o := options{log: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) dialOptions() []transport.Option {
	return append([]transport.Option{transport.WithLogger(o.log)}, o.transport...)
}
