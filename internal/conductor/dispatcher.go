// Package conductor provides typed clients for a conductor's admin and app
// websocket interfaces.
//
// Every request travels one path: sign (zome calls only), encode, send over
// the transport session, map conductor errors, check the response tag,
// decode. AdminWebsocket and AppWebsocket are thin typed facades over that
// path.
package conductor

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/roach88/holoclient/internal/clienterr"
	"github.com/roach88/holoclient/internal/holo"
	"github.com/roach88/holoclient/internal/signing"
	"github.com/roach88/holoclient/internal/wire"
)

// Caller sends one encoded request and returns the encoded response.
// *transport.Session implements it.
type Caller interface {
	Call(ctx context.Context, payload []byte) ([]byte, error)
}

type dispatcher struct {
	api    wire.API
	conn   Caller
	signer signing.Signer
	log    zerolog.Logger
}

// call dispatches req and decodes the response data into out, which may be
// nil when the response carries no body.
func (d *dispatcher) call(ctx context.Context, req Request, out interface{}) error {
	m := req.Method()
	op := m.String()
	if m.API() != d.api {
		return clienterr.Precondition(op, clienterr.CodeInvalidRequest,
			"%s is served by the %s interface, not %s", op, m.API(), d.api)
	}

	req, err := d.prepare(req)
	if err != nil {
		return withOp(err, op)
	}

	payload, err := wire.EncodeRequest(m, req.payload())
	if err != nil {
		return clienterr.Precondition(op, clienterr.CodeInvalidRequest, "encode request: %v", err)
	}

	started := time.Now()
	raw, err := d.conn.Call(ctx, payload)
	if err != nil {
		d.log.Debug().Err(err).Str("method", op).Msg("call failed")
		return withOp(err, op)
	}

	err = wire.DecodeResponse(m, raw, out)
	d.log.Debug().
		Str("method", op).
		Dur("elapsed", time.Since(started)).
		Bool("ok", err == nil).
		Msg("call completed")
	if err == nil {
		return nil
	}

	var re *wire.RemoteError
	switch {
	case errors.As(err, &re):
		return clienterr.Remote(op, re.Type, re.Message)
	case errors.Is(err, wire.ErrUnexpectedResponse):
		return &clienterr.Error{Kind: clienterr.KindRemote, Op: op, Code: clienterr.CodeUnexpectedResponse, Err: err}
	default:
		return &clienterr.Error{Kind: clienterr.KindRemote, Op: op, Code: clienterr.CodeInvalidResponse, Err: err}
	}
}

// prepare signs zome calls and rejects unsigned ones. Other requests pass
// through unchanged.
func (d *dispatcher) prepare(req Request) (Request, error) {
	switch r := req.(type) {
	case ZomeCallRequest:
		if d.signer == nil {
			return nil, clienterr.Signing(clienterr.CodeNoCredentials, "no signer configured")
		}
		call, err := d.signer.Sign(r.Params)
		if err != nil {
			return nil, err
		}
		return SignedZomeCallRequest{Call: call}, nil
	case SignedZomeCallRequest:
		if r.Call == nil || len(r.Call.Signature) != holo.SignatureLen {
			return nil, clienterr.Signing(clienterr.CodeUnsigned, "zome call is not signed")
		}
		return r, nil
	default:
		return req, nil
	}
}

func withOp(err error, op string) error {
	var ce *clienterr.Error
	if errors.As(err, &ce) {
		return ce.WithOp(op)
	}
	return &clienterr.Error{Kind: clienterr.KindConnection, Op: op, Err: err}
}
