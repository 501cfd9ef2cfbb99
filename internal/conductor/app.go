package conductor

import (
	"context"

	"github.com/roach88/holoclient/internal/clone"
	"github.com/roach88/holoclient/internal/holo"
	"github.com/roach88/holoclient/internal/signing"
	"github.com/roach88/holoclient/internal/transport"
	"github.com/roach88/holoclient/internal/wire"
)

// AppWebsocket is a client for a conductor app interface.
type AppWebsocket struct {
	d       *dispatcher
	session *transport.Session
}

var _ clone.AppAPI = (*AppWebsocket)(nil)

// ConnectApp dials the app interface at url.
func ConnectApp(ctx context.Context, url string, opts ...Option) (*AppWebsocket, error) {
	o := buildOptions(opts)
	s, err := transport.Dial(ctx, url, o.dialOptions()...)
	if err != nil {
		return nil, err
	}
	a := NewAppWebsocket(s, opts...)
	a.session = s
	return a, nil
}

// NewAppWebsocket wraps an existing connection.
func NewAppWebsocket(conn Caller, opts ...Option) *AppWebsocket {
	o := buildOptions(opts)
	return &AppWebsocket{d: &dispatcher{
		api:    wire.AppAPI,
		conn:   conn,
		signer: o.signer,
		log:    o.log.With().Str("component", "app").Logger(),
	}}
}

// Close closes the underlying session, if this client owns one.
func (a *AppWebsocket) Close() error {
	if a.session == nil {
		return nil
	}
	return a.session.Close()
}

// Do sends any app request and decodes the response into out.
func (a *AppWebsocket) Do(ctx context.Context, req Request, out interface{}) error {
	return a.d.call(ctx, req, out)
}

// AppInfo returns the app's info, or nil if it is not installed.
func (a *AppWebsocket) AppInfo(ctx context.Context, app holo.InstalledAppID) (*holo.AppInfo, error) {
	var info *holo.AppInfo
	if err := a.d.call(ctx, AppInfoRequest{InstalledAppID: app}, &info); err != nil {
		return nil, err
	}
	return info, nil
}

// CallZome signs params with the configured signer and calls the zome
// function. It returns the MessagePack-encoded return value.
func (a *AppWebsocket) CallZome(ctx context.Context, params signing.ZomeCallParams) ([]byte, error) {
	var out []byte
	if err := a.d.call(ctx, ZomeCallRequest{Params: params}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CallZomeSigned sends a call the caller already signed.
func (a *AppWebsocket) CallZomeSigned(ctx context.Context, call *holo.ZomeCall) ([]byte, error) {
	var out []byte
	if err := a.d.call(ctx, SignedZomeCallRequest{Call: call}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateCloneCell clones a role's DNA with new modifiers. The clone starts
// enabled.
func (a *AppWebsocket) CreateCloneCell(ctx context.Context, p holo.CreateCloneCellPayload) (*holo.ClonedCell, error) {
	var cell holo.ClonedCell
	if err := a.d.call(ctx, CreateCloneCellRequest{Payload: p}, &cell); err != nil {
		return nil, err
	}
	return &cell, nil
}

// EnableCloneCell re-enables a disabled clone.
func (a *AppWebsocket) EnableCloneCell(ctx context.Context, p holo.EnableCloneCellPayload) (*holo.ClonedCell, error) {
	var cell holo.ClonedCell
	if err := a.d.call(ctx, EnableCloneCellRequest{Payload: p}, &cell); err != nil {
		return nil, err
	}
	return &cell, nil
}

// DisableCloneCell disables an enabled clone.
func (a *AppWebsocket) DisableCloneCell(ctx context.Context, p holo.DisableCloneCellPayload) error {
	return a.d.call(ctx, DisableCloneCellRequest{Payload: p}, nil)
}

// NetworkInfo reports gossip progress for the given DNAs.
func (a *AppWebsocket) NetworkInfo(ctx context.Context, p holo.NetworkInfoRequestPayload) ([]holo.NetworkInfo, error) {
	var infos []holo.NetworkInfo
	if err := a.d.call(ctx, NetworkInfoRequest{Payload: p}, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}
