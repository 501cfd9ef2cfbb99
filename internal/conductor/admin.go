package conductor

import (
	"context"

	"github.com/roach88/holoclient/internal/clienterr"
	"github.com/roach88/holoclient/internal/clone"
	"github.com/roach88/holoclient/internal/holo"
	"github.com/roach88/holoclient/internal/signing"
	"github.com/roach88/holoclient/internal/transport"
	"github.com/roach88/holoclient/internal/wire"
)

// AdminWebsocket is a client for the conductor's admin interface.
type AdminWebsocket struct {
	d       *dispatcher
	session *transport.Session
}

var _ clone.AdminAPI = (*AdminWebsocket)(nil)

// ConnectAdmin dials the admin interface at url.
func ConnectAdmin(ctx context.Context, url string, opts ...Option) (*AdminWebsocket, error) {
	o := buildOptions(opts)
	s, err := transport.Dial(ctx, url, o.dialOptions()...)
	if err != nil {
		return nil, err
	}
	a := NewAdminWebsocket(s, opts...)
	a.session = s
	return a, nil
}

// NewAdminWebsocket wraps an existing connection.
func NewAdminWebsocket(conn Caller, opts ...Option) *AdminWebsocket {
	o := buildOptions(opts)
	return &AdminWebsocket{d: &dispatcher{
		api:    wire.AdminAPI,
		conn:   conn,
		signer: o.signer,
		log:    o.log.With().Str("component", "admin").Logger(),
	}}
}

// Close closes the underlying session, if this client owns one.
func (a *AdminWebsocket) Close() error {
	if a.session == nil {
		return nil
	}
	return a.session.Close()
}

// Do sends any admin request and decodes the response into out.
func (a *AdminWebsocket) Do(ctx context.Context, req Request, out interface{}) error {
	return a.d.call(ctx, req, out)
}

// GenerateAgentPubKey creates a new agent key in the conductor's keystore.
func (a *AdminWebsocket) GenerateAgentPubKey(ctx context.Context) (holo.AgentPubKey, error) {
	var key holo.AgentPubKey
	if err := a.d.call(ctx, GenerateAgentPubKeyRequest{}, &key); err != nil {
		return nil, err
	}
	return key, nil
}

// ListAppInterfaces returns the ports of attached app interfaces.
func (a *AdminWebsocket) ListAppInterfaces(ctx context.Context) ([]uint16, error) {
	var ports []uint16
	if err := a.d.call(ctx, ListAppInterfacesRequest{}, &ports); err != nil {
		return nil, err
	}
	return ports, nil
}

// AttachAppInterface opens an app interface and returns its port.
func (a *AdminWebsocket) AttachAppInterface(ctx context.Context, port uint16) (uint16, error) {
	var resp portBody
	if err := a.d.call(ctx, AttachAppInterfaceRequest{Port: port}, &resp); err != nil {
		return 0, err
	}
	return resp.Port, nil
}

// ListApps lists installed apps. An empty filter lists all of them.
func (a *AdminWebsocket) ListApps(ctx context.Context, filter holo.AppStatusFilter) ([]holo.AppInfo, error) {
	var apps []holo.AppInfo
	if err := a.d.call(ctx, ListAppsRequest{StatusFilter: filter}, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// InstallApp installs an app bundle.
func (a *AdminWebsocket) InstallApp(ctx context.Context, p holo.InstallAppPayload) (*holo.AppInfo, error) {
	var info holo.AppInfo
	if err := a.d.call(ctx, InstallAppRequest{Payload: p}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// UninstallApp removes an installed app.
func (a *AdminWebsocket) UninstallApp(ctx context.Context, app holo.InstalledAppID) error {
	return a.d.call(ctx, UninstallAppRequest{InstalledAppID: app}, nil)
}

// EnableApp enables an installed app.
func (a *AdminWebsocket) EnableApp(ctx context.Context, app holo.InstalledAppID) (*holo.EnableAppResponse, error) {
	var resp holo.EnableAppResponse
	if err := a.d.call(ctx, EnableAppRequest{InstalledAppID: app}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DisableApp disables an installed app.
func (a *AdminWebsocket) DisableApp(ctx context.Context, app holo.InstalledAppID) error {
	return a.d.call(ctx, DisableAppRequest{InstalledAppID: app}, nil)
}

// GetDnaDefinition returns the definition of a registered DNA.
func (a *AdminWebsocket) GetDnaDefinition(ctx context.Context, dna holo.DnaHash) (*holo.DnaDef, error) {
	var def holo.DnaDef
	if err := a.d.call(ctx, GetDnaDefinitionRequest{DnaHash: dna}, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// GrantZomeCallCapability installs a capability grant on a cell.
func (a *AdminWebsocket) GrantZomeCallCapability(ctx context.Context, p holo.GrantZomeCallCapabilityPayload) error {
	return a.d.call(ctx, GrantZomeCallCapabilityRequest{Payload: p}, nil)
}

// DeleteCloneCell permanently deletes a disabled clone cell.
func (a *AdminWebsocket) DeleteCloneCell(ctx context.Context, p holo.DeleteCloneCellPayload) error {
	return a.d.call(ctx, DeleteCloneCellRequest{Payload: p}, nil)
}

// DeleteDisabledCloneCells permanently deletes every disabled clone of a
// role.
func (a *AdminWebsocket) DeleteDisabledCloneCells(ctx context.Context, p holo.DeleteDisabledCloneCellsPayload) error {
	return a.d.call(ctx, DeleteDisabledCloneCellsRequest{Payload: p}, nil)
}

// StorageInfo reports per-DNA storage usage.
func (a *AdminWebsocket) StorageInfo(ctx context.Context) (*holo.StorageInfo, error) {
	var info holo.StorageInfo
	if err := a.d.call(ctx, StorageInfoRequest{}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DumpNetworkStats returns the conductor's network statistics as JSON.
func (a *AdminWebsocket) DumpNetworkStats(ctx context.Context) (string, error) {
	var stats string
	if err := a.d.call(ctx, DumpNetworkStatsRequest{}, &stats); err != nil {
		return "", err
	}
	return stats, nil
}

// UpdateCoordinators replaces the coordinator zomes of a DNA.
func (a *AdminWebsocket) UpdateCoordinators(ctx context.Context, p holo.UpdateCoordinatorsPayload) error {
	return a.d.call(ctx, UpdateCoordinatorsRequest{Payload: p}, nil)
}

// GraftRecords inserts records into a cell's source chain.
func (a *AdminWebsocket) GraftRecords(ctx context.Context, p holo.GraftRecordsPayload) error {
	return a.d.call(ctx, GraftRecordsRequest{Payload: p}, nil)
}

// AuthorizeSigningCredentials creates a fresh signing key and cap secret
// for cellID and grants them access to functions. A zero functions value
// grants every function.
func (a *AdminWebsocket) AuthorizeSigningCredentials(ctx context.Context, cellID holo.CellID, functions holo.GrantedFunctions) (*signing.Credentials, error) {
	if !functions.All && len(functions.Listed) == 0 {
		functions = holo.AllFunctions()
	}
	creds, err := signing.GenerateCredentials(cellID, functions)
	if err != nil {
		return nil, &clienterr.Error{Kind: clienterr.KindSigning, Op: "authorize_signing_credentials", Err: err}
	}
	err = a.GrantZomeCallCapability(ctx, holo.GrantZomeCallCapabilityPayload{
		CellID:   cellID,
		CapGrant: creds.CapGrant(),
	})
	if err != nil {
		return nil, err
	}
	a.d.log.Info().Str("cell_id", cellID.String()).Msg("signing credentials authorized")
	return creds, nil
}
