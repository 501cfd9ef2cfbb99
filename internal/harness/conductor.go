package harness

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"github.com/roach88/holoclient/internal/holo"
	"github.com/roach88/holoclient/internal/testutil"
	"github.com/roach88/holoclient/internal/wire"
)

// DefaultRole is the role installed when an install request names none.
const DefaultRole = "main"

// Option configures a FakeConductor.
type Option func(*FakeConductor)

// WithLogger sets the conductor's logger. The default discards output.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *FakeConductor) {
		f.log = logger
	}
}

// WithClock sets the clock used to check zome call expiry.
func WithClock(now func() time.Time) Option {
	return func(f *FakeConductor) {
		f.now = now
	}
}

// WithAgent sets the agent key apps are installed for.
func WithAgent(key holo.AgentPubKey) Option {
	return func(f *FakeConductor) {
		f.agent = key
	}
}

// FakeConductor is an in-process conductor serving an admin and an app
// websocket interface.
type FakeConductor struct {
	log      zerolog.Logger
	now      func() time.Time
	upgrader websocket.Upgrader

	admin *httptest.Server
	app   *httptest.Server

	mu         sync.Mutex
	agent      holo.AgentPubKey
	keys       byte
	apps       map[holo.InstalledAppID]*fakeApp
	dnas       map[string]dnaRecord
	grants     map[string][]holo.ZomeCallCapGrant
	nonces     map[string]struct{}
	interfaces []uint16
	failures   map[wire.Method][]*wire.RemoteError
	conns      map[*fakeConn]struct{}
	trace      []TraceEvent
	seq        int64
}

type dnaRecord struct {
	name      string
	modifiers holo.DnaModifiers
}

type fakeConn struct {
	ws  *websocket.Conn
	api wire.API

	mu sync.Mutex
}

func (c *fakeConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// NewFakeConductor starts a conductor listening on two loopback ports.
// Close it when done.
func NewFakeConductor(opts ...Option) *FakeConductor {
	f := &FakeConductor{
		log:      zerolog.Nop(),
		now:      time.Now,
		agent:    testutil.AgentPubKey(0xA0),
		apps:     make(map[holo.InstalledAppID]*fakeApp),
		dnas:     make(map[string]dnaRecord),
		grants:   make(map[string][]holo.ZomeCallCapGrant),
		nonces:   make(map[string]struct{}),
		failures: make(map[wire.Method][]*wire.RemoteError),
		conns:    make(map[*fakeConn]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.admin = httptest.NewServer(f.serve(wire.AdminAPI))
	f.app = httptest.NewServer(f.serve(wire.AppAPI))
	f.interfaces = []uint16{f.appPort()}
	return f
}

// AdminURL returns the websocket URL of the admin interface.
func (f *FakeConductor) AdminURL() string {
	return wsURL(f.admin)
}

// AppURL returns the websocket URL of the app interface.
func (f *FakeConductor) AppURL() string {
	return wsURL(f.app)
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (f *FakeConductor) appPort() uint16 {
	return uint16(f.app.Listener.Addr().(*net.TCPAddr).Port)
}

// Agent returns the agent key apps are installed for.
func (f *FakeConductor) Agent() holo.AgentPubKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agent
}

// Close drops every connection and stops both interfaces.
func (f *FakeConductor) Close() {
	f.DropConnections()
	f.admin.Close()
	f.app.Close()
}

// DropConnections closes every open websocket without a close handshake,
// as a crashed conductor would.
func (f *FakeConductor) DropConnections() {
	f.mu.Lock()
	conns := make([]*fakeConn, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	f.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.Close()
	}
}

// InstallApp installs an app with one provisioned cell per role without
// going through the admin interface. It returns the app's info.
func (f *FakeConductor) InstallApp(appID holo.InstalledAppID, roles ...holo.RoleName) *holo.AppInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.install(appID, f.agent, roles, "").info()
}

// FailNext makes the next request for m fail with the given conductor
// error. Failures queue in order.
func (f *FakeConductor) FailNext(m wire.Method, kind, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[m] = append(f.failures[m], &wire.RemoteError{Type: kind, Message: message})
}

// Grants returns the capability grants held for a cell.
func (f *FakeConductor) Grants(cellID holo.CellID) []holo.ZomeCallCapGrant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]holo.ZomeCallCapGrant(nil), f.grants[cellID.String()]...)
}

// Trace returns the requests answered so far, in order.
func (f *FakeConductor) Trace() []TraceEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TraceEvent(nil), f.trace...)
}

// ResetTrace clears the recorded trace.
func (f *FakeConductor) ResetTrace() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trace = nil
	f.seq = 0
}

// EmitSignal sends a signal frame to every connected app client.
func (f *FakeConductor) EmitSignal(data []byte) error {
	frame, err := wire.EncodeSignalFrame(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	var conns []*fakeConn
	for c := range f.conns {
		if c.api == wire.AppAPI {
			conns = append(conns, c)
		}
	}
	f.mu.Unlock()
	for _, c := range conns {
		if err := c.write(frame); err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeConductor) serve(api wire.API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			f.log.Warn().Err(err).Str("api", api.String()).Msg("upgrade failed")
			return
		}
		c := &fakeConn{ws: ws, api: api}
		f.mu.Lock()
		f.conns[c] = struct{}{}
		f.mu.Unlock()
		defer func() {
			f.mu.Lock()
			delete(f.conns, c)
			f.mu.Unlock()
			_ = ws.Close()
		}()

		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			frame, err := wire.DecodeFrame(raw)
			if err != nil || frame.Type != wire.FrameRequest {
				f.log.Warn().Err(err).Str("api", api.String()).Msg("ignoring frame")
				continue
			}
			out, err := wire.EncodeResponseFrame(frame.ID, f.handle(api, frame.Data))
			if err != nil {
				f.log.Error().Err(err).Uint64("request_id", frame.ID).Msg("encode response frame")
				continue
			}
			if err := c.write(out); err != nil {
				return
			}
		}
	}
}

// handle answers one request payload and records it in the trace.
func (f *FakeConductor) handle(api wire.API, raw []byte) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, data, err := wire.DecodeRequest(raw)
	if err != nil {
		f.record(api, "unknown", &wire.RemoteError{Type: wire.ErrorDeserialization})
		return encodeError(&wire.RemoteError{Type: wire.ErrorDeserialization, Message: err.Error()})
	}

	var (
		result interface{}
		rerr   *wire.RemoteError
	)
	switch {
	case m.API() != api:
		rerr = &wire.RemoteError{
			Type:    wire.ErrorDeserialization,
			Message: fmt.Sprintf("%s is not served by the %s interface", m, api),
		}
	case len(f.failures[m]) > 0:
		rerr = f.failures[m][0]
		f.failures[m] = f.failures[m][1:]
	default:
		result, rerr = f.dispatch(m, data)
	}
	f.record(api, m.String(), rerr)

	if rerr != nil {
		return encodeError(rerr)
	}
	resp, err := wire.EncodeResponse(m, result)
	if err != nil {
		return encodeError(&wire.RemoteError{Type: wire.ErrorInternal, Message: err.Error()})
	}
	return resp
}

func encodeError(rerr *wire.RemoteError) []byte {
	resp, err := wire.EncodeErrorResponse(rerr.Type, rerr.Message)
	if err != nil {
		panic(err)
	}
	return resp
}

func (f *FakeConductor) record(api wire.API, method string, rerr *wire.RemoteError) {
	f.seq++
	outcome := OutcomeOK
	if rerr != nil {
		outcome = rerr.Type
	}
	f.trace = append(f.trace, TraceEvent{
		Seq:     f.seq,
		API:     api.String(),
		Method:  method,
		Outcome: outcome,
	})
}

// install registers an app. Caller holds f.mu.
func (f *FakeConductor) install(appID holo.InstalledAppID, agent holo.AgentPubKey, roles []holo.RoleName, seed string) *fakeApp {
	if len(roles) == 0 {
		roles = []holo.RoleName{DefaultRole}
	}
	app := &fakeApp{
		id:          appID,
		agent:       agent,
		running:     true,
		provisioned: make(map[holo.RoleName]holo.ProvisionedCell),
		clones:      make(map[holo.RoleName][]*holo.ClonedCell),
		nextIndex:   make(map[holo.RoleName]uint32),
	}
	for _, role := range roles {
		mods := holo.DnaModifiers{NetworkSeed: seed, QuantumTime: holo.DurationFrom(5 * time.Minute)}
		dna := dnaHash(appID, role, mods)
		f.dnas[dna.String()] = dnaRecord{name: role, modifiers: mods}
		app.roles = append(app.roles, role)
		app.provisioned[role] = holo.ProvisionedCell{
			CellID:       holo.NewCellID(dna, agent),
			DnaModifiers: mods,
			Name:         role,
		}
	}
	f.apps[appID] = app
	return app
}

// dnaHash derives a stable DNA hash from what the conductor would hash:
// the DNA's identity and its modifiers.
func dnaHash(appID holo.InstalledAppID, role holo.RoleName, mods holo.DnaModifiers) holo.DnaHash {
	encoded, err := wire.Marshal(mods)
	if err != nil {
		panic(err)
	}
	h, _ := blake2b.New256(nil)
	h.Write([]byte(appID))
	h.Write([]byte{0})
	h.Write([]byte(role))
	h.Write([]byte{0})
	h.Write(encoded)
	return holo.MustHoloHash(holo.HashTypeDna, h.Sum(nil))
}

type fakeApp struct {
	id          holo.InstalledAppID
	agent       holo.AgentPubKey
	running     bool
	roles       []holo.RoleName
	provisioned map[holo.RoleName]holo.ProvisionedCell
	clones      map[holo.RoleName][]*holo.ClonedCell
	nextIndex   map[holo.RoleName]uint32
}

func (a *fakeApp) info() *holo.AppInfo {
	info := &holo.AppInfo{
		InstalledAppID: a.id,
		CellInfo:       make(map[holo.RoleName][]holo.CellInfo, len(a.roles)),
		Status:         holo.AppInfoStatus{Kind: "running"},
		AgentPubKey:    a.agent,
	}
	if !a.running {
		reason, _ := wire.Marshal("user")
		info.Status = holo.AppInfoStatus{Kind: "disabled", Reason: reason}
	}
	for _, role := range a.roles {
		prov := a.provisioned[role]
		cells := []holo.CellInfo{{Provisioned: &prov}}
		for _, c := range a.clones[role] {
			cell := *c
			cells = append(cells, holo.CellInfo{Cloned: &cell})
		}
		info.CellInfo[role] = cells
	}
	return info
}

// findClone locates a clone by clone id or cell id.
func (a *fakeApp) findClone(id holo.CloneCellID) (holo.RoleName, int, bool) {
	switch {
	case id.CloneID != nil:
		role, _, err := id.CloneID.Parse()
		if err != nil {
			return "", 0, false
		}
		for i, c := range a.clones[role] {
			if c.CloneID == *id.CloneID {
				return role, i, true
			}
		}
	case id.CellID != nil:
		for _, role := range a.roles {
			for i, c := range a.clones[role] {
				if c.CellID.Equal(*id.CellID) {
					return role, i, true
				}
			}
		}
	}
	return "", 0, false
}

// cell locates any provisioned or cloned cell of the conductor. Caller
// holds f.mu.
func (f *FakeConductor) cell(id holo.CellID) (*fakeApp, bool, bool) {
	for _, app := range f.apps {
		for _, role := range app.roles {
			if app.provisioned[role].CellID.Equal(id) {
				return app, true, true
			}
			for _, c := range app.clones[role] {
				if c.CellID.Equal(id) {
					return app, c.Enabled, true
				}
			}
		}
	}
	return nil, false, false
}

func (f *FakeConductor) sortedApps() []*fakeApp {
	apps := make([]*fakeApp, 0, len(f.apps))
	for _, app := range f.apps {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].id < apps[j].id })
	return apps
}
