package harness

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/holoclient/internal/holo"
	"github.com/roach88/holoclient/internal/signing"
	"github.com/roach88/holoclient/internal/testutil"
	"github.com/roach88/holoclient/internal/wire"
)

// Zome functions every fake cell exposes.
const (
	FnFoo  = "foo"
	FnEcho = "echo"
)

type portBody struct {
	Port uint16 `msgpack:"port"`
}

type statusFilterBody struct {
	StatusFilter *holo.AppStatusFilter `msgpack:"status_filter"`
}

type appIDBody struct {
	InstalledAppID holo.InstalledAppID `msgpack:"installed_app_id"`
}

func internal(format string, args ...interface{}) *wire.RemoteError {
	return &wire.RemoteError{Type: wire.ErrorInternal, Message: fmt.Sprintf(format, args...)}
}

func decode(data msgpack.RawMessage, v interface{}) *wire.RemoteError {
	if err := wire.Unmarshal(data, v); err != nil {
		return &wire.RemoteError{Type: wire.ErrorDeserialization, Message: err.Error()}
	}
	return nil
}

// dispatch runs one method against the conductor state. Caller holds f.mu.
func (f *FakeConductor) dispatch(m wire.Method, data msgpack.RawMessage) (interface{}, *wire.RemoteError) {
	switch m {
	case wire.MethodGenerateAgentPubKey:
		f.keys++
		return testutil.AgentPubKey(f.keys), nil

	case wire.MethodListAppInterfaces:
		return append([]uint16(nil), f.interfaces...), nil

	case wire.MethodAttachAppInterface:
		var body portBody
		if rerr := decode(data, &body); rerr != nil {
			return nil, rerr
		}
		if body.Port == 0 {
			body.Port = f.appPort()
		}
		for _, p := range f.interfaces {
			if p == body.Port {
				return body, nil
			}
		}
		f.interfaces = append(f.interfaces, body.Port)
		return body, nil

	case wire.MethodListApps:
		var body statusFilterBody
		if rerr := decode(data, &body); rerr != nil {
			return nil, rerr
		}
		apps := []holo.AppInfo{}
		for _, app := range f.sortedApps() {
			if body.StatusFilter != nil && !matchesFilter(app, *body.StatusFilter) {
				continue
			}
			apps = append(apps, *app.info())
		}
		return apps, nil

	case wire.MethodInstallApp:
		return f.installApp(data)

	case wire.MethodUninstallApp:
		var body appIDBody
		if rerr := decode(data, &body); rerr != nil {
			return nil, rerr
		}
		if _, ok := f.apps[body.InstalledAppID]; !ok {
			return nil, internal("app %q is not installed", body.InstalledAppID)
		}
		delete(f.apps, body.InstalledAppID)
		return nil, nil

	case wire.MethodEnableApp, wire.MethodDisableApp:
		var body appIDBody
		if rerr := decode(data, &body); rerr != nil {
			return nil, rerr
		}
		app, ok := f.apps[body.InstalledAppID]
		if !ok {
			return nil, internal("app %q is not installed", body.InstalledAppID)
		}
		app.running = m == wire.MethodEnableApp
		if !app.running {
			return nil, nil
		}
		return holo.EnableAppResponse{App: *app.info(), Errors: []holo.CellError{}}, nil

	case wire.MethodGetDnaDefinition:
		var dna holo.DnaHash
		if rerr := decode(data, &dna); rerr != nil {
			return nil, rerr
		}
		rec, ok := f.dnas[dna.String()]
		if !ok {
			return nil, internal("dna %s is not registered", dna)
		}
		return dnaDef(rec)

	case wire.MethodGrantZomeCallCapability:
		var p holo.GrantZomeCallCapabilityPayload
		if rerr := decode(data, &p); rerr != nil {
			return nil, rerr
		}
		if _, _, ok := f.cell(p.CellID); !ok {
			return nil, internal("cell %s is missing", p.CellID)
		}
		key := p.CellID.String()
		f.grants[key] = append(f.grants[key], p.CapGrant)
		return nil, nil

	case wire.MethodDeleteCloneCell:
		var p holo.DeleteCloneCellPayload
		if rerr := decode(data, &p); rerr != nil {
			return nil, rerr
		}
		return f.deleteClone(p)

	case wire.MethodDeleteArchivedCloneCells:
		var p holo.DeleteDisabledCloneCellsPayload
		if rerr := decode(data, &p); rerr != nil {
			return nil, rerr
		}
		return f.deleteDisabled(p)

	case wire.MethodStorageInfo:
		return f.storageInfo(), nil

	case wire.MethodDumpNetworkStats:
		return `{"peers":[]}`, nil

	case wire.MethodUpdateCoordinators:
		var p holo.UpdateCoordinatorsPayload
		if rerr := decode(data, &p); rerr != nil {
			return nil, rerr
		}
		if _, ok := f.dnas[p.DnaHash.String()]; !ok {
			return nil, internal("dna %s is not registered", p.DnaHash)
		}
		return nil, nil

	case wire.MethodGraftRecords:
		var p holo.GraftRecordsPayload
		if rerr := decode(data, &p); rerr != nil {
			return nil, rerr
		}
		if _, _, ok := f.cell(p.CellID); !ok {
			return nil, internal("cell %s is missing", p.CellID)
		}
		return nil, nil

	case wire.MethodAppInfo:
		var body appIDBody
		if rerr := decode(data, &body); rerr != nil {
			return nil, rerr
		}
		app, ok := f.apps[body.InstalledAppID]
		if !ok {
			return nil, nil
		}
		return app.info(), nil

	case wire.MethodZomeCall:
		var call holo.ZomeCall
		if rerr := decode(data, &call); rerr != nil {
			return nil, rerr
		}
		return f.zomeCall(&call)

	case wire.MethodCreateCloneCell:
		var p holo.CreateCloneCellPayload
		if rerr := decode(data, &p); rerr != nil {
			return nil, rerr
		}
		return f.createClone(p)

	case wire.MethodEnableCloneCell, wire.MethodDisableCloneCell:
		var p holo.EnableCloneCellPayload
		if rerr := decode(data, &p); rerr != nil {
			return nil, rerr
		}
		app, ok := f.apps[p.AppID]
		if !ok {
			return nil, internal("app %q is not installed", p.AppID)
		}
		role, i, ok := app.findClone(p.CloneCellID)
		if !ok {
			return nil, internal("clone cell %s not found", p.CloneCellID)
		}
		c := app.clones[role][i]
		c.Enabled = m == wire.MethodEnableCloneCell
		if !c.Enabled {
			return nil, nil
		}
		cell := *c
		return &cell, nil

	case wire.MethodNetworkInfo:
		var p holo.NetworkInfoRequestPayload
		if rerr := decode(data, &p); rerr != nil {
			return nil, rerr
		}
		out := make([]holo.NetworkInfo, len(p.Dnas))
		return out, nil
	}
	return nil, internal("method %s is not implemented", m)
}

func matchesFilter(app *fakeApp, filter holo.AppStatusFilter) bool {
	switch filter {
	case holo.AppStatusEnabled, holo.AppStatusRunning:
		return app.running
	default:
		return !app.running
	}
}

// installApp installs one provisioned cell per membrane proof role, or the
// default role when none is given.
func (f *FakeConductor) installApp(data msgpack.RawMessage) (interface{}, *wire.RemoteError) {
	var p holo.InstallAppPayload
	if rerr := decode(data, &p); rerr != nil {
		return nil, rerr
	}
	if p.Path == "" && len(p.Bundle) == 0 {
		return nil, internal("install_app needs a bundle or a path")
	}
	appID := fmt.Sprintf("app-%d", len(f.apps)+1)
	if p.InstalledAppID != nil && *p.InstalledAppID != "" {
		appID = *p.InstalledAppID
	}
	if _, ok := f.apps[appID]; ok {
		return nil, internal("app %q is already installed", appID)
	}
	agent := p.AgentKey
	if len(agent) == 0 {
		agent = f.agent
	}
	roles := make([]holo.RoleName, 0, len(p.MembraneProofs))
	for role := range p.MembraneProofs {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	seed := ""
	if p.NetworkSeed != nil {
		seed = *p.NetworkSeed
	}
	app := f.install(appID, agent, roles, seed)
	app.running = false
	return app.info(), nil
}

func dnaDef(rec dnaRecord) (interface{}, *wire.RemoteError) {
	def, err := wire.Marshal(map[string]string{"wasm": rec.name})
	if err != nil {
		return nil, internal("encode zome def: %v", err)
	}
	return holo.DnaDef{
		Name:             rec.name,
		Modifiers:        rec.modifiers,
		IntegrityZomes:   []holo.ZomeEntry{{Name: rec.name + "_integrity", Def: def}},
		CoordinatorZomes: []holo.ZomeEntry{{Name: rec.name, Def: def}},
	}, nil
}

func (f *FakeConductor) createClone(p holo.CreateCloneCellPayload) (interface{}, *wire.RemoteError) {
	app, ok := f.apps[p.AppID]
	if !ok {
		return nil, internal("app %q is not installed", p.AppID)
	}
	prov, ok := app.provisioned[p.RoleName]
	if !ok {
		return nil, internal("role %q not found in app %q", p.RoleName, p.AppID)
	}
	if p.Modifiers.IsEmpty() {
		return nil, internal("clone of %q must change at least one modifier", p.RoleName)
	}
	mods := p.Modifiers.Apply(prov.DnaModifiers)
	dna := dnaHash(p.AppID, p.RoleName, mods)
	if dna.Equal(prov.CellID.DnaHash) {
		return nil, internal("clone of %q has the same modifiers as the original", p.RoleName)
	}
	for _, c := range app.clones[p.RoleName] {
		if c.CellID.DnaHash.Equal(dna) {
			return nil, internal("clone cell %s already exists", c.CloneID)
		}
	}

	index := app.nextIndex[p.RoleName]
	app.nextIndex[p.RoleName] = index + 1
	name := prov.Name
	if p.Name != nil {
		name = *p.Name
	}
	c := &holo.ClonedCell{
		CellID:          holo.NewCellID(dna, app.agent),
		CloneID:         holo.NewCloneID(p.RoleName, index),
		OriginalDnaHash: prov.CellID.DnaHash,
		DnaModifiers:    mods,
		Name:            name,
		Enabled:         true,
	}
	app.clones[p.RoleName] = append(app.clones[p.RoleName], c)
	f.dnas[dna.String()] = dnaRecord{name: p.RoleName, modifiers: mods}
	cell := *c
	return &cell, nil
}

func (f *FakeConductor) deleteClone(p holo.DeleteCloneCellPayload) (interface{}, *wire.RemoteError) {
	app, ok := f.apps[p.AppID]
	if !ok {
		return nil, internal("app %q is not installed", p.AppID)
	}
	role, i, ok := app.findClone(p.CloneCellID)
	if !ok {
		return nil, internal("clone cell %s not found", p.CloneCellID)
	}
	if app.clones[role][i].Enabled {
		return nil, internal("clone cell %s must be disabled before it is deleted", p.CloneCellID)
	}
	f.dropClone(app, role, i)
	return nil, nil
}

func (f *FakeConductor) deleteDisabled(p holo.DeleteDisabledCloneCellsPayload) (interface{}, *wire.RemoteError) {
	app, ok := f.apps[p.AppID]
	if !ok {
		return nil, internal("app %q is not installed", p.AppID)
	}
	if _, ok := app.provisioned[p.RoleName]; !ok {
		return nil, internal("role %q not found in app %q", p.RoleName, p.AppID)
	}
	for i := len(app.clones[p.RoleName]) - 1; i >= 0; i-- {
		if !app.clones[p.RoleName][i].Enabled {
			f.dropClone(app, p.RoleName, i)
		}
	}
	return nil, nil
}

func (f *FakeConductor) dropClone(app *fakeApp, role holo.RoleName, i int) {
	c := app.clones[role][i]
	delete(f.grants, c.CellID.String())
	app.clones[role] = append(app.clones[role][:i], app.clones[role][i+1:]...)
}

func (f *FakeConductor) storageInfo() holo.StorageInfo {
	usedBy := make(map[string][]holo.InstalledAppID)
	hashes := make(map[string]holo.DnaHash)
	for _, app := range f.sortedApps() {
		for _, role := range app.roles {
			dna := app.provisioned[role].CellID.DnaHash
			usedBy[dna.String()] = append(usedBy[dna.String()], app.id)
			hashes[dna.String()] = dna
		}
	}
	keys := make([]string, 0, len(hashes))
	for k := range hashes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	info := holo.StorageInfo{Blobs: []holo.StorageBlob{}}
	for _, k := range keys {
		info.Blobs = append(info.Blobs, holo.StorageBlob{Dna: &holo.DnaStorageInfo{
			DnaHash: hashes[k],
			UsedBy:  usedBy[k],
		}})
	}
	return info
}

// zomeCall checks a signed call the way a conductor does: signature,
// expiry, nonce reuse, then a capability grant for the provenance. The
// cell's own agent needs no grant.
func (f *FakeConductor) zomeCall(call *holo.ZomeCall) (interface{}, *wire.RemoteError) {
	if err := signing.Verify(call); err != nil {
		return nil, unauthorized("invalid signature: %v", err)
	}
	if call.ExpiresAt <= holo.TimestampFromTime(f.now()) {
		return nil, unauthorized("zome call expired")
	}
	nonce := string(call.Nonce)
	if _, seen := f.nonces[nonce]; seen {
		return nil, unauthorized("nonce already used")
	}
	f.nonces[nonce] = struct{}{}

	app, enabled, ok := f.cell(call.CellID)
	if !ok || !enabled {
		return nil, internal("cell %s is missing", call.CellID)
	}
	if !app.running {
		return nil, internal("app %q is not running", app.id)
	}
	if !call.Provenance.Equal(call.CellID.AgentPubKey) && !f.authorized(call) {
		return nil, unauthorized("%s is not authorized to call %s/%s", call.Provenance, call.ZomeName, call.FnName)
	}

	var result interface{}
	switch call.FnName {
	case FnFoo:
		result = FnFoo
	case FnEcho:
		return call.Payload, nil
	default:
		return nil, &wire.RemoteError{
			Type:    wire.ErrorRibosomeError,
			Message: fmt.Sprintf("function %s/%s not found", call.ZomeName, call.FnName),
		}
	}
	out, err := wire.EncodeExternIO(result)
	if err != nil {
		return nil, internal("encode result: %v", err)
	}
	return out, nil
}

func (f *FakeConductor) authorized(call *holo.ZomeCall) bool {
	for _, g := range f.grants[call.CellID.String()] {
		if !g.Functions.Allows(call.ZomeName, call.FnName) {
			continue
		}
		switch g.Access.Kind {
		case holo.CapAccessUnrestricted:
			return true
		case holo.CapAccessTransferable:
			if bytes.Equal(g.Access.Secret, call.CapSecret) {
				return true
			}
		case holo.CapAccessAssigned:
			if !bytes.Equal(g.Access.Secret, call.CapSecret) {
				continue
			}
			for _, a := range g.Access.Assignees {
				if a.Equal(call.Provenance) {
					return true
				}
			}
		}
	}
	return false
}

func unauthorized(format string, args ...interface{}) *wire.RemoteError {
	return &wire.RemoteError{Type: wire.ErrorZomeCallUnauthorized, Message: fmt.Sprintf(format, args...)}
}
