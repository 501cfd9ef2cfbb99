package conductor

import (
	"github.com/roach88/holoclient/internal/holo"
	"github.com/roach88/holoclient/internal/signing"
	"github.com/roach88/holoclient/internal/wire"
)

// Request is the closed set of typed conductor requests. Each request type
// maps to exactly one wire method.
type Request interface {
	Method() wire.Method
	payload() interface{}
}

type (
	// GenerateAgentPubKeyRequest asks the conductor's keystore for a new
	// agent key.
	GenerateAgentPubKeyRequest struct{}

	// ListAppInterfacesRequest lists the ports of attached app interfaces.
	ListAppInterfacesRequest struct{}

	// AttachAppInterfaceRequest opens an app interface; Port 0 lets the
	// conductor choose.
	AttachAppInterfaceRequest struct {
		Port uint16
	}

	// ListAppsRequest lists installed apps, optionally filtered by status.
	ListAppsRequest struct {
		StatusFilter holo.AppStatusFilter
	}

	InstallAppRequest struct {
		Payload holo.InstallAppPayload
	}

	UninstallAppRequest struct {
		InstalledAppID holo.InstalledAppID
	}

	EnableAppRequest struct {
		InstalledAppID holo.InstalledAppID
	}

	DisableAppRequest struct {
		InstalledAppID holo.InstalledAppID
	}

	GetDnaDefinitionRequest struct {
		DnaHash holo.DnaHash
	}

	GrantZomeCallCapabilityRequest struct {
		Payload holo.GrantZomeCallCapabilityPayload
	}

	DeleteCloneCellRequest struct {
		Payload holo.DeleteCloneCellPayload
	}

	// DeleteDisabledCloneCellsRequest deletes every disabled clone of a
	// role.
	DeleteDisabledCloneCellsRequest struct {
		Payload holo.DeleteDisabledCloneCellsPayload
	}

	StorageInfoRequest struct{}

	DumpNetworkStatsRequest struct{}

	UpdateCoordinatorsRequest struct {
		Payload holo.UpdateCoordinatorsPayload
	}

	GraftRecordsRequest struct {
		Payload holo.GraftRecordsPayload
	}

	AppInfoRequest struct {
		InstalledAppID holo.InstalledAppID
	}

	// ZomeCallRequest is signed by the dispatcher's signer before sending.
	ZomeCallRequest struct {
		Params signing.ZomeCallParams
	}

	// SignedZomeCallRequest carries a call the caller already signed.
	SignedZomeCallRequest struct {
		Call *holo.ZomeCall
	}

	CreateCloneCellRequest struct {
		Payload holo.CreateCloneCellPayload
	}

	EnableCloneCellRequest struct {
		Payload holo.EnableCloneCellPayload
	}

	DisableCloneCellRequest struct {
		Payload holo.DisableCloneCellPayload
	}

	NetworkInfoRequest struct {
		Payload holo.NetworkInfoRequestPayload
	}
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

func (GenerateAgentPubKeyRequest) Method() wire.Method  { return wire.MethodGenerateAgentPubKey }
func (GenerateAgentPubKeyRequest) payload() interface{} { return nil }

func (ListAppInterfacesRequest) Method() wire.Method  { return wire.MethodListAppInterfaces }
func (ListAppInterfacesRequest) payload() interface{} { return nil }

func (AttachAppInterfaceRequest) Method() wire.Method { return wire.MethodAttachAppInterface }
func (r AttachAppInterfaceRequest) payload() interface{} {
	return portBody{Port: r.Port}
}

func (ListAppsRequest) Method() wire.Method { return wire.MethodListApps }
func (r ListAppsRequest) payload() interface{} {
	body := statusFilterBody{}
	if r.StatusFilter != "" {
		f := r.StatusFilter
		body.StatusFilter = &f
	}
	return body
}

func (InstallAppRequest) Method() wire.Method { return wire.MethodInstallApp }
func (r InstallAppRequest) payload() interface{} {
	p := r.Payload
	if p.MembraneProofs == nil {
		p.MembraneProofs = map[holo.RoleName][]byte{}
	}
	return p
}

func (UninstallAppRequest) Method() wire.Method { return wire.MethodUninstallApp }
func (r UninstallAppRequest) payload() interface{} {
	return appIDBody{InstalledAppID: r.InstalledAppID}
}

func (EnableAppRequest) Method() wire.Method { return wire.MethodEnableApp }
func (r EnableAppRequest) payload() interface{} {
	return appIDBody{InstalledAppID: r.InstalledAppID}
}

func (DisableAppRequest) Method() wire.Method { return wire.MethodDisableApp }
func (r DisableAppRequest) payload() interface{} {
	return appIDBody{InstalledAppID: r.InstalledAppID}
}

func (GetDnaDefinitionRequest) Method() wire.Method    { return wire.MethodGetDnaDefinition }
func (r GetDnaDefinitionRequest) payload() interface{} { return r.DnaHash }

func (GrantZomeCallCapabilityRequest) Method() wire.Method {
	return wire.MethodGrantZomeCallCapability
}
func (r GrantZomeCallCapabilityRequest) payload() interface{} { return r.Payload }

func (DeleteCloneCellRequest) Method() wire.Method    { return wire.MethodDeleteCloneCell }
func (r DeleteCloneCellRequest) payload() interface{} { return r.Payload }

func (DeleteDisabledCloneCellsRequest) Method() wire.Method {
	return wire.MethodDeleteArchivedCloneCells
}
func (r DeleteDisabledCloneCellsRequest) payload() interface{} { return r.Payload }

func (StorageInfoRequest) Method() wire.Method  { return wire.MethodStorageInfo }
func (StorageInfoRequest) payload() interface{} { return nil }

func (DumpNetworkStatsRequest) Method() wire.Method  { return wire.MethodDumpNetworkStats }
func (DumpNetworkStatsRequest) payload() interface{} { return nil }

func (UpdateCoordinatorsRequest) Method() wire.Method    { return wire.MethodUpdateCoordinators }
func (r UpdateCoordinatorsRequest) payload() interface{} { return r.Payload }

func (GraftRecordsRequest) Method() wire.Method    { return wire.MethodGraftRecords }
func (r GraftRecordsRequest) payload() interface{} { return r.Payload }

func (AppInfoRequest) Method() wire.Method { return wire.MethodAppInfo }
func (r AppInfoRequest) payload() interface{} {
	return appIDBody{InstalledAppID: r.InstalledAppID}
}

func (ZomeCallRequest) Method() wire.Method { return wire.MethodZomeCall }

// payload is never encoded: the dispatcher replaces the request with its
// signed form first.
func (ZomeCallRequest) payload() interface{} { return nil }

func (SignedZomeCallRequest) Method() wire.Method    { return wire.MethodZomeCall }
func (r SignedZomeCallRequest) payload() interface{} { return r.Call }

func (CreateCloneCellRequest) Method() wire.Method    { return wire.MethodCreateCloneCell }
func (r CreateCloneCellRequest) payload() interface{} { return r.Payload }

func (EnableCloneCellRequest) Method() wire.Method    { return wire.MethodEnableCloneCell }
func (r EnableCloneCellRequest) payload() interface{} { return r.Payload }

func (DisableCloneCellRequest) Method() wire.Method    { return wire.MethodDisableCloneCell }
func (r DisableCloneCellRequest) payload() interface{} { return r.Payload }

func (NetworkInfoRequest) Method() wire.Method    { return wire.MethodNetworkInfo }
func (r NetworkInfoRequest) payload() interface{} { return r.Payload }
