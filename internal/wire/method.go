package wire

import "fmt"

// API identifies which conductor interface serves a method.
type API int

const (
	AdminAPI API = iota + 1
	AppAPI
)

func (a API) String() string {
	switch a {
	case AdminAPI:
		return "admin"
	case AppAPI:
		return "app"
	default:
		return fmt.Sprintf("api(%d)", int(a))
	}
}

// Method is the closed set of requests a conductor understands.
type Method int

const (
	MethodGenerateAgentPubKey Method = iota + 1
	MethodListAppInterfaces
	MethodAttachAppInterface
	MethodListApps
	MethodInstallApp
	MethodUninstallApp
	MethodEnableApp
	MethodDisableApp
	MethodGetDnaDefinition
	MethodGrantZomeCallCapability
	MethodDeleteCloneCell
	MethodDeleteArchivedCloneCells
	MethodStorageInfo
	MethodDumpNetworkStats
	MethodUpdateCoordinators
	MethodGraftRecords

	MethodAppInfo
	MethodZomeCall
	MethodCreateCloneCell
	MethodEnableCloneCell
	MethodDisableCloneCell
	MethodNetworkInfo
)

type methodSpec struct {
	name        string
	responseTag string
	api         API
	// unit requests carry no data field.
	unit bool
}

var methodSpecs = map[Method]methodSpec{
	MethodGenerateAgentPubKey:      {"generate_agent_pub_key", "agent_pub_key_generated", AdminAPI, true},
	MethodListAppInterfaces:        {"list_app_interfaces", "app_interfaces_listed", AdminAPI, true},
	MethodAttachAppInterface:       {"attach_app_interface", "app_interface_attached", AdminAPI, false},
	MethodListApps:                 {"list_apps", "apps_listed", AdminAPI, false},
	MethodInstallApp:               {"install_app", "app_installed", AdminAPI, false},
	MethodUninstallApp:             {"uninstall_app", "app_uninstalled", AdminAPI, false},
	MethodEnableApp:                {"enable_app", "app_enabled", AdminAPI, false},
	MethodDisableApp:               {"disable_app", "app_disabled", AdminAPI, false},
	MethodGetDnaDefinition:         {"get_dna_definition", "dna_definition_returned", AdminAPI, false},
	MethodGrantZomeCallCapability:  {"grant_zome_call_capability", "zome_call_capability_granted", AdminAPI, false},
	MethodDeleteCloneCell:          {"delete_clone_cell", "clone_cell_deleted", AdminAPI, false},
	MethodDeleteArchivedCloneCells: {"delete_archived_clone_cells", "archived_clone_cells_deleted", AdminAPI, false},
	MethodStorageInfo:              {"storage_info", "storage_info", AdminAPI, true},
	MethodDumpNetworkStats:         {"dump_network_stats", "network_stats_dumped", AdminAPI, true},
	MethodUpdateCoordinators:       {"update_coordinators", "coordinators_updated", AdminAPI, false},
	MethodGraftRecords:             {"graft_records", "records_grafted", AdminAPI, false},

	MethodAppInfo:          {"app_info", "app_info", AppAPI, false},
	MethodZomeCall:         {"zome_call", "zome_called", AppAPI, false},
	MethodCreateCloneCell:  {"create_clone_cell", "clone_cell_created", AppAPI, false},
	MethodEnableCloneCell:  {"enable_clone_cell", "clone_cell_enabled", AppAPI, false},
	MethodDisableCloneCell: {"disable_clone_cell", "clone_cell_disabled", AppAPI, false},
	MethodNetworkInfo:      {"network_info", "network_info", AppAPI, false},
}

var methodsByName = func() map[string]Method {
	m := make(map[string]Method, len(methodSpecs))
	for method, spec := range methodSpecs {
		m[spec.name] = method
	}
	return m
}()

// String returns the conductor's name for the method.
func (m Method) String() string {
	if s, ok := methodSpecs[m]; ok {
		return s.name
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// Valid reports whether m is a member of the closed set.
func (m Method) Valid() bool {
	_, ok := methodSpecs[m]
	return ok
}

// API returns the interface serving m, or 0 for an invalid method.
func (m Method) API() API {
	return methodSpecs[m].api
}

// ResponseTag returns the tag of a successful response to m.
func (m Method) ResponseTag() string {
	return methodSpecs[m].responseTag
}

// IsUnit reports whether requests for m carry no data.
func (m Method) IsUnit() bool {
	return methodSpecs[m].unit
}

// MethodByName resolves a conductor method name.
func MethodByName(name string) (Method, bool) {
	m, ok := methodsByName[name]
	return m, ok
}

// Methods returns every method served by api.
func Methods(api API) []Method {
	var out []Method
	for m := MethodGenerateAgentPubKey; m <= MethodNetworkInfo; m++ {
		if methodSpecs[m].api == api {
			out = append(out, m)
		}
	}
	return out
}
