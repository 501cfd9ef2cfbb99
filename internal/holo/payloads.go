package holo

import "github.com/vmihailenco/msgpack/v5"

// InstallAppPayload installs an app bundle for an agent.
// Exactly one of Path or Bundle is set; both are flattened into the
// payload map the way the conductor expects.
type InstallAppPayload struct {
	Path           string              `msgpack:"path,omitempty"`
	Bundle         msgpack.RawMessage  `msgpack:"bundle,omitempty"`
	AgentKey       AgentPubKey         `msgpack:"agent_key"`
	InstalledAppID *InstalledAppID     `msgpack:"installed_app_id"`
	MembraneProofs map[RoleName][]byte `msgpack:"membrane_proofs"`
	NetworkSeed    *string             `msgpack:"network_seed"`
}

// EnableAppResponse reports the enabled app and any cells that failed
// to start.
type EnableAppResponse struct {
	App    AppInfo     `msgpack:"app"`
	Errors []CellError `msgpack:"errors"`
}

// CellError pairs a cell with its startup failure.
type CellError struct {
	_msgpack struct{} `msgpack:",as_array"`

	CellID  CellID
	Message string
}

// GrantZomeCallCapabilityPayload installs a capability grant on a cell.
type GrantZomeCallCapabilityPayload struct {
	CellID   CellID           `msgpack:"cell_id"`
	CapGrant ZomeCallCapGrant `msgpack:"cap_grant"`
}

// CreateCloneCellPayload clones a role's DNA with new modifiers.
type CreateCloneCellPayload struct {
	AppID         InstalledAppID  `msgpack:"app_id"`
	RoleName      RoleName        `msgpack:"role_name"`
	Modifiers     DnaModifiersOpt `msgpack:"modifiers"`
	MembraneProof []byte          `msgpack:"membrane_proof"`
	Name          *string         `msgpack:"name"`
}

// EnableCloneCellPayload re-enables a disabled clone cell.
type EnableCloneCellPayload struct {
	AppID       InstalledAppID `msgpack:"app_id"`
	CloneCellID CloneCellID    `msgpack:"clone_cell_id"`
}

// DisableCloneCellPayload disables an enabled clone cell.
type DisableCloneCellPayload struct {
	AppID       InstalledAppID `msgpack:"app_id"`
	CloneCellID CloneCellID    `msgpack:"clone_cell_id"`
}

// DeleteCloneCellPayload deletes a disabled clone cell.
type DeleteCloneCellPayload struct {
	AppID       InstalledAppID `msgpack:"app_id"`
	CloneCellID CloneCellID    `msgpack:"clone_cell_id"`
}

// DeleteDisabledCloneCellsPayload deletes every disabled clone of a role.
type DeleteDisabledCloneCellsPayload struct {
	AppID    InstalledAppID `msgpack:"app_id"`
	RoleName RoleName       `msgpack:"role_name"`
}

// UpdateCoordinatorsPayload hot-swaps a DNA's coordinator zomes.
type UpdateCoordinatorsPayload struct {
	DnaHash DnaHash            `msgpack:"dna_hash"`
	Path    string             `msgpack:"path,omitempty"`
	Bundle  msgpack.RawMessage `msgpack:"bundle,omitempty"`
}

// GraftRecordsPayload inserts records into a cell's source chain.
// Records are opaque to the client.
type GraftRecordsPayload struct {
	CellID   CellID               `msgpack:"cell_id"`
	Validate bool                 `msgpack:"validate"`
	Records  []msgpack.RawMessage `msgpack:"records"`
}

// ZomeEntry is one (name, definition) pair of a DNA definition.
type ZomeEntry struct {
	_msgpack struct{} `msgpack:",as_array"`

	Name string
	Def  msgpack.RawMessage
}

// DnaDef is a DNA definition as returned by get_dna_definition.
type DnaDef struct {
	Name             string       `msgpack:"name"`
	Modifiers        DnaModifiers `msgpack:"modifiers"`
	IntegrityZomes   []ZomeEntry  `msgpack:"integrity_zomes"`
	CoordinatorZomes []ZomeEntry  `msgpack:"coordinator_zomes"`
}

// ZomeNames lists integrity then coordinator zome names.
func (d *DnaDef) ZomeNames() []string {
	names := make([]string, 0, len(d.IntegrityZomes)+len(d.CoordinatorZomes))
	for _, z := range d.IntegrityZomes {
		names = append(names, z.Name)
	}
	for _, z := range d.CoordinatorZomes {
		names = append(names, z.Name)
	}
	return names
}

// DnaStorageInfo is the storage footprint of one DNA.
type DnaStorageInfo struct {
	AuthoredDataSize       uint64           `msgpack:"authored_data_size"`
	AuthoredDataSizeOnDisk uint64           `msgpack:"authored_data_size_on_disk"`
	DhtDataSize            uint64           `msgpack:"dht_data_size"`
	DhtDataSizeOnDisk      uint64           `msgpack:"dht_data_size_on_disk"`
	CacheDataSize          uint64           `msgpack:"cache_data_size"`
	CacheDataSizeOnDisk    uint64           `msgpack:"cache_data_size_on_disk"`
	DnaHash                DnaHash          `msgpack:"dna_hash"`
	UsedBy                 []InstalledAppID `msgpack:"used_by"`
}

// StorageBlob is one storage accounting entry.
type StorageBlob struct {
	Dna *DnaStorageInfo `msgpack:"dna,omitempty"`
}

// StorageInfo is the conductor's storage report.
type StorageInfo struct {
	Blobs []StorageBlob `msgpack:"blobs"`
}

// NetworkInfoRequestPayload selects the DNAs to report on.
type NetworkInfoRequestPayload struct {
	Dnas []DnaHash `msgpack:"dnas"`
}

// FetchPoolInfo summarizes outstanding gossip fetches.
type FetchPoolInfo struct {
	OpBytesToFetch uint64 `msgpack:"op_bytes_to_fetch"`
	NumOpsToFetch  uint64 `msgpack:"num_ops_to_fetch"`
}

// NetworkInfo is the per-DNA network report.
type NetworkInfo struct {
	FetchPoolInfo FetchPoolInfo `msgpack:"fetch_pool_info"`
}
