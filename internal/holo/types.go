package holo

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// InstalledAppID names an installed app.
type InstalledAppID = string

// RoleName names a role within an app manifest.
type RoleName = string

// CellID identifies a cell: the DNA it runs and the agent running it.
// Serialized as a 2-element array.
type CellID struct {
	_msgpack struct{} `msgpack:",as_array"`

	DnaHash     DnaHash
	AgentPubKey AgentPubKey
}

// NewCellID constructs a CellID.
func NewCellID(dna DnaHash, agent AgentPubKey) CellID {
	return CellID{DnaHash: dna, AgentPubKey: agent}
}

// String renders "<dna>:<agent>" using the base64 hash form.
// Suitable as a map key.
func (c CellID) String() string {
	return c.DnaHash.String() + ":" + c.AgentPubKey.String()
}

// Equal reports whether both hashes match.
func (c CellID) Equal(other CellID) bool {
	return c.DnaHash.Equal(other.DnaHash) && c.AgentPubKey.Equal(other.AgentPubKey)
}

// IsZero reports whether the cell id is unset.
func (c CellID) IsZero() bool {
	return len(c.DnaHash) == 0 && len(c.AgentPubKey) == 0
}

// ParseCellID parses the String form.
func ParseCellID(s string) (CellID, error) {
	dna, agent, ok := strings.Cut(s, ":")
	if !ok {
		return CellID{}, fmt.Errorf("cell id %q: expected <dna>:<agent>", s)
	}
	dnaHash, err := ParseHoloHashOfType(dna, HashTypeDna)
	if err != nil {
		return CellID{}, fmt.Errorf("cell id dna: %w", err)
	}
	agentKey, err := ParseHoloHashOfType(agent, HashTypeAgent)
	if err != nil {
		return CellID{}, fmt.Errorf("cell id agent: %w", err)
	}
	return NewCellID(dnaHash, agentKey), nil
}

// CloneID names a clone cell as "<role>.<index>".
type CloneID string

// NewCloneID builds the clone id for a role and clone index.
func NewCloneID(role RoleName, index uint32) CloneID {
	return CloneID(fmt.Sprintf("%s.%d", role, index))
}

// Parse splits a clone id into role name and index.
func (c CloneID) Parse() (RoleName, uint32, error) {
	s := string(c)
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return "", 0, fmt.Errorf("clone id %q: expected <role>.<index>", s)
	}
	idx, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("clone id %q: bad index: %w", s, err)
	}
	return s[:i], uint32(idx), nil
}

// CloneCellID references a clone cell by clone id or by cell id.
// Exactly one field is set.
type CloneCellID struct {
	CloneID *CloneID `msgpack:"clone_id,omitempty"`
	CellID  *CellID  `msgpack:"cell_id,omitempty"`
}

// ByCloneID references a clone cell by its clone id.
func ByCloneID(id CloneID) CloneCellID {
	return CloneCellID{CloneID: &id}
}

// ByCellID references a clone cell by its cell id.
func ByCellID(id CellID) CloneCellID {
	return CloneCellID{CellID: &id}
}

func (c CloneCellID) String() string {
	switch {
	case c.CloneID != nil:
		return string(*c.CloneID)
	case c.CellID != nil:
		return c.CellID.String()
	default:
		return "<none>"
	}
}

// Timestamp is microseconds since the Unix epoch.
type Timestamp int64

// TimestampFromTime converts a wall-clock time.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixMicro())
}

// Time converts back to a wall-clock time in UTC.
func (t Timestamp) Time() time.Time {
	return time.UnixMicro(int64(t)).UTC()
}

// Duration mirrors a seconds + nanoseconds duration.
type Duration struct {
	Secs  uint64 `msgpack:"secs"`
	Nanos uint32 `msgpack:"nanos"`
}

// DurationFrom converts a time.Duration.
func DurationFrom(d time.Duration) Duration {
	return Duration{Secs: uint64(d / time.Second), Nanos: uint32(d % time.Second)}
}

// Std converts to a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d.Secs)*time.Second + time.Duration(d.Nanos)
}

// DnaModifiers are fixed at cell creation and never change afterwards.
type DnaModifiers struct {
	NetworkSeed string    `msgpack:"network_seed"`
	Properties  []byte    `msgpack:"properties"`
	OriginTime  Timestamp `msgpack:"origin_time"`
	QuantumTime Duration  `msgpack:"quantum_time"`
}

// DnaModifiersOpt overrides a subset of modifiers when cloning a cell.
// Nil fields inherit the original DNA's value.
type DnaModifiersOpt struct {
	NetworkSeed *string    `msgpack:"network_seed"`
	Properties  []byte     `msgpack:"properties"`
	OriginTime  *Timestamp `msgpack:"origin_time"`
	QuantumTime *Duration  `msgpack:"quantum_time"`
}

// WithNetworkSeed returns a copy with the network seed set.
func (m DnaModifiersOpt) WithNetworkSeed(seed string) DnaModifiersOpt {
	m.NetworkSeed = &seed
	return m
}

// WithProperties returns a copy with the properties set.
func (m DnaModifiersOpt) WithProperties(props []byte) DnaModifiersOpt {
	m.Properties = props
	return m
}

// IsEmpty reports whether no modifier is overridden.
func (m DnaModifiersOpt) IsEmpty() bool {
	return m.NetworkSeed == nil && m.Properties == nil && m.OriginTime == nil && m.QuantumTime == nil
}

// Apply overlays the set fields onto base.
func (m DnaModifiersOpt) Apply(base DnaModifiers) DnaModifiers {
	if m.NetworkSeed != nil {
		base.NetworkSeed = *m.NetworkSeed
	}
	if m.Properties != nil {
		base.Properties = m.Properties
	}
	if m.OriginTime != nil {
		base.OriginTime = *m.OriginTime
	}
	if m.QuantumTime != nil {
		base.QuantumTime = *m.QuantumTime
	}
	return base
}

// ProvisionedCell is a cell created at app installation.
type ProvisionedCell struct {
	CellID       CellID       `msgpack:"cell_id"`
	DnaModifiers DnaModifiers `msgpack:"dna_modifiers"`
	Name         string       `msgpack:"name"`
}

// ClonedCell is a cell created at runtime from a role's DNA.
type ClonedCell struct {
	CellID          CellID       `msgpack:"cell_id"`
	CloneID         CloneID      `msgpack:"clone_id"`
	OriginalDnaHash DnaHash      `msgpack:"original_dna_hash"`
	DnaModifiers    DnaModifiers `msgpack:"dna_modifiers"`
	Name            string       `msgpack:"name"`
	Enabled         bool         `msgpack:"enabled"`
}

// StemCell is a deferred cell that has not been instantiated.
type StemCell struct {
	OriginalDnaHash DnaHash      `msgpack:"original_dna_hash"`
	DnaModifiers    DnaModifiers `msgpack:"dna_modifiers"`
	Name            *string      `msgpack:"name"`
}

// CellInfo is one of provisioned, cloned or stem. Exactly one field is set.
type CellInfo struct {
	Provisioned *ProvisionedCell `msgpack:"provisioned,omitempty"`
	Cloned      *ClonedCell      `msgpack:"cloned,omitempty"`
	Stem        *StemCell        `msgpack:"stem,omitempty"`
}

// CellID returns the cell id of a provisioned or cloned cell.
func (c CellInfo) CellID() (CellID, bool) {
	switch {
	case c.Provisioned != nil:
		return c.Provisioned.CellID, true
	case c.Cloned != nil:
		return c.Cloned.CellID, true
	default:
		return CellID{}, false
	}
}

// AppStatusFilter narrows list_apps.
type AppStatusFilter string

const (
	AppStatusEnabled  AppStatusFilter = "enabled"
	AppStatusDisabled AppStatusFilter = "disabled"
	AppStatusRunning  AppStatusFilter = "running"
	AppStatusStopped  AppStatusFilter = "stopped"
	AppStatusPaused   AppStatusFilter = "paused"
)

// AppInfoStatus is "running", or "paused"/"disabled" with a reason.
type AppInfoStatus struct {
	Kind   string
	Reason msgpack.RawMessage
}

// IsRunning reports whether the app is running.
func (s AppInfoStatus) IsRunning() bool {
	return s.Kind == "running"
}

var (
	_ msgpack.CustomEncoder = AppInfoStatus{}
	_ msgpack.CustomDecoder = (*AppInfoStatus)(nil)
)

func (s AppInfoStatus) EncodeMsgpack(enc *msgpack.Encoder) error {
	if s.Reason == nil {
		return enc.EncodeString(s.Kind)
	}
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	if err := enc.EncodeString(s.Kind); err != nil {
		return err
	}
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	if err := enc.EncodeString("reason"); err != nil {
		return err
	}
	return enc.Encode(s.Reason)
}

func (s *AppInfoStatus) DecodeMsgpack(dec *msgpack.Decoder) error {
	kind, inner, err := decodeEnum(dec)
	if err != nil {
		return fmt.Errorf("app status: %w", err)
	}
	s.Kind = kind
	s.Reason = nil
	if m, ok := inner.(map[string]interface{}); ok {
		if reason, ok := m["reason"]; ok {
			raw, err := msgpack.Marshal(reason)
			if err != nil {
				return fmt.Errorf("app status reason: %w", err)
			}
			s.Reason = raw
		}
	}
	return nil
}

// AppInfo describes an installed app and all of its cells.
type AppInfo struct {
	InstalledAppID InstalledAppID          `msgpack:"installed_app_id"`
	CellInfo       map[RoleName][]CellInfo `msgpack:"cell_info"`
	Status         AppInfoStatus           `msgpack:"status"`
	AgentPubKey    AgentPubKey             `msgpack:"agent_pub_key"`
}

// ClonedCells returns the cloned cells under a role.
func (a *AppInfo) ClonedCells(role RoleName) []ClonedCell {
	var out []ClonedCell
	for _, ci := range a.CellInfo[role] {
		if ci.Cloned != nil {
			out = append(out, *ci.Cloned)
		}
	}
	return out
}

// ProvisionedCell returns the provisioned cell of a role, if any.
func (a *AppInfo) ProvisionedCell(role RoleName) (ProvisionedCell, bool) {
	for _, ci := range a.CellInfo[role] {
		if ci.Provisioned != nil {
			return *ci.Provisioned, true
		}
	}
	return ProvisionedCell{}, false
}

// decodeEnum reads an externally tagged enum: either a bare string (unit
// variant) or a single-key map whose value is the variant's content.
func decodeEnum(dec *msgpack.Decoder) (string, interface{}, error) {
	v, err := dec.DecodeInterface()
	if err != nil {
		return "", nil, err
	}
	switch val := v.(type) {
	case string:
		return val, nil, nil
	case map[string]interface{}:
		if len(val) != 1 {
			return "", nil, fmt.Errorf("enum map must have one key, got %d", len(val))
		}
		for k, inner := range val {
			return k, inner, nil
		}
	}
	return "", nil, fmt.Errorf("unexpected enum encoding %T", v)
}
