package holo

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// Sizes of zome call security material.
const (
	CapSecretLen = 64
	NonceLen     = 32
	SignatureLen = 64
)

// ZomeCallUnsigned is the exact structure whose encoding is signed.
//
// Field order is significant: it is the order the conductor re-encodes
// when verifying the signature.
type ZomeCallUnsigned struct {
	Provenance AgentPubKey `msgpack:"provenance"`
	CellID     CellID      `msgpack:"cell_id"`
	ZomeName   string      `msgpack:"zome_name"`
	FnName     string      `msgpack:"fn_name"`
	CapSecret  []byte      `msgpack:"cap_secret"`
	Payload    []byte      `msgpack:"payload"`
	Nonce      []byte      `msgpack:"nonce"`
	ExpiresAt  Timestamp   `msgpack:"expires_at"`
}

// ZomeCall is a signed zome call as sent to the app interface.
type ZomeCall struct {
	CellID     CellID      `msgpack:"cell_id"`
	ZomeName   string      `msgpack:"zome_name"`
	FnName     string      `msgpack:"fn_name"`
	CapSecret  []byte      `msgpack:"cap_secret"`
	Payload    []byte      `msgpack:"payload"`
	Provenance AgentPubKey `msgpack:"provenance"`
	Signature  []byte      `msgpack:"signature"`
	Nonce      []byte      `msgpack:"nonce"`
	ExpiresAt  Timestamp   `msgpack:"expires_at"`
}

// Unsigned strips the signature, yielding the signed-over structure.
func (z *ZomeCall) Unsigned() ZomeCallUnsigned {
	return ZomeCallUnsigned{
		Provenance: z.Provenance,
		CellID:     z.CellID,
		ZomeName:   z.ZomeName,
		FnName:     z.FnName,
		CapSecret:  z.CapSecret,
		Payload:    z.Payload,
		Nonce:      z.Nonce,
		ExpiresAt:  z.ExpiresAt,
	}
}

// WithSignature attaches a signature, yielding the wire structure.
func (u ZomeCallUnsigned) WithSignature(sig []byte) *ZomeCall {
	return &ZomeCall{
		CellID:     u.CellID,
		ZomeName:   u.ZomeName,
		FnName:     u.FnName,
		CapSecret:  u.CapSecret,
		Payload:    u.Payload,
		Provenance: u.Provenance,
		Signature:  sig,
		Nonce:      u.Nonce,
		ExpiresAt:  u.ExpiresAt,
	}
}

// FunctionRef names one zome function.
type FunctionRef struct {
	_msgpack struct{} `msgpack:",as_array"`

	Zome string
	Fn   string
}

// GrantedFunctions is either every function or an explicit set.
type GrantedFunctions struct {
	All    bool
	Listed []FunctionRef
}

// AllFunctions grants every function of the cell.
func AllFunctions() GrantedFunctions {
	return GrantedFunctions{All: true}
}

// ListedFunctions grants only the given (zome, fn) pairs.
func ListedFunctions(refs ...FunctionRef) GrantedFunctions {
	return GrantedFunctions{Listed: refs}
}

// Allows reports whether the grant covers zome/fn.
func (g GrantedFunctions) Allows(zome, fn string) bool {
	if g.All {
		return true
	}
	for _, ref := range g.Listed {
		if ref.Zome == zome && ref.Fn == fn {
			return true
		}
	}
	return false
}

var (
	_ msgpack.CustomEncoder = GrantedFunctions{}
	_ msgpack.CustomDecoder = (*GrantedFunctions)(nil)
)

func (g GrantedFunctions) EncodeMsgpack(enc *msgpack.Encoder) error {
	if g.All {
		return enc.EncodeString("all")
	}
	// The conductor holds the listed set ordered; encode it the same way.
	refs := append([]FunctionRef(nil), g.Listed...)
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Zome != refs[j].Zome {
			return refs[i].Zome < refs[j].Zome
		}
		return refs[i].Fn < refs[j].Fn
	})
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	if err := enc.EncodeString("listed"); err != nil {
		return err
	}
	return enc.Encode(refs)
}

func (g *GrantedFunctions) DecodeMsgpack(dec *msgpack.Decoder) error {
	kind, inner, err := decodeEnum(dec)
	if err != nil {
		return fmt.Errorf("granted functions: %w", err)
	}
	switch kind {
	case "all":
		*g = AllFunctions()
		return nil
	case "listed":
		var refs []FunctionRef
		if err := remarshal(inner, &refs); err != nil {
			return fmt.Errorf("granted functions: %w", err)
		}
		*g = ListedFunctions(refs...)
		return nil
	default:
		return fmt.Errorf("granted functions: unknown variant %q", kind)
	}
}

// CapAccessKind selects who may exercise a capability grant.
type CapAccessKind string

const (
	CapAccessUnrestricted CapAccessKind = "unrestricted"
	CapAccessTransferable CapAccessKind = "transferable"
	CapAccessAssigned     CapAccessKind = "assigned"
)

// CapAccess is the access rule of a capability grant.
type CapAccess struct {
	Kind      CapAccessKind
	Secret    []byte
	Assignees []AgentPubKey
}

type capAccessBody struct {
	Secret    []byte        `msgpack:"secret"`
	Assignees []AgentPubKey `msgpack:"assignees,omitempty"`
}

var (
	_ msgpack.CustomEncoder = CapAccess{}
	_ msgpack.CustomDecoder = (*CapAccess)(nil)
)

func (a CapAccess) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch a.Kind {
	case CapAccessUnrestricted:
		return enc.EncodeString(string(a.Kind))
	case CapAccessTransferable, CapAccessAssigned:
	default:
		return fmt.Errorf("cap access: unknown kind %q", a.Kind)
	}
	body := capAccessBody{Secret: a.Secret}
	if a.Kind == CapAccessAssigned {
		body.Assignees = append([]AgentPubKey(nil), a.Assignees...)
		sort.Slice(body.Assignees, func(i, j int) bool {
			return bytes.Compare(body.Assignees[i], body.Assignees[j]) < 0
		})
	}
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	if err := enc.EncodeString(string(a.Kind)); err != nil {
		return err
	}
	return enc.Encode(body)
}

func (a *CapAccess) DecodeMsgpack(dec *msgpack.Decoder) error {
	kind, inner, err := decodeEnum(dec)
	if err != nil {
		return fmt.Errorf("cap access: %w", err)
	}
	a.Kind = CapAccessKind(kind)
	a.Secret = nil
	a.Assignees = nil
	switch a.Kind {
	case CapAccessUnrestricted:
		return nil
	case CapAccessTransferable, CapAccessAssigned:
		var body capAccessBody
		if err := remarshal(inner, &body); err != nil {
			return fmt.Errorf("cap access: %w", err)
		}
		a.Secret = body.Secret
		a.Assignees = body.Assignees
		return nil
	default:
		return fmt.Errorf("cap access: unknown variant %q", kind)
	}
}

// ZomeCallCapGrant grants zome call access to a cell's functions.
type ZomeCallCapGrant struct {
	Tag       string           `msgpack:"tag"`
	Access    CapAccess        `msgpack:"access"`
	Functions GrantedFunctions `msgpack:"functions"`
}

// remarshal round-trips a generically decoded value into a typed target.
func remarshal(in interface{}, out interface{}) error {
	raw, err := msgpack.Marshal(in)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(raw, out)
}
