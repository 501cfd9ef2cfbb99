package holo

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Hash sizes.
const (
	HashPrefixLen   = 3
	HashCoreLen     = 32
	HashLocationLen = 4
	HashLen         = HashPrefixLen + HashCoreLen + HashLocationLen
)

// HashType identifies the kind of a HoloHash by its 3-byte prefix.
type HashType string

const (
	HashTypeAgent    HashType = "agent"
	HashTypeDna      HashType = "dna"
	HashTypeDhtOp    HashType = "dht_op"
	HashTypeEntry    HashType = "entry"
	HashTypeAction   HashType = "action"
	HashTypeExternal HashType = "external"
)

var hashPrefixes = map[HashType][HashPrefixLen]byte{
	HashTypeAgent:    {0x84, 0x20, 0x24},
	HashTypeDna:      {0x84, 0x2d, 0x24},
	HashTypeDhtOp:    {0x84, 0x24, 0x24},
	HashTypeEntry:    {0x84, 0x21, 0x24},
	HashTypeAction:   {0x84, 0x29, 0x24},
	HashTypeExternal: {0x84, 0x2f, 0x24},
}

// HoloHash is a 39-byte typed hash: prefix, 32-byte core, location bytes.
type HoloHash []byte

// AgentPubKey is a HoloHash of type agent. The core is an ed25519 public key.
type AgentPubKey = HoloHash

// DnaHash is a HoloHash of type dna.
type DnaHash = HoloHash

// ActionHash is a HoloHash of type action.
type ActionHash = HoloHash

// NewHoloHash builds a hash of the given type from a 32-byte core,
// computing the location bytes.
func NewHoloHash(t HashType, core []byte) (HoloHash, error) {
	prefix, ok := hashPrefixes[t]
	if !ok {
		return nil, fmt.Errorf("unknown hash type %q", t)
	}
	if len(core) != HashCoreLen {
		return nil, fmt.Errorf("hash core must be %d bytes, got %d", HashCoreLen, len(core))
	}
	out := make([]byte, 0, HashLen)
	out = append(out, prefix[:]...)
	out = append(out, core...)
	out = append(out, LocationBytes(core)...)
	return out, nil
}

// MustHoloHash is like NewHoloHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustHoloHash(t HashType, core []byte) HoloHash {
	h, err := NewHoloHash(t, core)
	if err != nil {
		panic(err)
	}
	return h
}

// AgentPubKeyFromRaw32 wraps a raw ed25519 public key as an AgentPubKey.
func AgentPubKeyFromRaw32(pub []byte) (AgentPubKey, error) {
	return NewHoloHash(HashTypeAgent, pub)
}

// LocationBytes computes the DHT location of a hash core: BLAKE2b-128 of
// the core, xor-folded into 4 bytes.
func LocationBytes(core []byte) []byte {
	h, err := blake2b.New(16, nil)
	if err != nil {
		// Only returned for invalid sizes or keys; 16 with no key is valid.
		panic(err)
	}
	h.Write(core)
	sum := h.Sum(nil)

	out := []byte{sum[0], sum[1], sum[2], sum[3]}
	for i := 4; i < len(sum); i += 4 {
		out[0] ^= sum[i]
		out[1] ^= sum[i+1]
		out[2] ^= sum[i+2]
		out[3] ^= sum[i+3]
	}
	return out
}

// Type reports the hash type from its prefix.
func (h HoloHash) Type() (HashType, bool) {
	if len(h) < HashPrefixLen {
		return "", false
	}
	for t, p := range hashPrefixes {
		if bytes.Equal(h[:HashPrefixLen], p[:]) {
			return t, true
		}
	}
	return "", false
}

// Core returns the 32-byte core, or nil if the hash is malformed.
func (h HoloHash) Core() []byte {
	if len(h) != HashLen {
		return nil
	}
	return h[HashPrefixLen : HashPrefixLen+HashCoreLen]
}

// Validate checks length, prefix and location bytes.
func (h HoloHash) Validate() error {
	if len(h) != HashLen {
		return fmt.Errorf("hash must be %d bytes, got %d", HashLen, len(h))
	}
	if _, ok := h.Type(); !ok {
		return fmt.Errorf("unknown hash prefix %x", []byte(h[:HashPrefixLen]))
	}
	if !bytes.Equal(h[HashPrefixLen+HashCoreLen:], LocationBytes(h.Core())) {
		return fmt.Errorf("hash location bytes do not match core")
	}
	return nil
}

// Equal reports whether two hashes are byte-identical.
func (h HoloHash) Equal(other HoloHash) bool {
	return bytes.Equal(h, other)
}

// String renders the hash as "u" + unpadded URL-safe base64.
func (h HoloHash) String() string {
	return "u" + base64.RawURLEncoding.EncodeToString(h)
}

// ParseHoloHash parses the "u"-prefixed base64 form and validates it.
func ParseHoloHash(s string) (HoloHash, error) {
	if len(s) == 0 || s[0] != 'u' {
		return nil, fmt.Errorf("hash string must start with 'u'")
	}
	raw, err := base64.RawURLEncoding.DecodeString(s[1:])
	if err != nil {
		return nil, fmt.Errorf("decode hash %q: %w", s, err)
	}
	h := HoloHash(raw)
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// ParseHoloHashOfType parses a hash string and checks its type.
func ParseHoloHashOfType(s string, want HashType) (HoloHash, error) {
	h, err := ParseHoloHash(s)
	if err != nil {
		return nil, err
	}
	if got, _ := h.Type(); got != want {
		return nil, fmt.Errorf("expected %s hash, got %s", want, got)
	}
	return h, nil
}
