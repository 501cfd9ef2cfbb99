// Package signing signs zome calls with per-cell credentials.
//
// A zome call is authorized by the conductor only when it carries an
// ed25519 signature, by the provenance key, over the BLAKE2b-256 digest of
// the MessagePack encoding of the unsigned call. Signing is a pure
// function of the call, the credentials and the nonce and clock sources.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"io"

	"github.com/pkg/errors"

	"github.com/roach88/holoclient/internal/holo"
)

// SigningKeyTag is the capability grant tag used when authorizing
// signing credentials.
const SigningKeyTag = "zome-call-signing-key"

// Credentials authorize zome calls to one cell.
type Credentials struct {
	// KeyPair signs calls. It never leaves the process.
	KeyPair ed25519.PrivateKey

	// SigningKey is KeyPair's public half as an agent key; it is the
	// provenance of every call signed with these credentials.
	SigningKey holo.AgentPubKey

	// CapSecret is the secret of the capability grant.
	CapSecret []byte

	// CellID is the cell the grant was made on.
	CellID holo.CellID

	// Functions are the functions the grant covers.
	Functions holo.GrantedFunctions
}

// NewCredentials assembles credentials from an existing key pair and cap
// secret.
func NewCredentials(key ed25519.PrivateKey, capSecret []byte, cellID holo.CellID, functions holo.GrantedFunctions) (*Credentials, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("signing key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	if len(capSecret) != holo.CapSecretLen {
		return nil, errors.Errorf("cap secret must be %d bytes, got %d", holo.CapSecretLen, len(capSecret))
	}
	agent, err := holo.AgentPubKeyFromRaw32(key.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Credentials{
		KeyPair:    key,
		SigningKey: agent,
		CapSecret:  append([]byte(nil), capSecret...),
		CellID:     cellID,
		Functions:  functions,
	}, nil
}

// GenerateCredentials creates a fresh key pair and cap secret for cellID.
func GenerateCredentials(cellID holo.CellID, functions holo.GrantedFunctions) (*Credentials, error) {
	return generateCredentials(rand.Reader, cellID, functions)
}

func generateCredentials(r io.Reader, cellID holo.CellID, functions holo.GrantedFunctions) (*Credentials, error) {
	_, key, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, errors.Wrap(err, "generate signing key")
	}
	secret := make([]byte, holo.CapSecretLen)
	if _, err := io.ReadFull(r, secret); err != nil {
		return nil, errors.Wrap(err, "generate cap secret")
	}
	return NewCredentials(key, secret, cellID, functions)
}

// PublicKey returns the raw ed25519 public key.
func (c *Credentials) PublicKey() ed25519.PublicKey {
	return c.KeyPair.Public().(ed25519.PublicKey)
}

// CapGrant returns the capability grant that authorizes these
// credentials: access assigned to the signing key, guarded by the cap
// secret.
func (c *Credentials) CapGrant() holo.ZomeCallCapGrant {
	return holo.ZomeCallCapGrant{
		Tag: SigningKeyTag,
		Access: holo.CapAccess{
			Kind:      holo.CapAccessAssigned,
			Secret:    c.CapSecret,
			Assignees: []holo.AgentPubKey{c.SigningKey},
		},
		Functions: c.Functions,
	}
}
