package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/roach88/holoclient/internal/clienterr"
	"github.com/roach88/holoclient/internal/holo"
	"github.com/roach88/holoclient/internal/wire"
)

// DefaultExpiry is how long a signed call stays valid.
const DefaultExpiry = 5 * time.Minute

// NonceSource produces nonces of holo.NonceLen bytes.
type NonceSource func() ([]byte, error)

// RandomNonce reads a nonce from crypto/rand.
func RandomNonce() ([]byte, error) {
	nonce := make([]byte, holo.NonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	return nonce, nil
}

// SignOptions supplies the clock and nonce source used for signing.
// Zero values select time.Now, RandomNonce and DefaultExpiry.
type SignOptions struct {
	Now    func() time.Time
	Nonce  NonceSource
	Expiry time.Duration
}

func (o SignOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o SignOptions) nonce() ([]byte, error) {
	if o.Nonce != nil {
		return o.Nonce()
	}
	return RandomNonce()
}

func (o SignOptions) expiry() time.Duration {
	if o.Expiry > 0 {
		return o.Expiry
	}
	return DefaultExpiry
}

// ZomeCallParams describe a call before signing.
type ZomeCallParams struct {
	CellID   holo.CellID
	ZomeName string
	FnName   string

	// Payload is the MessagePack-encoded function argument.
	Payload []byte

	// Provenance defaults to the credentials' signing key.
	Provenance holo.AgentPubKey

	// Nonce is generated when nil.
	Nonce []byte

	// ExpiresAt is now plus SignOptions.Expiry when zero.
	ExpiresAt holo.Timestamp
}

// DataToSign returns the BLAKE2b-256 digest of the canonical encoding of
// the unsigned call.
func DataToSign(u holo.ZomeCallUnsigned) ([]byte, error) {
	b, err := wire.Marshal(u)
	if err != nil {
		return nil, errors.Wrap(err, "encode unsigned zome call")
	}
	sum := blake2b.Sum256(b)
	return sum[:], nil
}

// SignZomeCall signs params with creds. It fails with a signing error when
// creds is nil or the requested expiry has already passed.
func SignZomeCall(params ZomeCallParams, creds *Credentials, opts SignOptions) (*holo.ZomeCall, error) {
	if creds == nil {
		return nil, clienterr.Signing(clienterr.CodeNoCredentials, "no signing credentials for cell %s", params.CellID)
	}

	now := holo.TimestampFromTime(opts.now())
	expiresAt := params.ExpiresAt
	if expiresAt == 0 {
		expiresAt = holo.TimestampFromTime(opts.now().Add(opts.expiry()))
	} else if expiresAt <= now {
		return nil, clienterr.Signing(clienterr.CodeExpired, "expiry %d is not after now %d", expiresAt, now)
	}

	nonce := params.Nonce
	if nonce == nil {
		var err error
		if nonce, err = opts.nonce(); err != nil {
			return nil, err
		}
	}
	if len(nonce) != holo.NonceLen {
		return nil, clienterr.Signing(clienterr.CodeBadSignature, "nonce must be %d bytes, got %d", holo.NonceLen, len(nonce))
	}

	provenance := params.Provenance
	if provenance == nil {
		provenance = creds.SigningKey
	}

	unsigned := holo.ZomeCallUnsigned{
		Provenance: provenance,
		CellID:     params.CellID,
		ZomeName:   params.ZomeName,
		FnName:     params.FnName,
		CapSecret:  creds.CapSecret,
		Payload:    params.Payload,
		Nonce:      nonce,
		ExpiresAt:  expiresAt,
	}
	digest, err := DataToSign(unsigned)
	if err != nil {
		return nil, err
	}
	return unsigned.WithSignature(ed25519.Sign(creds.KeyPair, digest)), nil
}

// Verify checks call's signature against its provenance key.
func Verify(call *holo.ZomeCall) error {
	if err := call.Provenance.Validate(); err != nil {
		return clienterr.Signing(clienterr.CodeBadSignature, "invalid provenance: %v", err)
	}
	return VerifyWithKey(call, ed25519.PublicKey(call.Provenance.Core()))
}

// VerifyWithKey checks call's signature against pub.
func VerifyWithKey(call *holo.ZomeCall, pub ed25519.PublicKey) error {
	if len(call.Signature) != holo.SignatureLen {
		return clienterr.Signing(clienterr.CodeBadSignature, "signature must be %d bytes, got %d", holo.SignatureLen, len(call.Signature))
	}
	digest, err := DataToSign(call.Unsigned())
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, digest, call.Signature) {
		return clienterr.Signing(clienterr.CodeBadSignature, "signature does not verify")
	}
	return nil
}
