package signing

import (
	"sync"

	"github.com/roach88/holoclient/internal/clienterr"
	"github.com/roach88/holoclient/internal/holo"
)

// Signer signs zome calls for the cells it holds credentials for.
type Signer interface {
	Sign(params ZomeCallParams) (*holo.ZomeCall, error)
}

// ClientAgentSigner keeps credentials per cell. It is safe for concurrent
// use; credentials are read-only once added.
type ClientAgentSigner struct {
	opts SignOptions

	mu    sync.RWMutex
	creds map[string]*Credentials
}

var _ Signer = (*ClientAgentSigner)(nil)

// NewClientAgentSigner creates an empty signer.
func NewClientAgentSigner(opts SignOptions) *ClientAgentSigner {
	return &ClientAgentSigner{
		opts:  opts,
		creds: make(map[string]*Credentials),
	}
}

// Add registers creds for the cell they were authorized on.
func (s *ClientAgentSigner) Add(creds *Credentials) {
	s.Set(creds.CellID, creds)
}

// Set registers creds for cellID.
func (s *ClientAgentSigner) Set(cellID holo.CellID, creds *Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cellID.String()] = creds
}

// Remove forgets the credentials for cellID.
func (s *ClientAgentSigner) Remove(cellID holo.CellID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, cellID.String())
}

// Get returns the credentials registered for cellID.
func (s *ClientAgentSigner) Get(cellID holo.CellID) (*Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[cellID.String()]
	return c, ok
}

// Sign looks up the credentials for params.CellID and signs the call.
func (s *ClientAgentSigner) Sign(params ZomeCallParams) (*holo.ZomeCall, error) {
	creds, ok := s.Get(params.CellID)
	if !ok {
		return nil, clienterr.Signing(clienterr.CodeNoCredentials, "no signing credentials for cell %s", params.CellID)
	}
	if !creds.CellID.Equal(params.CellID) {
		return nil, clienterr.Signing(clienterr.CodeUnauthorized, "credentials are bound to cell %s, not %s", creds.CellID, params.CellID)
	}
	if !creds.Functions.Allows(params.ZomeName, params.FnName) {
		return nil, clienterr.Signing(clienterr.CodeUnauthorized, "credentials do not grant %s/%s", params.ZomeName, params.FnName)
	}
	return SignZomeCall(params, creds, s.opts)
}
