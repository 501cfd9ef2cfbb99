package testutil

import (
	"encoding/binary"
	"sync"

	"github.com/roach88/holoclient/internal/holo"
)

// SequentialNonces yields distinct, reproducible nonces: the first eight
// bytes carry a counter starting at 1, the rest are zero.
//
// Thread-safety: Next is safe for concurrent use.
type SequentialNonces struct {
	mu  sync.Mutex
	seq uint64
}

// NewSequentialNonces creates a nonce source whose first nonce has
// counter 1.
func NewSequentialNonces() *SequentialNonces {
	return &SequentialNonces{}
}

// Next returns the next nonce. It matches signing.NonceSource.
func (n *SequentialNonces) Next() ([]byte, error) {
	n.mu.Lock()
	n.seq++
	seq := n.seq
	n.mu.Unlock()

	nonce := make([]byte, holo.NonceLen)
	binary.BigEndian.PutUint64(nonce, seq)
	return nonce, nil
}
