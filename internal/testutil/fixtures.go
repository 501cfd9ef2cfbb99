package testutil

import (
	"bytes"

	"github.com/roach88/holoclient/internal/holo"
)

// Core returns a 32-byte hash core filled with b.
func Core(b byte) []byte {
	return bytes.Repeat([]byte{b}, holo.HashCoreLen)
}

// DnaHash returns a DNA hash whose core is filled with b.
func DnaHash(b byte) holo.DnaHash {
	return holo.MustHoloHash(holo.HashTypeDna, Core(b))
}

// AgentPubKey returns an agent key whose core is filled with b.
func AgentPubKey(b byte) holo.AgentPubKey {
	return holo.MustHoloHash(holo.HashTypeAgent, Core(b))
}

// CellID returns the cell of DnaHash(dna) and AgentPubKey(agent).
func CellID(dna, agent byte) holo.CellID {
	return holo.NewCellID(DnaHash(dna), AgentPubKey(agent))
}
