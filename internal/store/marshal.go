package store

import (
	"fmt"
	"time"

	"github.com/roach88/holoclient/internal/holo"
	"github.com/roach88/holoclient/internal/wire"
)

// marshalModifiers encodes DNA modifiers as MessagePack for the modifiers
// column.
func marshalModifiers(m holo.DnaModifiers) ([]byte, error) {
	data, err := wire.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal modifiers: %w", err)
	}
	return data, nil
}

func unmarshalModifiers(data []byte) (holo.DnaModifiers, error) {
	var m holo.DnaModifiers
	if len(data) == 0 {
		return m, nil
	}
	if err := wire.Unmarshal(data, &m); err != nil {
		return holo.DnaModifiers{}, fmt.Errorf("unmarshal modifiers: %w", err)
	}
	return m, nil
}

// marshalCellID renders a cell id as text; the zero id is the empty string.
func marshalCellID(id holo.CellID) string {
	if id.IsZero() {
		return ""
	}
	return id.String()
}

func unmarshalCellID(s string) (holo.CellID, error) {
	if s == "" {
		return holo.CellID{}, nil
	}
	id, err := holo.ParseCellID(s)
	if err != nil {
		return holo.CellID{}, fmt.Errorf("unmarshal cell id: %w", err)
	}
	return id, nil
}

// Times are stored as microseconds since the Unix epoch.
func marshalTime(t time.Time) int64 {
	return t.UnixMicro()
}

func unmarshalTime(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}
