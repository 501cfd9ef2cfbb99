package clone

import (
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/holoclient/internal/holo"
)

// Key identifies a clone cell within an app.
type Key struct {
	AppID holo.InstalledAppID
	Role  holo.RoleName
	Index uint32
}

// KeyFromCloneID builds the key of clone id within app.
func KeyFromCloneID(app holo.InstalledAppID, id holo.CloneID) (Key, error) {
	role, index, err := id.Parse()
	if err != nil {
		return Key{}, err
	}
	return Key{AppID: app, Role: role, Index: index}, nil
}

// CloneID returns the conductor's clone id for k.
func (k Key) CloneID() holo.CloneID {
	return holo.NewCloneID(k.Role, k.Index)
}

// Normalized returns k with NFC-normalized app id and role, so that
// visually identical names map to one record.
func (k Key) Normalized() Key {
	return Key{AppID: normalize(k.AppID), Role: normalize(k.Role), Index: k.Index}
}

func (k Key) String() string {
	return k.AppID + "/" + string(k.CloneID())
}

func normalize(s string) string {
	return norm.NFC.String(s)
}

// Record is the tracked state of one clone cell.
type Record struct {
	Key
	CellID    holo.CellID
	State     State
	Modifiers holo.DnaModifiers
	Name      string
	UpdatedAt time.Time
}
