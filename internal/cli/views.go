package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/holoclient/internal/clone"
	"github.com/roach88/holoclient/internal/holo"
)

// CellView is the printable form of one cell of an app.
type CellView struct {
	Role    string `json:"role"`
	Kind    string `json:"kind"`
	CloneID string `json:"clone_id,omitempty"`
	CellID  string `json:"cell_id,omitempty"`
	Name    string `json:"name,omitempty"`
	Enabled bool   `json:"enabled"`
}

// AppView is the printable form of an installed app.
type AppView struct {
	AppID  string     `json:"app_id"`
	Status string     `json:"status"`
	Agent  string     `json:"agent"`
	Cells  []CellView `json:"cells"`
}

func newAppView(info holo.AppInfo) AppView {
	v := AppView{
		AppID:  info.InstalledAppID,
		Status: info.Status.Kind,
		Agent:  info.AgentPubKey.String(),
		Cells:  []CellView{},
	}
	roles := make([]string, 0, len(info.CellInfo))
	for role := range info.CellInfo {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		for _, ci := range info.CellInfo[role] {
			switch {
			case ci.Provisioned != nil:
				v.Cells = append(v.Cells, CellView{
					Role:    role,
					Kind:    "provisioned",
					CellID:  ci.Provisioned.CellID.String(),
					Name:    ci.Provisioned.Name,
					Enabled: true,
				})
			case ci.Cloned != nil:
				v.Cells = append(v.Cells, CellView{
					Role:    role,
					Kind:    "cloned",
					CloneID: string(ci.Cloned.CloneID),
					CellID:  ci.Cloned.CellID.String(),
					Name:    ci.Cloned.Name,
					Enabled: ci.Cloned.Enabled,
				})
			case ci.Stem != nil:
				v.Cells = append(v.Cells, CellView{Role: role, Kind: "stem"})
			}
		}
	}
	return v
}

func (v AppView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n  agent: %s", v.AppID, v.Status, v.Agent)
	for _, c := range v.Cells {
		label := c.Role
		if c.CloneID != "" {
			label = c.CloneID
		}
		state := "enabled"
		if !c.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(&b, "\n  %-16s %-11s %-8s %s", label, c.Kind, state, c.CellID)
	}
	return b.String()
}

// AppList prints one app per block.
type AppList []AppView

func (l AppList) String() string {
	if len(l) == 0 {
		return "No apps installed."
	}
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = v.String()
	}
	return strings.Join(parts, "\n")
}

// CloneView is the printable form of a tracked clone record.
type CloneView struct {
	AppID       string `json:"app_id"`
	CloneID     string `json:"clone_id"`
	State       string `json:"state"`
	CellID      string `json:"cell_id"`
	Name        string `json:"name,omitempty"`
	NetworkSeed string `json:"network_seed"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func newCloneView(rec clone.Record) CloneView {
	v := CloneView{
		AppID:       rec.AppID,
		CloneID:     string(rec.CloneID()),
		State:       string(rec.State),
		CellID:      rec.CellID.String(),
		Name:        rec.Name,
		NetworkSeed: rec.Modifiers.NetworkSeed,
	}
	if !rec.UpdatedAt.IsZero() {
		v.UpdatedAt = rec.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return v
}

func (v CloneView) String() string {
	return fmt.Sprintf("%-16s %-9s %s", v.CloneID, v.State, v.CellID)
}

// CloneList prints one clone per line.
type CloneList []CloneView

func newCloneList(recs []clone.Record) CloneList {
	out := make(CloneList, len(recs))
	for i, rec := range recs {
		out[i] = newCloneView(rec)
	}
	return out
}

func (l CloneList) String() string {
	if len(l) == 0 {
		return "No clone cells."
	}
	lines := make([]string, len(l))
	for i, v := range l {
		lines[i] = v.String()
	}
	return strings.Join(lines, "\n")
}
