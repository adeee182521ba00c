package model

import "slices"

const (
	ActionView   = "view"
	ActionAdd    = "add"
	ActionChange = "change"
	ActionDelete = "delete"
)

// AllActions lists every action in menu order.
var AllActions = []string{ActionView, ActionAdd, ActionChange, ActionDelete}

// Actor is whoever issued the current request.
type Actor struct {
	Name       string
	Permission Permission
}

// Permission grants actions on Impacts. VRFIDs is an object-level
// constraint: when non-empty only Impacts in those VRFs are visible and
// writable. DeniedFields are skipped by bulk edits.
type Permission struct {
	Actions      []string `yaml:"actions"`
	VRFIDs       []int64  `yaml:"vrfs"`
	DeniedFields []string `yaml:"denied_fields"`
}

// FullPermission allows everything without constraint.
func FullPermission() Permission {
	return Permission{Actions: append([]string(nil), AllActions...)}
}

// Anonymous is used when no tokens are configured.
func Anonymous() *Actor {
	return &Actor{Name: "anonymous", Permission: FullPermission()}
}

func (p Permission) Can(action string) bool {
	return slices.Contains(p.Actions, action)
}

// Permits reports whether impact satisfies the object-level constraint.
func (p Permission) Permits(impact *Impact) bool {
	if len(p.VRFIDs) == 0 {
		return true
	}
	return impact.VRFID != nil && slices.Contains(p.VRFIDs, *impact.VRFID)
}

// PermitsVRF reports whether rows of vrfID may be shown.
func (p Permission) PermitsVRF(vrfID *int64) bool {
	if len(p.VRFIDs) == 0 {
		return true
	}
	return vrfID != nil && slices.Contains(p.VRFIDs, *vrfID)
}
