package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Action is what a caller asks to do with a lead.
type Action string

const (
	ActionRead                Action = "read"
	ActionWrite               Action = "write"
	ActionReassign            Action = "reassign"
	ActionDelete              Action = "delete"
	ActionStopClock           Action = "stop_clock"
	ActionResumeClock         Action = "resume_clock"
	ActionExtend              Action = "extend"
	ActionRelease             Action = "release"
	ActionManageCollaborators Action = "manage_collaborators"
)

var ownerOnlyActions = map[Action]bool{
	ActionReassign:            true,
	ActionDelete:              true,
	ActionStopClock:           true,
	ActionResumeClock:         true,
	ActionExtend:              true,
	ActionRelease:             true,
	ActionManageCollaborators: true,
}

// IsOwnerOnly reports whether the action is reserved for the owner.
func (a Action) IsOwnerOnly() bool {
	return ownerOnlyActions[a]
}

// AccessContext is the caller's identity for one request. It is built from the
// request credentials and passed explicitly into every decision.
type AccessContext struct {
	UserID      uuid.UUID
	Territories map[string]struct{}
	Roles       map[string]struct{}
}

// NewAccessContext normalises territory ids and role names into sets.
func NewAccessContext(userID uuid.UUID, territories, roles []string) AccessContext {
	ac := AccessContext{
		UserID:      userID,
		Territories: make(map[string]struct{}, len(territories)),
		Roles:       make(map[string]struct{}, len(roles)),
	}
	for _, t := range territories {
		if t = strings.TrimSpace(t); t != "" {
			ac.Territories[strings.ToUpper(t)] = struct{}{}
		}
	}
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			ac.Roles[strings.ToLower(r)] = struct{}{}
		}
	}
	return ac
}

// InTerritory reports whether the caller may act in territoryID.
func (a AccessContext) InTerritory(territoryID string) bool {
	_, ok := a.Territories[strings.ToUpper(strings.TrimSpace(territoryID))]
	return ok
}

// HasRole reports whether the caller holds role.
func (a AccessContext) HasRole(role string) bool {
	_, ok := a.Roles[strings.ToLower(strings.TrimSpace(role))]
	return ok
}

// HasAnyRole reports whether the caller holds at least one of roles.
func (a AccessContext) HasAnyRole(roles []string) bool {
	for _, r := range roles {
		if a.HasRole(r) {
			return true
		}
	}
	return false
}
