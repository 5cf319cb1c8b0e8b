// Package access decides whether a caller may perform an action on a lead.
// Decisions are pure: the guard never reads storage and never blocks.
package access

import (
	"github.com/google/uuid"

	"lead_protection_backend/internal/leads/domain"
)

// Rule identifies which rule produced a decision.
type Rule string

const (
	RuleMissingContext    Rule = "missing_context"
	RuleTerritory         Rule = "territory_isolation"
	RuleRead              Rule = "territory_read"
	RuleWrite             Rule = "owner_or_collaborator_write"
	RuleOwnerOnly         Rule = "owner_only"
	RuleManagerOverride   Rule = "manager_override"
	RuleMissingPermission Rule = "missing_permission"
	RuleUnknownAction     Rule = "unknown_action"
)

// Decision is the outcome of Decide. A denial is a normal result, not an error.
type Decision struct {
	Allowed bool
	// Override marks an owner-only action granted to a non-owner; the write must
	// be committed together with an audit record.
	Override bool
	Rule     Rule
	Reason   string
}

func allow(rule Rule, reason string) Decision {
	return Decision{Allowed: true, Rule: rule, Reason: reason}
}

func deny(rule Rule, reason string) Decision {
	return Decision{Rule: rule, Reason: reason}
}

// Guard evaluates access rules in order; the first matching rule wins.
type Guard struct {
	policy Policy
}

// NewGuard creates a guard for policy.
func NewGuard(policy Policy) *Guard {
	return &Guard{policy: policy}
}

// Decide returns the access decision for ac performing action on lead.
func (g *Guard) Decide(ac domain.AccessContext, lead domain.Lead, action domain.Action) Decision {
	crossTerritory := ac.HasAnyRole(g.policy.CrossTerritoryRoles)

	if ac.UserID == uuid.Nil || (len(ac.Territories) == 0 && !crossTerritory) {
		return deny(RuleMissingContext, "access context lacks user or territory")
	}
	if lead.TerritoryID == "" || (!ac.InTerritory(lead.TerritoryID) && !crossTerritory) {
		return deny(RuleTerritory, "lead belongs to another territory")
	}

	switch {
	case action == domain.ActionRead:
		return allow(RuleRead, "same territory")

	case action == domain.ActionWrite:
		if lead.IsOwner(ac.UserID) {
			return allow(RuleWrite, "owner")
		}
		if lead.IsCollaborator(ac.UserID) {
			return allow(RuleWrite, "collaborator")
		}
		return deny(RuleWrite, "only the owner or a collaborator may edit")

	case action.IsOwnerOnly():
		decision := g.decideOwnerOnly(ac, lead)
		if !decision.Allowed {
			return decision
		}
		if !g.hasPermission(ac, action) {
			return deny(RuleMissingPermission, "action requires the manager role or an explicit permission")
		}
		return decision
	}

	return deny(RuleUnknownAction, "unknown action")
}

func (g *Guard) decideOwnerOnly(ac domain.AccessContext, lead domain.Lead) Decision {
	if lead.IsOwner(ac.UserID) {
		return allow(RuleOwnerOnly, "owner")
	}
	if ac.HasRole(g.policy.ManagerRole) && ac.HasRole(g.policy.AdminRole) {
		d := allow(RuleManagerOverride, "manager override")
		d.Override = true
		return d
	}
	return deny(RuleOwnerOnly, "only the owner may perform this action")
}

// hasPermission applies the extra grant required for clock and extension changes.
func (g *Guard) hasPermission(ac domain.AccessContext, action domain.Action) bool {
	var flag string
	switch action {
	case domain.ActionStopClock, domain.ActionResumeClock:
		flag = g.policy.StopClockPermission
	case domain.ActionExtend:
		flag = g.policy.ExtendPermission
	default:
		return true
	}
	return ac.HasRole(g.policy.ManagerRole) || (flag != "" && ac.HasRole(flag))
}
