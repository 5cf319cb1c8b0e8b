// Package events defines the lead protection domain events. The bus itself
// lives in platform/events.
package events

import (
	"lead_protection_backend/platform/events"

	"github.com/google/uuid"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// =============================================================================
// Lead Protection Events
// =============================================================================

// LeadCreated is published when a lead is captured.
type LeadCreated struct {
	BaseEvent
	LeadID      uuid.UUID  `json:"leadId"`
	OwnerUserID *uuid.UUID `json:"ownerUserId,omitempty"`
	TerritoryID string     `json:"territoryId"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// LeadStatusChanged is published after a committed status transition, whether
// caused by a user or by the sweep.
type LeadStatusChanged struct {
	BaseEvent
	LeadID      uuid.UUID  `json:"leadId"`
	OwnerUserID *uuid.UUID `json:"ownerUserId,omitempty"`
	TerritoryID string     `json:"territoryId"`
	OldStatus   string     `json:"oldStatus"`
	NewStatus   string     `json:"newStatus"`
	Trigger     string     `json:"trigger"`
	ActorID     uuid.UUID  `json:"actorId"`
}

func (e LeadStatusChanged) EventName() string { return "leads.status.changed" }

// LeadReassigned is published when ownership moves to another user.
type LeadReassigned struct {
	BaseEvent
	LeadID        uuid.UUID  `json:"leadId"`
	PreviousOwner *uuid.UUID `json:"previousOwner,omitempty"`
	NewOwner      uuid.UUID  `json:"newOwner"`
	ActorID       uuid.UUID  `json:"actorId"`
	Override      bool       `json:"override"`
}

func (e LeadReassigned) EventName() string { return "leads.owner.reassigned" }
