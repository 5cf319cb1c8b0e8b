package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditRecord is the append-only trace of a manager override or a status-forcing
// operation.
type AuditRecord struct {
	ID          uuid.UUID
	LeadID      uuid.UUID
	ActorID     uuid.UUID
	Action      Action
	Override    bool
	PriorOwner  *uuid.UUID
	NewOwner    *uuid.UUID
	PriorStatus Status
	NewStatus   Status
	Reason      string
	OccurredAt  time.Time
}

// NewAuditRecord captures the owner and status on both sides of a change.
func NewAuditRecord(actor uuid.UUID, action Action, before, after Lead, reason string, at time.Time) AuditRecord {
	return AuditRecord{
		ID:          uuid.New(),
		LeadID:      before.ID,
		ActorID:     actor,
		Action:      action,
		PriorOwner:  cloneUUID(before.OwnerUserID),
		NewOwner:    cloneUUID(after.OwnerUserID),
		PriorStatus: before.Status,
		NewStatus:   after.Status,
		Reason:      reason,
		OccurredAt:  at,
	}
}

// NoticeKind names the owner notification a time-driven transition triggers.
type NoticeKind string

const (
	NoticeReminder     NoticeKind = "reminder"
	NoticeGraceStarted NoticeKind = "grace_started"
	NoticeExpired      NoticeKind = "expired"
)

// Notice is one owner notification, emitted after the transition is committed.
type Notice struct {
	LeadID    uuid.UUID
	OwnerID   uuid.UUID
	Kind      NoticeKind
	StampedAt time.Time
	// DueAt is the next deadline the owner should know about (zero for expiry).
	DueAt time.Time
}
