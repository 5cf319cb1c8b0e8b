package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// ContactPerson is the person at the prospect. Attaching one registers the lead.
type ContactPerson struct {
	Name  string
	Email string
	Phone string
}

// Lead is the protected entity. Values are snapshots: decision functions take a
// Lead and return a modified copy, the store persists it under Version.
type Lead struct {
	ID                  uuid.UUID
	OwnerUserID         *uuid.UUID
	CollaboratorUserIDs []uuid.UUID
	TerritoryID         string
	CompanyName         string
	Contact             *ContactPerson

	Stage  Stage
	Status Status

	CreatedAt          time.Time
	RegisteredAt       *time.Time
	LastActivityAt     *time.Time
	ReminderSentAt     *time.Time
	GracePeriodStartAt *time.Time
	ExpiredAt          *time.Time
	ExtendedAt         *time.Time
	PreClaimReleasedAt *time.Time
	PseudonymizedAt    *time.Time
	DeletedAt          *time.Time

	ClockStoppedAt *time.Time
	StopReason     string
	StopApprovedBy *uuid.UUID
	// PausedSeconds only grows; the marks snapshot it when reminder and grace are
	// stamped, and PauseBaseline when protection restarts on a reopen.
	PausedSeconds     int64
	PauseBaseline     int64
	ReminderPauseMark int64
	GracePauseMark    int64

	ProtectionMonths int
	ReminderDays     int
	GraceDays        int

	Version   int64
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers can mutate without aliasing the snapshot.
func (l Lead) Clone() Lead {
	out := l
	out.OwnerUserID = cloneUUID(l.OwnerUserID)
	out.StopApprovedBy = cloneUUID(l.StopApprovedBy)
	out.CollaboratorUserIDs = slices.Clone(l.CollaboratorUserIDs)
	if l.Contact != nil {
		c := *l.Contact
		out.Contact = &c
	}
	out.RegisteredAt = cloneTime(l.RegisteredAt)
	out.LastActivityAt = cloneTime(l.LastActivityAt)
	out.ReminderSentAt = cloneTime(l.ReminderSentAt)
	out.GracePeriodStartAt = cloneTime(l.GracePeriodStartAt)
	out.ExpiredAt = cloneTime(l.ExpiredAt)
	out.ExtendedAt = cloneTime(l.ExtendedAt)
	out.PreClaimReleasedAt = cloneTime(l.PreClaimReleasedAt)
	out.PseudonymizedAt = cloneTime(l.PseudonymizedAt)
	out.DeletedAt = cloneTime(l.DeletedAt)
	out.ClockStoppedAt = cloneTime(l.ClockStoppedAt)
	return out
}

// IsOwner reports whether userID currently owns the lead.
func (l Lead) IsOwner(userID uuid.UUID) bool {
	return l.OwnerUserID != nil && userID != uuid.Nil && *l.OwnerUserID == userID
}

// IsCollaborator reports whether userID is in the collaborator set.
func (l Lead) IsCollaborator(userID uuid.UUID) bool {
	return userID != uuid.Nil && slices.Contains(l.CollaboratorUserIDs, userID)
}

// IsPaused reports whether the stop-clock overlay is set.
func (l Lead) IsPaused() bool {
	return l.ClockStoppedAt != nil
}

// IsDeleted reports whether the lead was soft deleted.
func (l Lead) IsDeleted() bool {
	return l.DeletedAt != nil
}

// IsPreClaim reports whether protection never started.
func (l Lead) IsPreClaim() bool {
	return l.RegisteredAt == nil
}

// PseudonymizeAfter is how long an expired lead keeps its contact data.
const PseudonymizeAfter = 60 * 24 * time.Hour

// AnonymizedContactName replaces the contact name on pseudonymization.
const AnonymizedContactName = "ANONYMIZED"

// IsPseudonymizable reports whether the contact data of an expired lead is due
// for pseudonymization at now.
func (l Lead) IsPseudonymizable(now time.Time) bool {
	return !l.IsDeleted() && l.Status == StatusExpired && l.ExpiredAt != nil &&
		l.PseudonymizedAt == nil && !now.Before(l.ExpiredAt.Add(PseudonymizeAfter))
}

// ReminderAnchor is the latest of registration, last meaningful activity and
// last extension. Nil while the lead is in pre-claim.
func (l Lead) ReminderAnchor() *time.Time {
	if l.RegisteredAt == nil {
		return nil
	}
	anchor := *l.RegisteredAt
	for _, t := range []*time.Time{l.LastActivityAt, l.ExtendedAt} {
		if t != nil && t.After(anchor) {
			anchor = *t
		}
	}
	return &anchor
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// UUIDPtr returns a pointer to id.
func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
