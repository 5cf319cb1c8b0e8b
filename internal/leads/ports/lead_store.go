// Package ports defines the narrow interfaces the lead protection core needs
// from its collaborators: storage, notifications, audit and wall time.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"lead_protection_backend/internal/leads/domain"
)

// Commit is one atomic write: the lead at ExpectedVersion+1 plus any audit
// record, activities and owner notices that belong to the same change.
type Commit struct {
	ExpectedVersion int64
	Lead            domain.Lead
	Audit           *domain.AuditRecord
	Activities      []domain.Activity
	// Notices land in the outbox; a dispatcher hands them to the Notifier.
	Notices []domain.Notice
}

// LeadStore persists leads under optimistic concurrency.
type LeadStore interface {
	// Get returns the current snapshot including its version.
	Get(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	// Create inserts a new lead at version 1.
	Create(ctx context.Context, lead domain.Lead, activities []domain.Activity) (domain.Lead, error)
	// CompareAndSwap writes the commit only if the stored version still equals
	// ExpectedVersion. It returns domain.ErrConcurrencyConflict on a stale version
	// and domain.ErrAuditWrite when the audit append failed; in both cases nothing
	// is written. On success the returned lead carries the new version.
	CompareAndSwap(ctx context.Context, c Commit) (domain.Lead, error)
	// QueryDue returns up to limit leads that are not paused and have a
	// reminder, grace, expiry or pre-claim instant at or before now, or whose
	// contact data is due for pseudonymization.
	QueryDue(ctx context.Context, now time.Time, limit int) ([]domain.Lead, error)
	// AppendActivity records an activity that does not change the lead.
	AppendActivity(ctx context.Context, leadID uuid.UUID, activity domain.Activity) error
	// ListActivities returns a lead's activities, newest first.
	ListActivities(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.Activity, error)
	// ListAudit returns a lead's audit records, newest first.
	ListAudit(ctx context.Context, leadID uuid.UUID) ([]domain.AuditRecord, error)
}

// AuditSink is the append-only audit log. A failed append must abort the write
// it belongs to.
type AuditSink interface {
	Append(ctx context.Context, record domain.AuditRecord) error
}

// Notifier tells an owner about a reminder, grace or expiry transition. The
// outbox dispatcher calls it at least once per committed transition, so
// implementations must treat a repeated notice as already sent.
type Notifier interface {
	NotifyOwner(ctx context.Context, notice domain.Notice) error
}

// Clock is the wall time source.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
