package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"lead_protection_backend/internal/leads/domain"
	"lead_protection_backend/internal/leads/ports"
	"lead_protection_backend/internal/leads/protection"
	"lead_protection_backend/internal/notification/outbox"
)

// MemoryAuditLog is an in-process AuditSink. Fail makes subsequent appends
// return err until it is called again with nil.
type MemoryAuditLog struct {
	mu      sync.Mutex
	records []domain.AuditRecord
	failErr error
}

var _ ports.AuditSink = (*MemoryAuditLog)(nil)

func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

func (a *MemoryAuditLog) Append(_ context.Context, rec domain.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failErr != nil {
		return a.failErr
	}
	a.records = append(a.records, rec)
	return nil
}

// Fail sets the error returned by Append.
func (a *MemoryAuditLog) Fail(err error) {
	a.mu.Lock()
	a.failErr = err
	a.mu.Unlock()
}

// Records returns the records for leadID, newest first.
func (a *MemoryAuditLog) Records(leadID uuid.UUID) []domain.AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.AuditRecord, 0)
	for i := len(a.records) - 1; i >= 0; i-- {
		if a.records[i].LeadID == leadID {
			out = append(out, a.records[i])
		}
	}
	return out
}

// MemoryStore is a LeadStore kept in process memory. A single mutex makes each
// commit atomic; the audit append happens before anything else is written.
type MemoryStore struct {
	mu         sync.Mutex
	leads      map[uuid.UUID]domain.Lead
	activities map[uuid.UUID][]domain.Activity
	audit      *MemoryAuditLog
	outbox     *outbox.Memory
}

var _ ports.LeadStore = (*MemoryStore)(nil)

func NewMemoryStore(audit *MemoryAuditLog) *MemoryStore {
	if audit == nil {
		audit = NewMemoryAuditLog()
	}
	return &MemoryStore{
		leads:      make(map[uuid.UUID]domain.Lead),
		activities: make(map[uuid.UUID][]domain.Activity),
		audit:      audit,
		outbox:     outbox.NewMemory(),
	}
}

// Outbox returns the notices committed with transitions.
func (s *MemoryStore) Outbox() *outbox.Memory {
	return s.outbox
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok || lead.IsDeleted() {
		return domain.Lead{}, domain.ErrLeadNotFound
	}
	return lead.Clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, lead domain.Lead, activities []domain.Activity) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.leads[lead.ID]; exists {
		return domain.Lead{}, fmt.Errorf("lead %s already exists", lead.ID)
	}
	lead = lead.Clone()
	lead.Version = 1
	lead.UpdatedAt = time.Now().UTC()
	s.leads[lead.ID] = lead
	s.activities[lead.ID] = append(s.activities[lead.ID], activities...)
	return lead.Clone(), nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, c ports.Commit) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.leads[c.Lead.ID]
	if !ok {
		return domain.Lead{}, domain.ErrLeadNotFound
	}
	if current.Version != c.ExpectedVersion {
		return domain.Lead{}, domain.ErrConcurrencyConflict
	}
	if c.Audit != nil {
		if err := s.audit.Append(ctx, *c.Audit); err != nil {
			return domain.Lead{}, fmt.Errorf("%w: %w", domain.ErrAuditWrite, err)
		}
	}

	next := c.Lead.Clone()
	next.Version = current.Version + 1
	next.UpdatedAt = time.Now().UTC()
	s.leads[next.ID] = next
	s.activities[next.ID] = append(s.activities[next.ID], c.Activities...)
	s.outbox.Add(c.Notices...)
	return next.Clone(), nil
}

func (s *MemoryStore) QueryDue(_ context.Context, now time.Time, limit int) ([]domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]domain.Lead, 0)
	for _, lead := range s.leads {
		if isDue(lead, now) {
			due = append(due, lead.Clone())
		}
	}
	slices.SortFunc(due, func(a, b domain.Lead) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryStore) AppendActivity(_ context.Context, leadID uuid.UUID, activity domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[leadID]; !ok {
		return domain.ErrLeadNotFound
	}
	activity.LeadID = leadID
	s.activities[leadID] = append(s.activities[leadID], activity)
	return nil
}

func (s *MemoryStore) ListActivities(_ context.Context, leadID uuid.UUID, limit int) ([]domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.activities[leadID]
	out := make([]domain.Activity, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
	}
	slices.SortStableFunc(out, func(a, b domain.Activity) int {
		return b.OccurredAt.Compare(a.OccurredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListAudit(_ context.Context, leadID uuid.UUID) ([]domain.AuditRecord, error) {
	return s.audit.Records(leadID), nil
}

// isDue matches the QueryDue SQL filter.
func isDue(lead domain.Lead, now time.Time) bool {
	if lead.IsDeleted() || lead.IsPaused() {
		return false
	}
	if lead.Status.IsTerminal() {
		return lead.IsPseudonymizable(now)
	}
	if lead.IsPreClaim() {
		return lead.PreClaimReleasedAt == nil && !now.Before(domain.PreClaimDeadline(lead.CreatedAt))
	}

	ev := protection.EvaluateLead(lead, now)
	switch lead.Status {
	case domain.StatusRegistered, domain.StatusActive, domain.StatusExtended:
		return lead.ReminderSentAt == nil && ev.NeedsReminder
	case domain.StatusReminderSent:
		return lead.GracePeriodStartAt == nil && ev.NeedsGrace
	case domain.StatusGracePeriod:
		return lead.ExpiredAt == nil && ev.IsGraceExpired
	}
	return false
}
