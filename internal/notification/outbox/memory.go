package outbox

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"lead_protection_backend/internal/leads/domain"
)

type memRecord struct {
	Record
	runAt     time.Time
	sent      bool
	lastError string
}

// Memory is an in-process outbox with the same claim semantics as Repository.
type Memory struct {
	mu      sync.Mutex
	records []*memRecord
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

// Add stores notices, skipping any already held for the same lead, kind and stamp.
func (m *Memory) Add(notices ...domain.Notice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range notices {
		if slices.ContainsFunc(m.records, func(r *memRecord) bool { return sameTransition(r.Notice, n) }) {
			continue
		}
		m.records = append(m.records, &memRecord{
			Record: Record{ID: uuid.New(), Notice: n},
			runAt:  n.StampedAt,
		})
	}
}

func (m *Memory) ClaimPending(_ context.Context, now time.Time, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit < 1 {
		limit = 50
	}

	due := make([]*memRecord, 0)
	for _, r := range m.records {
		if !r.sent && !r.runAt.After(now) {
			due = append(due, r)
		}
	}
	slices.SortStableFunc(due, func(a, b *memRecord) int { return a.runAt.Compare(b.runAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]Record, 0, len(due))
	for _, r := range due {
		r.runAt = now.Add(ClaimLease)
		r.Attempts++
		out = append(out, r.Record)
	}
	return out, nil
}

func (m *Memory) MarkSent(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.find(id); r != nil {
		r.sent = true
		r.lastError = ""
	}
	return nil
}

func (m *Memory) MarkPending(_ context.Context, id uuid.UUID, retryAt time.Time, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.find(id); r != nil {
		r.sent = false
		r.runAt = retryAt
		r.lastError = lastError
	}
	return nil
}

// Pending returns the notices not yet handed to the queue, oldest first.
func (m *Memory) Pending() []domain.Notice {
	return m.notices(false)
}

// Sent returns the notices handed to the queue.
func (m *Memory) Sent() []domain.Notice {
	return m.notices(true)
}

func (m *Memory) notices(sent bool) []domain.Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Notice, 0)
	for _, r := range m.records {
		if r.sent == sent {
			out = append(out, r.Notice)
		}
	}
	return out
}

func (m *Memory) find(id uuid.UUID) *memRecord {
	for _, r := range m.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func sameTransition(a, b domain.Notice) bool {
	return a.LeadID == b.LeadID && a.Kind == b.Kind && a.StampedAt.Equal(b.StampedAt)
}
