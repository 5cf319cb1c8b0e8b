package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"lead_protection_backend/internal/email"
	"lead_protection_backend/internal/leads/domain"
	"lead_protection_backend/internal/leads/ports"
	"lead_protection_backend/platform/logger"
)

type stubLeads map[uuid.UUID]domain.Lead

func (s stubLeads) Get(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, ok := s[id]
	if !ok {
		return domain.Lead{}, domain.ErrLeadNotFound
	}
	return lead, nil
}

type stubUsers map[uuid.UUID]ports.UserInfo

func (s stubUsers) GetUserByID(_ context.Context, id uuid.UUID) (ports.UserInfo, error) {
	u, ok := s[id]
	if !ok {
		return ports.UserInfo{}, errors.New("not found")
	}
	return u, nil
}

type sentNotice struct {
	to     string
	notice email.ProtectionNotice
}

type recordingSender struct {
	sent []sentNotice
	err  error
}

func (r *recordingSender) SendProtectionNotice(_ context.Context, to string, n email.ProtectionNotice) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentNotice{to: to, notice: n})
	return nil
}

func noticeTask(t *testing.T, n domain.Notice) *asynq.Task {
	t.Helper()
	task, err := NewProtectionNoticeTask(n)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	return task
}

func TestNoticeHandlerSendsToOwner(t *testing.T) {
	leadID, ownerID := uuid.New(), uuid.New()
	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	sender := &recordingSender{}
	h := NewNoticeHandler(
		stubLeads{leadID: {ID: leadID, CompanyName: "Acme"}},
		stubUsers{ownerID: {ID: ownerID, Email: "owner@example.com", DisplayName: "Owner"}},
		sender, "https://crm.example.com/", logger.New("test"),
	)

	task := noticeTask(t, domain.Notice{LeadID: leadID, OwnerID: ownerID, Kind: domain.NoticeReminder, StampedAt: due.AddDate(0, 0, -10), DueAt: due})
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sender.sent))
	}
	got := sender.sent[0]
	if got.to != "owner@example.com" || got.notice.CompanyName != "Acme" || got.notice.Kind != "reminder" {
		t.Fatalf("unexpected email %+v", got)
	}
	if got.notice.LeadURL != "https://crm.example.com/leads/"+leadID.String() {
		t.Fatalf("unexpected lead url %q", got.notice.LeadURL)
	}
	if !got.notice.DueAt.Equal(due) {
		t.Fatalf("due date lost: %v", got.notice.DueAt)
	}
}

func TestNoticeHandlerDropsNoticeForDeletedLead(t *testing.T) {
	sender := &recordingSender{}
	h := NewNoticeHandler(stubLeads{}, stubUsers{}, sender, "", logger.New("test"))

	task := noticeTask(t, domain.Notice{LeadID: uuid.New(), OwnerID: uuid.New(), Kind: domain.NoticeExpired, StampedAt: time.Now()})
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("expected nil for a deleted lead, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("no email expected")
	}
}

func TestNoticeHandlerSkipsRetryForUnknownOwner(t *testing.T) {
	leadID := uuid.New()
	h := NewNoticeHandler(stubLeads{leadID: {ID: leadID}}, stubUsers{}, &recordingSender{}, "", logger.New("test"))

	task := noticeTask(t, domain.Notice{LeadID: leadID, OwnerID: uuid.New(), Kind: domain.NoticeGraceStarted, StampedAt: time.Now()})
	err := h.ProcessTask(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestNoticeHandlerRetriesSendFailure(t *testing.T) {
	leadID, ownerID := uuid.New(), uuid.New()
	h := NewNoticeHandler(
		stubLeads{leadID: {ID: leadID}},
		stubUsers{ownerID: {ID: ownerID, Email: "o@example.com"}},
		&recordingSender{err: errors.New("smtp down")}, "", logger.New("test"),
	)

	task := noticeTask(t, domain.Notice{LeadID: leadID, OwnerID: ownerID, Kind: domain.NoticeExpired, StampedAt: time.Now()})
	err := h.ProcessTask(context.Background(), task)
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected a retryable error, got %v", err)
	}
}

func TestNoticeTaskIDIsStablePerTransition(t *testing.T) {
	stamp := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	n := domain.Notice{LeadID: uuid.New(), Kind: domain.NoticeReminder, StampedAt: stamp}

	if noticeTaskID(n) != noticeTaskID(n) {
		t.Fatalf("task id must be deterministic")
	}
	other := n
	other.Kind = domain.NoticeGraceStarted
	if noticeTaskID(n) == noticeTaskID(other) {
		t.Fatalf("different kinds must not collide")
	}
	if !strings.HasPrefix(noticeTaskID(n), n.LeadID.String()) {
		t.Fatalf("task id should start with the lead id")
	}
}
