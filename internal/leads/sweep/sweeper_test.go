package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"lead_protection_backend/internal/leads/adapters/fsm"
	"lead_protection_backend/internal/leads/domain"
	"lead_protection_backend/internal/leads/lifecycle"
	"lead_protection_backend/internal/leads/ports"
	"lead_protection_backend/internal/leads/repository"
	"lead_protection_backend/platform/apperr"
	"lead_protection_backend/platform/logger"
)

const day = 24 * time.Hour

var t0 = time.Date(2026, 2, 2, 6, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

// hookStore calls onCommit after every successful commit.
type hookStore struct {
	*repository.MemoryStore
	onCommit func()
}

func (s *hookStore) CompareAndSwap(ctx context.Context, c ports.Commit) (domain.Lead, error) {
	lead, err := s.MemoryStore.CompareAndSwap(ctx, c)
	if err == nil && s.onCommit != nil {
		s.onCommit()
	}
	return lead, err
}

// conflictStore loses every commit race.
type conflictStore struct {
	*repository.MemoryStore
	attempts int
}

func (s *conflictStore) CompareAndSwap(context.Context, ports.Commit) (domain.Lead, error) {
	s.attempts++
	return domain.Lead{}, domain.ErrConcurrencyConflict
}

func noticeKinds(store *repository.MemoryStore) []domain.NoticeKind {
	out := make([]domain.NoticeKind, 0)
	for _, n := range store.Outbox().Pending() {
		out = append(out, n.Kind)
	}
	return out
}

// failingStore rejects commits for one lead.
type failingStore struct {
	*repository.MemoryStore
	failID uuid.UUID
}

func (s *failingStore) CompareAndSwap(ctx context.Context, c ports.Commit) (domain.Lead, error) {
	if c.Lead.ID == s.failID {
		return domain.Lead{}, errors.New("connection reset")
	}
	return s.MemoryStore.CompareAndSwap(ctx, c)
}

type stubLocker struct{ held bool }

func (l *stubLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	if l.held {
		return nil, false, nil
	}
	return func(context.Context) error { return nil }, true, nil
}

func newSweeper(t *testing.T, store ports.LeadStore, clock *fixedClock, locker Locker, opts Options) *Sweeper {
	t.Helper()
	opts.Clock = clock
	if opts.Interval == 0 {
		opts.Interval = time.Hour
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 10
	}
	if opts.CommitRetries == 0 {
		opts.CommitRetries = 3
	}
	s, err := New(store, lifecycle.New(fsm.New()), nil, locker, opts, logger.New("test"))
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	return s
}

func seedLead(t *testing.T, store ports.LeadStore, registeredAt time.Time) domain.Lead {
	t.Helper()
	owner := uuid.New()
	lead, err := store.Create(context.Background(), domain.Lead{
		ID:               uuid.New(),
		OwnerUserID:      &owner,
		TerritoryID:      "DE",
		Stage:            domain.StageRegistered,
		Status:           domain.StatusRegistered,
		CreatedAt:        registeredAt,
		RegisteredAt:     domain.TimePtr(registeredAt),
		ProtectionMonths: 6,
		ReminderDays:     60,
		GraceDays:        10,
	}, nil)
	if err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	return lead
}

func TestSweepDrivesReminderGraceExpiry(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(nil)
	clock := &fixedClock{now: t0}
	s := newSweeper(t, store, clock, nil, Options{})
	lead := seedLead(t, store, t0)

	steps := []struct {
		at     time.Time
		status domain.Status
	}{
		{t0.Add(59 * day), domain.StatusRegistered},
		{t0.Add(60*day + time.Second), domain.StatusReminderSent},
		{t0.Add(70*day + time.Second), domain.StatusGracePeriod},
		{t0.Add(80*day + time.Second), domain.StatusExpired},
	}
	for _, step := range steps {
		clock.now = step.at
		if _, err := s.SweepOnce(ctx); err != nil {
			t.Fatalf("sweep at %s: %v", step.at, err)
		}
		got, _ := store.Get(ctx, lead.ID)
		if got.Status != step.status {
			t.Fatalf("at %s: expected %s, got %s", step.at.Sub(t0), step.status, got.Status)
		}
	}

	got, _ := store.Get(ctx, lead.ID)
	if got.OwnerUserID != nil {
		t.Fatalf("expected owner cleared on expiry")
	}
	kinds := noticeKinds(store)
	want := []domain.NoticeKind{domain.NoticeReminder, domain.NoticeGraceStarted, domain.NoticeExpired}
	if len(kinds) != len(want) {
		t.Fatalf("expected notices %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected notices %v, got %v", want, kinds)
		}
	}
	for _, n := range store.Outbox().Pending() {
		if n.OwnerID != *lead.OwnerUserID {
			t.Fatalf("expected notices addressed to the owner, got %s", n.OwnerID)
		}
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(nil)
	clock := &fixedClock{now: t0.Add(60*day + time.Second)}
	s := newSweeper(t, store, clock, nil, Options{})
	lead := seedLead(t, store, t0)

	first, err := s.SweepOnce(ctx)
	if err != nil || first.Transitioned != 1 || first.Queued != 1 {
		t.Fatalf("expected one transition, got %+v (%v)", first, err)
	}
	afterFirst, _ := store.Get(ctx, lead.ID)

	second, err := s.SweepOnce(ctx)
	if err != nil || second.Transitioned != 0 || second.Scanned != 0 {
		t.Fatalf("expected a no-op second run, got %+v (%v)", second, err)
	}
	afterSecond, _ := store.Get(ctx, lead.ID)
	if afterSecond.Version != afterFirst.Version {
		t.Fatalf("expected no write on the second run")
	}
	if kinds := noticeKinds(store); len(kinds) != 1 {
		t.Fatalf("expected exactly one notice, got %v", kinds)
	}
}

func TestSweepSkipsPausedLead(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(nil)
	clock := &fixedClock{now: t0.Add(20 * day)}
	s := newSweeper(t, store, clock, nil, Options{})
	lead := seedLead(t, store, t0)

	paused := lead.Clone()
	paused.ClockStoppedAt = domain.TimePtr(clock.now)
	if _, err := store.CompareAndSwap(ctx, ports.Commit{ExpectedVersion: lead.Version, Lead: paused}); err != nil {
		t.Fatalf("pause: %v", err)
	}

	clock.now = t0.Add(200 * day)
	report, err := s.SweepOnce(ctx)
	if err != nil || report.Transitioned != 0 {
		t.Fatalf("expected paused lead untouched, got %+v (%v)", report, err)
	}
}

func TestSweepReleasesStalePreClaim(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(nil)
	clock := &fixedClock{now: t0.Add(10*day + time.Minute)}
	s := newSweeper(t, store, clock, nil, Options{})

	owner := uuid.New()
	lead, _ := store.Create(ctx, domain.Lead{
		ID: uuid.New(), OwnerUserID: &owner, TerritoryID: "DE",
		Stage: domain.StagePreliminary, Status: domain.StatusRegistered, CreatedAt: t0,
		ProtectionMonths: 6, ReminderDays: 60, GraceDays: 10,
	}, nil)

	if _, err := s.SweepOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	got, _ := store.Get(ctx, lead.ID)
	if got.Status != domain.StatusExpired || got.OwnerUserID != nil || got.PreClaimReleasedAt == nil {
		t.Fatalf("expected released pre-claim, got %+v", got)
	}
	if kinds := noticeKinds(store); len(kinds) != 0 {
		t.Fatalf("pre-claim release sends no notice, got %v", kinds)
	}
}

func TestSweepIsolatesLeadFailures(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore(nil)
	store := &failingStore{MemoryStore: mem}
	clock := &fixedClock{now: t0.Add(61 * day)}
	s := newSweeper(t, store, clock, nil, Options{})

	bad := seedLead(t, store, t0)
	good := seedLead(t, store, t0)
	store.failID = bad.ID

	report, err := s.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Failed != 1 || report.Transitioned != 1 {
		t.Fatalf("expected one failure and one transition, got %+v", report)
	}
	if got, _ := store.Get(ctx, good.ID); got.Status != domain.StatusReminderSent {
		t.Fatalf("expected healthy lead transitioned, got %s", got.Status)
	}
	if got, _ := store.Get(ctx, bad.ID); got.Status != domain.StatusRegistered {
		t.Fatalf("expected failing lead untouched, got %s", got.Status)
	}
}

func TestSweepStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &hookStore{MemoryStore: repository.NewMemoryStore(nil), onCommit: cancel}
	clock := &fixedClock{now: t0.Add(61 * day)}
	s := newSweeper(t, store, clock, nil, Options{})

	for i := 0; i < 3; i++ {
		seedLead(t, store, t0)
	}

	report, err := s.SweepOnce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if report.Transitioned != 1 {
		t.Fatalf("expected the sweep to stop after the first lead, got %+v", report)
	}
}

func TestSweepPagesThroughBatches(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(nil)
	clock := &fixedClock{now: t0.Add(61 * day)}
	s := newSweeper(t, store, clock, nil, Options{BatchSize: 2})

	for i := 0; i < 5; i++ {
		seedLead(t, store, t0)
	}

	report, err := s.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Transitioned != 5 {
		t.Fatalf("expected all five leads across pages, got %+v", report)
	}
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(nil)
	clock := &fixedClock{now: t0.Add(61 * day)}
	s := newSweeper(t, store, clock, &stubLocker{held: true}, Options{})
	lead := seedLead(t, store, t0)

	report, err := s.SweepOnce(ctx)
	if err != nil || !report.Skipped {
		t.Fatalf("expected skipped run, got %+v (%v)", report, err)
	}
	if got, _ := store.Get(ctx, lead.ID); got.Status != domain.StatusRegistered {
		t.Fatalf("expected no transition without the lock")
	}
}

func TestSweepCountsTransitions(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	store := repository.NewMemoryStore(nil)
	clock := &fixedClock{now: t0.Add(61 * day)}
	s := newSweeper(t, store, clock, nil, Options{Meter: provider.Meter("test")})
	seedLead(t, store, t0)
	seedLead(t, store, t0)

	if _, err := s.SweepOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "lead_protection.sweep.transitions" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	if total != 2 {
		t.Fatalf("expected 2 transitions counted, got %d", total)
	}
}

func TestRunSweepsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sent := make(chan struct{}, 1)
	store := &hookStore{MemoryStore: repository.NewMemoryStore(nil), onCommit: func() {
		select {
		case sent <- struct{}{}:
		default:
		}
	}}
	clock := &fixedClock{now: t0.Add(61 * day)}
	s := newSweeper(t, store, clock, nil, Options{Interval: time.Hour})
	seedLead(t, store, t0)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-sent:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected a sweep at start")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop after cancellation")
	}
}

func TestSweepReportsExhaustedConflictAsTransient(t *testing.T) {
	ctx := context.Background()
	store := &conflictStore{MemoryStore: repository.NewMemoryStore(nil)}
	clock := &fixedClock{now: t0.Add(61 * day)}
	s := newSweeper(t, store, clock, nil, Options{CommitRetries: 3})
	lead := seedLead(t, store, t0)

	_, committed, err := s.processLead(ctx, lead.ID, clock.now)
	if committed {
		t.Fatalf("expected nothing committed")
	}
	if !apperr.Is(err, apperr.KindTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected the conflict kept as cause, got %v", err)
	}
	if store.attempts != 3 {
		t.Fatalf("expected three commit attempts, got %d", store.attempts)
	}

	report, err := s.SweepOnce(ctx)
	if err != nil || report.Failed != 1 {
		t.Fatalf("expected the lead counted as failed, got %+v (%v)", report, err)
	}
}

func TestSweepPseudonymizesLongExpiredLeads(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(nil)
	expiredAt := t0.Add(80 * day)
	lead, err := store.Create(ctx, domain.Lead{
		ID:               uuid.New(),
		TerritoryID:      "DE",
		CompanyName:      "Brauhaus Nord",
		Contact:          &domain.ContactPerson{Name: "Anna Schmidt", Email: "anna@example.com", Phone: "+49 30 1234567"},
		Stage:            domain.StageRegistered,
		Status:           domain.StatusExpired,
		CreatedAt:        t0,
		RegisteredAt:     domain.TimePtr(t0),
		ExpiredAt:        domain.TimePtr(expiredAt),
		ProtectionMonths: 6,
		ReminderDays:     60,
		GraceDays:        10,
	}, nil)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	clock := &fixedClock{now: expiredAt.Add(59 * day)}
	s := newSweeper(t, store, clock, nil, Options{})
	if report, _ := s.SweepOnce(ctx); report.Pseudonymized != 0 {
		t.Fatalf("expected contact kept before 60 days, got %+v", report)
	}

	clock.now = expiredAt.Add(60 * day)
	report, err := s.SweepOnce(ctx)
	if err != nil || report.Pseudonymized != 1 || report.Transitioned != 0 {
		t.Fatalf("expected one pseudonymization, got %+v (%v)", report, err)
	}
	got, _ := store.Get(ctx, lead.ID)
	if got.PseudonymizedAt == nil || got.Contact.Phone != "" || got.Contact.Email == "anna@example.com" {
		t.Fatalf("expected contact pseudonymized, got %+v", got.Contact)
	}
	if got.Status != domain.StatusExpired || got.CompanyName != "Brauhaus Nord" {
		t.Fatalf("expected status and company kept")
	}

	clock.now = expiredAt.Add(90 * day)
	if report, _ := s.SweepOnce(ctx); report.Scanned != 0 {
		t.Fatalf("expected pseudonymization applied once, got %+v", report)
	}
}
