package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"lead_protection_backend/internal/leads/adapters/fsm"
	"lead_protection_backend/internal/leads/domain"
	"lead_protection_backend/internal/leads/protection"
)

const day = 24 * time.Hour

var (
	t0      = time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)
	ownerID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	otherID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func newLifecycle() *Lifecycle {
	return New(fsm.New())
}

func registeredLead() domain.Lead {
	return domain.Lead{
		ID:               uuid.New(),
		OwnerUserID:      domain.UUIDPtr(ownerID),
		TerritoryID:      "DE",
		Stage:            domain.StageRegistered,
		Status:           domain.StatusRegistered,
		CreatedAt:        t0,
		RegisteredAt:     domain.TimePtr(t0),
		ProtectionMonths: 6,
		ReminderDays:     60,
		GraceDays:        10,
		Version:          1,
	}
}

func mustEvaluate(t *testing.T, lc *Lifecycle, now time.Time, lead domain.Lead) Result {
	t.Helper()
	res, err := lc.Evaluate(now, lead)
	if err != nil {
		t.Fatalf("evaluate at %s: unexpected error: %v", now, err)
	}
	return res
}

func TestEvaluateReminderGraceExpiryChain(t *testing.T) {
	lc := newLifecycle()
	lead := registeredLead()

	res := mustEvaluate(t, lc, t0.Add(60*day+time.Second), lead)
	if res.Lead.Status != domain.StatusReminderSent || res.Lead.ReminderSentAt == nil {
		t.Fatalf("expected REMINDER_SENT with stamp, got %s", res.Lead.Status)
	}
	if len(res.Notices) != 1 || res.Notices[0].Kind != domain.NoticeReminder || res.Notices[0].OwnerID != ownerID {
		t.Fatalf("expected one reminder notice to owner, got %+v", res.Notices)
	}

	res = mustEvaluate(t, lc, t0.Add(70*day+time.Second), res.Lead)
	if res.Lead.Status != domain.StatusGracePeriod || res.Lead.GracePeriodStartAt == nil {
		t.Fatalf("expected GRACE_PERIOD, got %s", res.Lead.Status)
	}

	res = mustEvaluate(t, lc, t0.Add(80*day+time.Second), res.Lead)
	if res.Lead.Status != domain.StatusExpired || res.Lead.ExpiredAt == nil {
		t.Fatalf("expected EXPIRED, got %s", res.Lead.Status)
	}
	if res.Lead.OwnerUserID != nil {
		t.Fatalf("expected owner cleared on expiry")
	}
	if res.Lead.ReminderSentAt == nil || res.Lead.GracePeriodStartAt == nil {
		t.Fatalf("expected earlier stamps retained on expiry")
	}
	if len(res.Notices) != 1 || res.Notices[0].Kind != domain.NoticeExpired || res.Notices[0].OwnerID != ownerID {
		t.Fatalf("expected expiry notice to former owner, got %+v", res.Notices)
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	lc := newLifecycle()
	now := t0.Add(60*day + time.Second)

	first := mustEvaluate(t, lc, now, registeredLead())
	second := mustEvaluate(t, lc, now, first.Lead)

	if second.Changed || len(second.Notices) != 0 || len(second.Activities) != 0 {
		t.Fatalf("expected no change on re-evaluation, got %+v", second)
	}
}

func TestEvaluateNothingDueBeforeReminder(t *testing.T) {
	res := mustEvaluate(t, newLifecycle(), t0.Add(59*day), registeredLead())
	if res.Changed {
		t.Fatalf("expected no change before reminder is due")
	}
}

func TestEvaluatePausedScenario(t *testing.T) {
	lc := newLifecycle()
	lead := registeredLead()

	stopped, err := lc.StopClock(t0.Add(55*day), lead, otherID, "customer on holiday")
	if err != nil {
		t.Fatalf("stop clock: %v", err)
	}
	lead = stopped.Lead

	if res := mustEvaluate(t, lc, t0.Add(61*day), lead); res.Changed {
		t.Fatalf("expected no transition while paused")
	}

	resumed, err := lc.ResumeClock(t0.Add(75*day), lead, otherID)
	if err != nil {
		t.Fatalf("resume clock: %v", err)
	}
	lead = resumed.Lead
	if lead.PausedSeconds != int64((20 * day).Seconds()) {
		t.Fatalf("expected 20 paused days, got %d seconds", lead.PausedSeconds)
	}

	if res := mustEvaluate(t, lc, t0.Add(76*day), lead); res.Changed {
		t.Fatalf("expected no transition at 56 effective days")
	}

	res := mustEvaluate(t, lc, t0.Add(81*day), lead)
	if res.Lead.Status != domain.StatusReminderSent {
		t.Fatalf("expected REMINDER_SENT at 61 effective days, got %s", res.Lead.Status)
	}
}

func TestRecordActivityResetsTimer(t *testing.T) {
	lc := newLifecycle()
	reminded := mustEvaluate(t, lc, t0.Add(60*day+time.Second), registeredLead()).Lead

	at := t0.Add(62 * day)
	res, err := lc.RecordActivity(at, reminded, domain.Activity{Type: domain.ActivityCall, OccurredAt: at, ActorID: ownerID})
	if err != nil {
		t.Fatalf("record activity: %v", err)
	}
	if res.Lead.Status != domain.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", res.Lead.Status)
	}
	if res.Lead.ReminderSentAt != nil || res.Lead.GracePeriodStartAt != nil {
		t.Fatalf("expected reminder and grace stamps cleared")
	}
	if res.Lead.LastActivityAt == nil || !res.Lead.LastActivityAt.Equal(at) {
		t.Fatalf("expected lastActivityAt %s, got %v", at, res.Lead.LastActivityAt)
	}

	// The next reminder is measured from the activity.
	if mustEvaluate(t, lc, t0.Add(121*day), res.Lead).Changed {
		t.Fatalf("expected no reminder 59 days after activity")
	}
	if !mustEvaluate(t, lc, t0.Add(122*day+time.Second), res.Lead).Changed {
		t.Fatalf("expected reminder 60 days after activity")
	}
}

func TestRecordNoteDoesNotChangeLead(t *testing.T) {
	res, err := newLifecycle().RecordActivity(t0.Add(time.Hour), registeredLead(), domain.Activity{Type: domain.ActivityNote, ActorID: ownerID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Changed {
		t.Fatalf("expected NOTE to leave the lead unchanged")
	}
	if len(res.Activities) != 1 {
		t.Fatalf("expected the note itself to be appended")
	}
}

func TestRecordActivityOnExpiredLeadKeepsStatus(t *testing.T) {
	lead := registeredLead()
	lead.Status = domain.StatusExpired
	lead.OwnerUserID = nil

	res, err := newLifecycle().RecordActivity(t0, lead, domain.Activity{Type: domain.ActivityMeeting, ActorID: otherID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Changed || res.Lead.Status != domain.StatusExpired {
		t.Fatalf("expected expired lead to stay expired")
	}
}

func TestFirstContactRegistersPreClaimLead(t *testing.T) {
	lead := registeredLead()
	lead.Stage = domain.StagePreliminary
	lead.RegisteredAt = nil

	at := t0.Add(2 * day)
	res, err := newLifecycle().RecordActivity(at, lead, domain.Activity{Type: domain.ActivityFirstContactDocumented, OccurredAt: at, ActorID: ownerID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Lead.Stage != domain.StageRegistered || res.Lead.RegisteredAt == nil || !res.Lead.RegisteredAt.Equal(at) {
		t.Fatalf("expected registration at %s, got stage %s registeredAt %v", at, res.Lead.Stage, res.Lead.RegisteredAt)
	}
}

func TestBackdatedFirstContactRegistersAtRecordTime(t *testing.T) {
	lc := newLifecycle()
	lead := registeredLead()
	lead.Stage = domain.StagePreliminary
	lead.RegisteredAt = nil

	now := t0.Add(day)
	backdated := t0.Add(-300 * day)
	res, err := lc.RecordActivity(now, lead, domain.Activity{Type: domain.ActivityCall, OccurredAt: backdated, ActorID: ownerID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Lead.RegisteredAt == nil || !res.Lead.RegisteredAt.Equal(now) {
		t.Fatalf("expected registration at %s, got %v", now, res.Lead.RegisteredAt)
	}
	if res.Lead.LastActivityAt != nil {
		t.Fatalf("expected an activity older than the lead to leave lastActivityAt unset, got %v", res.Lead.LastActivityAt)
	}
	if len(res.Activities) == 0 || !res.Activities[0].OccurredAt.Equal(backdated) {
		t.Fatalf("expected the activity recorded with its reported time")
	}

	if got := mustEvaluate(t, lc, t0.Add(2*day), res.Lead); got.Changed {
		t.Fatalf("expected no reminder a day after creation, got %s", got.Lead.Status)
	}
	if got := mustEvaluate(t, lc, now.Add(60*day+time.Second), res.Lead); got.Lead.Status != domain.StatusReminderSent {
		t.Fatalf("expected reminder 60 days after registration, got %s", got.Lead.Status)
	}
}

func TestBackdatedActivityDoesNotResetReminder(t *testing.T) {
	lc := newLifecycle()
	lead := registeredLead()
	lead.LastActivityAt = domain.TimePtr(t0.Add(10 * day))
	reminded := mustEvaluate(t, lc, t0.Add(70*day+time.Second), lead).Lead
	if reminded.Status != domain.StatusReminderSent {
		t.Fatalf("setup: expected REMINDER_SENT, got %s", reminded.Status)
	}

	now := t0.Add(71 * day)
	res, err := lc.RecordActivity(now, reminded, domain.Activity{Type: domain.ActivityMeeting, OccurredAt: t0.Add(5 * day), ActorID: ownerID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Changed || res.Lead.Status != domain.StatusReminderSent || res.Lead.ReminderSentAt == nil {
		t.Fatalf("expected stale activity to leave the reminder standing, got %s changed=%v", res.Lead.Status, res.Changed)
	}
	if !res.Lead.LastActivityAt.Equal(t0.Add(10 * day)) {
		t.Fatalf("expected lastActivityAt unchanged, got %v", res.Lead.LastActivityAt)
	}
	if again := mustEvaluate(t, lc, now, res.Lead); again.Changed || len(again.Notices) != 0 {
		t.Fatalf("expected no second reminder for the same window")
	}
}

func TestBackdatedActivityNewerThanLastMovesClock(t *testing.T) {
	lc := newLifecycle()
	lead := registeredLead()
	lead.LastActivityAt = domain.TimePtr(t0.Add(10 * day))

	occurred := t0.Add(20 * day)
	res, err := lc.RecordActivity(t0.Add(30*day), lead, domain.Activity{Type: domain.ActivityCall, OccurredAt: occurred, ActorID: ownerID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Lead.LastActivityAt == nil || !res.Lead.LastActivityAt.Equal(occurred) || res.Lead.Status != domain.StatusActive {
		t.Fatalf("expected lastActivityAt %s and ACTIVE, got %v %s", occurred, res.Lead.LastActivityAt, res.Lead.Status)
	}
}

func TestAttachContactRegistersPreClaimLead(t *testing.T) {
	lead := registeredLead()
	lead.Stage = domain.StagePreliminary
	lead.RegisteredAt = nil

	res, err := newLifecycle().AttachContact(t0.Add(day), lead, ownerID, domain.ContactPerson{Name: "Anna Schmidt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Lead.Stage != domain.StageRegistered || res.Lead.RegisteredAt == nil {
		t.Fatalf("expected contact to register the lead")
	}
}

func TestPreClaimReleasedAfterTenDays(t *testing.T) {
	lc := newLifecycle()
	lead := registeredLead()
	lead.Stage = domain.StagePreliminary
	lead.RegisteredAt = nil

	if mustEvaluate(t, lc, t0.Add(10*day-time.Second), lead).Changed {
		t.Fatalf("expected pre-claim to hold for 10 days")
	}

	res := mustEvaluate(t, lc, t0.Add(10*day), lead)
	if res.Lead.PreClaimReleasedAt == nil || res.Lead.OwnerUserID != nil {
		t.Fatalf("expected pre-claim released and owner cleared")
	}
	if res.Audit != nil || len(res.Notices) != 0 {
		t.Fatalf("expected no audit or notice for pre-claim release")
	}
	if mustEvaluate(t, lc, t0.Add(11*day), res.Lead).Changed {
		t.Fatalf("expected release to be applied once")
	}
}

func TestAdvanceStageRejectsSkipAndRegress(t *testing.T) {
	lc := newLifecycle()
	pre := registeredLead()
	pre.Stage = domain.StagePreliminary
	pre.RegisteredAt = nil

	if _, err := lc.AdvanceStage(t0, pre, ownerID, domain.StageQualified); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for skip, got %v", err)
	}
	if _, err := lc.AdvanceStage(t0, registeredLead(), ownerID, domain.StagePreliminary); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for regress, got %v", err)
	}

	res, err := lc.AdvanceStage(t0, registeredLead(), ownerID, domain.StageRegistered)
	if err != nil || res.Changed {
		t.Fatalf("expected same-stage no-op, got changed=%v err=%v", res.Changed, err)
	}
	res, err = lc.AdvanceStage(t0, registeredLead(), ownerID, domain.StageQualified)
	if err != nil || res.Lead.Stage != domain.StageQualified {
		t.Fatalf("expected QUALIFIED, got %s (%v)", res.Lead.Stage, err)
	}
}

func TestStopClockRules(t *testing.T) {
	lc := newLifecycle()
	stopped, err := lc.StopClock(t0, registeredLead(), otherID, "trade fair")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stopped.Lead.StopApprovedBy == nil || *stopped.Lead.StopApprovedBy != otherID || stopped.Lead.StopReason != "trade fair" {
		t.Fatalf("expected stop approver and reason recorded")
	}
	if _, err := lc.StopClock(t0, stopped.Lead, otherID, "again"); !errors.Is(err, domain.ErrClockAlreadyStopped) {
		t.Fatalf("expected already stopped, got %v", err)
	}
	if _, err := lc.ResumeClock(t0, registeredLead(), otherID); !errors.Is(err, domain.ErrClockNotStopped) {
		t.Fatalf("expected not stopped, got %v", err)
	}

	expired := registeredLead()
	expired.Status = domain.StatusExpired
	if _, err := lc.StopClock(t0, expired, otherID, "late"); !errors.Is(err, domain.ErrLeadExpired) {
		t.Fatalf("expected expired rejection, got %v", err)
	}
}

func TestExtendProducesAuditAndRestartsReminder(t *testing.T) {
	lc := newLifecycle()
	reminded := mustEvaluate(t, lc, t0.Add(60*day+time.Second), registeredLead()).Lead

	at := t0.Add(65 * day)
	res, err := lc.Extend(at, reminded, otherID, 3, "strategic account")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Lead.Status != domain.StatusExtended || res.Lead.ProtectionMonths != 9 {
		t.Fatalf("expected EXTENDED with 9 months, got %s/%d", res.Lead.Status, res.Lead.ProtectionMonths)
	}
	if res.Audit == nil || res.Audit.PriorStatus != domain.StatusReminderSent || res.Audit.NewStatus != domain.StatusExtended {
		t.Fatalf("expected audit record for extension, got %+v", res.Audit)
	}
	if res.Lead.ReminderSentAt != nil {
		t.Fatalf("expected reminder stamp cleared")
	}
	if mustEvaluate(t, lc, at.Add(59*day), res.Lead).Changed {
		t.Fatalf("expected reminder window to restart at extension")
	}

	if _, err := lc.Extend(at, registeredLead(), otherID, 0, "nothing"); !errors.Is(err, ErrInvalidExtension) {
		t.Fatalf("expected invalid extension, got %v", err)
	}
}

func TestReassignExpiredLeadReopensProtection(t *testing.T) {
	lc := newLifecycle()
	lead := registeredLead()
	lead.Status = domain.StatusExpired
	lead.OwnerUserID = nil
	lead.ExpiredAt = domain.TimePtr(t0.Add(80 * day))
	lead.CollaboratorUserIDs = []uuid.UUID{otherID}

	at := t0.Add(90 * day)
	res, err := lc.Reassign(at, lead, ownerID, otherID, "territory handover")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Lead.Status != domain.StatusRegistered || !res.Lead.RegisteredAt.Equal(at) || res.Lead.ExpiredAt != nil {
		t.Fatalf("expected reopened registration, got %+v", res.Lead)
	}
	if !res.Lead.IsOwner(otherID) || res.Lead.IsCollaborator(otherID) {
		t.Fatalf("expected new owner removed from collaborators")
	}
	if res.Audit == nil || res.Audit.PriorOwner != nil || *res.Audit.NewOwner != otherID {
		t.Fatalf("expected audit with prior nil owner, got %+v", res.Audit)
	}
}

func TestReopenedLeadIgnoresEarlierPauses(t *testing.T) {
	lc := newLifecycle()
	lead := registeredLead()
	lead.Status = domain.StatusExpired
	lead.OwnerUserID = nil
	lead.ExpiredAt = domain.TimePtr(t0.Add(100 * day))
	lead.PausedSeconds = int64((20 * day).Seconds())
	lead.ReminderPauseMark = int64((5 * day).Seconds())
	lead.GracePauseMark = int64((5 * day).Seconds())

	reopenedAt := t0.Add(200 * day)
	res, err := lc.Reassign(reopenedAt, lead, ownerID, otherID, "new rep")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if res.Lead.PauseBaseline != lead.PausedSeconds {
		t.Fatalf("expected pause baseline %d, got %d", lead.PausedSeconds, res.Lead.PauseBaseline)
	}

	if got := mustEvaluate(t, lc, reopenedAt.Add(59*day), res.Lead); got.Changed {
		t.Fatalf("expected no reminder 59 days into the new window")
	}
	reminded := mustEvaluate(t, lc, t0.Add(261*day), res.Lead)
	if reminded.Lead.Status != domain.StatusReminderSent {
		t.Fatalf("expected REMINDER_SENT 61 days into the new window, got %s", reminded.Lead.Status)
	}
	if ends := protection.EvaluateLead(res.Lead, reopenedAt).ProtectionEndsAt; !ends.Equal(reopenedAt.AddDate(0, 6, 0)) {
		t.Fatalf("expected protection to end six months after the reopen, got %s", ends)
	}

	// A pause in the new window still counts.
	stopped, _ := lc.StopClock(reopenedAt.Add(10*day), res.Lead, otherID, "holiday")
	resumed, _ := lc.ResumeClock(reopenedAt.Add(15*day), stopped.Lead, otherID)
	if got := mustEvaluate(t, lc, reopenedAt.Add(61*day), resumed.Lead); got.Changed {
		t.Fatalf("expected the new five day pause to push the reminder out")
	}
	if got := mustEvaluate(t, lc, reopenedAt.Add(65*day+time.Second), resumed.Lead); got.Lead.Status != domain.StatusReminderSent {
		t.Fatalf("expected reminder at 65 days, got %s", got.Lead.Status)
	}
}

func TestPseudonymizeAfterSixtyDaysExpired(t *testing.T) {
	lc := newLifecycle()
	expiredAt := t0.Add(80 * day)
	lead := registeredLead()
	lead.Status = domain.StatusExpired
	lead.OwnerUserID = nil
	lead.ExpiredAt = domain.TimePtr(expiredAt)
	lead.Contact = &domain.ContactPerson{Name: "Anna Schmidt", Email: " Anna@Example.com", Phone: "+49 30 1234567"}

	early := mustEvaluatePseudonymize(t, lc, expiredAt.Add(60*day-time.Second), lead)
	if early.Changed || early.Lead.Contact.Email != lead.Contact.Email {
		t.Fatalf("expected contact kept before 60 days")
	}

	now := expiredAt.Add(60 * day)
	res := mustEvaluatePseudonymize(t, lc, now, lead)
	if !res.Changed || res.Lead.PseudonymizedAt == nil || !res.Lead.PseudonymizedAt.Equal(now) {
		t.Fatalf("expected pseudonymized at %s, got %+v", now, res.Lead.PseudonymizedAt)
	}
	c := res.Lead.Contact
	if len(c.Email) != 64 || c.Email == lead.Contact.Email {
		t.Fatalf("expected hex digest email, got %q", c.Email)
	}
	if c.Email != hashEmail("anna@example.com") {
		t.Fatalf("expected digest of the normalized email, got %q", c.Email)
	}
	if c.Phone != "" || c.Name != domain.AnonymizedContactName {
		t.Fatalf("expected phone cleared and name anonymized, got %+v", c)
	}
	if res.StatusChanged() || res.Lead.Status != domain.StatusExpired {
		t.Fatalf("expected status untouched")
	}
	if lead.Contact.Phone == "" {
		t.Fatalf("expected input snapshot unchanged")
	}

	again := mustEvaluatePseudonymize(t, lc, now.Add(day), res.Lead)
	if again.Changed || again.Lead.Contact.Email != c.Email {
		t.Fatalf("expected pseudonymization applied once")
	}
}

func TestPseudonymizeSkipsLiveLeads(t *testing.T) {
	lead := registeredLead()
	lead.Contact = &domain.ContactPerson{Name: "Anna Schmidt", Email: "anna@example.com"}
	res := mustEvaluatePseudonymize(t, newLifecycle(), t0.Add(400*day), lead)
	if res.Changed {
		t.Fatalf("expected a live lead to keep its contact")
	}
}

func mustEvaluatePseudonymize(t *testing.T, lc *Lifecycle, now time.Time, lead domain.Lead) Result {
	t.Helper()
	res, err := lc.Pseudonymize(now, lead)
	if err != nil {
		t.Fatalf("pseudonymize at %s: %v", now, err)
	}
	return res
}

func TestReleaseClearsOwnerAndPause(t *testing.T) {
	lc := newLifecycle()
	stopped, err := lc.StopClock(t0.Add(day), registeredLead(), otherID, "pause")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}

	res, err := lc.Release(t0.Add(3*day), stopped.Lead, otherID, "duplicate prospect")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if res.Lead.Status != domain.StatusExpired || res.Lead.OwnerUserID != nil || res.Lead.IsPaused() {
		t.Fatalf("expected released lead, got %+v", res.Lead)
	}
	if res.Lead.PausedSeconds != int64((2 * day).Seconds()) {
		t.Fatalf("expected pause accounted on release, got %d", res.Lead.PausedSeconds)
	}
	if res.Audit == nil {
		t.Fatalf("expected audit for release")
	}
}

func TestCollaborators(t *testing.T) {
	lc := newLifecycle()
	if _, err := lc.AddCollaborator(registeredLead(), ownerID); !errors.Is(err, ErrOwnerCollaborator) {
		t.Fatalf("expected owner rejection, got %v", err)
	}
	added, err := lc.AddCollaborator(registeredLead(), otherID)
	if err != nil || !added.Lead.IsCollaborator(otherID) {
		t.Fatalf("expected collaborator added (%v)", err)
	}
	again, _ := lc.AddCollaborator(added.Lead, otherID)
	if again.Changed {
		t.Fatalf("expected idempotent add")
	}
	removed, _ := lc.RemoveCollaborator(added.Lead, otherID)
	if removed.Lead.IsCollaborator(otherID) {
		t.Fatalf("expected collaborator removed")
	}
}
