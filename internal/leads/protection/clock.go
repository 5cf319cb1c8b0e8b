// Package protection computes protection instants for a lead snapshot.
//
// Every instant is anchor + configured length + paused time. While the clock is
// stopped nothing is due; the time spent stopped is added on resume.
package protection

import (
	"time"

	"lead_protection_backend/internal/leads/domain"
)

const day = 24 * time.Hour

// Input is a consistent snapshot of the clock-relevant lead fields.
type Input struct {
	Now                time.Time
	RegisteredAt       *time.Time
	LastActivityAt     *time.Time
	ClockStoppedAt     *time.Time
	ReminderSentAt     *time.Time
	GracePeriodStartAt *time.Time
	PausedSeconds      int64
	PauseBaseline      int64
	ReminderPauseMark  int64
	GracePauseMark     int64
	ProtectionMonths   int
	ReminderDays       int
	GraceDays          int
}

// Evaluation is the result of Evaluate. Zero instants mean "not applicable".
type Evaluation struct {
	Started            bool
	IsPaused           bool
	ProtectionEndsAt   time.Time
	ReminderDueAt      time.Time
	GraceStartsAt      time.Time
	GraceEndsAt        time.Time
	IsProtectionActive bool
	NeedsReminder      bool
	NeedsGrace         bool
	IsGraceExpired     bool
}

// InputFor snapshots lead at now. The reminder anchor includes extensions.
func InputFor(lead domain.Lead, now time.Time) Input {
	return Input{
		Now:                now,
		RegisteredAt:       lead.RegisteredAt,
		LastActivityAt:     lead.ReminderAnchor(),
		ClockStoppedAt:     lead.ClockStoppedAt,
		ReminderSentAt:     lead.ReminderSentAt,
		GracePeriodStartAt: lead.GracePeriodStartAt,
		PausedSeconds:      lead.PausedSeconds,
		PauseBaseline:      lead.PauseBaseline,
		ReminderPauseMark:  lead.ReminderPauseMark,
		GracePauseMark:     lead.GracePauseMark,
		ProtectionMonths:   lead.ProtectionMonths,
		ReminderDays:       lead.ReminderDays,
		GraceDays:          lead.GraceDays,
	}
}

// EvaluateLead is Evaluate(InputFor(lead, now)).
func EvaluateLead(lead domain.Lead, now time.Time) Evaluation {
	return Evaluate(InputFor(lead, now))
}

// Evaluate computes instants and flags. It never fails.
func Evaluate(in Input) Evaluation {
	if in.RegisteredAt == nil {
		return Evaluation{}
	}

	ev := Evaluation{Started: true, IsPaused: in.ClockStoppedAt != nil}

	// While stopped, the running pause counts too so displayed deadlines hold still.
	paused := in.PausedSeconds
	if ev.IsPaused {
		paused = Resume(*in.ClockStoppedAt, in.Now, in.PausedSeconds)
	}
	pausedFor := func(mark int64) time.Duration {
		if d := paused - mark; d > 0 {
			return time.Duration(d) * time.Second
		}
		return 0
	}

	// Pauses taken before the current registration belong to an earlier claim.
	ev.ProtectionEndsAt = in.RegisteredAt.AddDate(0, in.ProtectionMonths, 0).Add(pausedFor(in.PauseBaseline))

	anchor := *in.RegisteredAt
	if in.LastActivityAt != nil {
		anchor = *in.LastActivityAt
	}
	ev.ReminderDueAt = anchor.Add(days(in.ReminderDays)).Add(pausedFor(in.PauseBaseline))

	if in.ReminderSentAt != nil {
		ev.GraceStartsAt = in.ReminderSentAt.Add(days(in.GraceDays)).Add(pausedFor(in.ReminderPauseMark))
	}
	if in.GracePeriodStartAt != nil {
		ev.GraceEndsAt = in.GracePeriodStartAt.Add(days(in.GraceDays)).Add(pausedFor(in.GracePauseMark))
	}

	if ev.IsPaused {
		ev.IsProtectionActive = true
		return ev
	}

	ev.IsProtectionActive = in.Now.Before(ev.ProtectionEndsAt)
	ev.NeedsReminder = !in.Now.Before(ev.ReminderDueAt)
	ev.NeedsGrace = in.ReminderSentAt != nil && !in.Now.Before(ev.GraceStartsAt)
	ev.IsGraceExpired = in.GracePeriodStartAt != nil && !in.Now.Before(ev.GraceEndsAt)
	return ev
}

// Resume returns the cumulative paused seconds after a stop that began at
// stoppedAt ends at now. The result never decreases.
func Resume(stoppedAt, now time.Time, pausedSeconds int64) int64 {
	if !now.After(stoppedAt) {
		return pausedSeconds
	}
	return pausedSeconds + int64(now.Sub(stoppedAt)/time.Second)
}

// RemainingDays is the number of whole days until protection ends, 0 once past.
func (e Evaluation) RemainingDays(now time.Time) int {
	if !e.Started {
		return 0
	}
	return wholeDaysUntil(now, e.ProtectionEndsAt)
}

// ExpiringSoon reports whether an unpaused, started clock ends within
// warningDays of now.
func (e Evaluation) ExpiringSoon(now time.Time, warningDays int) bool {
	if !e.Started || e.IsPaused || !e.IsProtectionActive {
		return false
	}
	return e.RemainingDays(now) <= warningDays
}

// DaysUntilNextTransition is the number of whole days until the next
// time-driven transition for status, or -1 when none is pending.
func (e Evaluation) DaysUntilNextTransition(now time.Time, status domain.Status) int {
	if !e.Started {
		return -1
	}
	var due time.Time
	switch status {
	case domain.StatusRegistered, domain.StatusActive, domain.StatusExtended:
		due = e.ReminderDueAt
	case domain.StatusReminderSent:
		due = e.GraceStartsAt
	case domain.StatusGracePeriod:
		due = e.GraceEndsAt
	}
	if due.IsZero() {
		return -1
	}
	return wholeDaysUntil(now, due)
}

func days(n int) time.Duration {
	return time.Duration(n) * day
}

func wholeDaysUntil(now, t time.Time) int {
	if !t.After(now) {
		return 0
	}
	return int(t.Sub(now) / day)
}
