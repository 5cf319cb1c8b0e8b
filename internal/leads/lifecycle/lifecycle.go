// Package lifecycle decides lead state changes. Every function takes a lead
// snapshot and returns the next snapshot plus the side effects that must be
// committed with it; nothing here touches storage.
package lifecycle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"lead_protection_backend/internal/leads/domain"
	"lead_protection_backend/internal/leads/protection"
)

var (
	// ErrInvalidExtension rejects an extension of less than one month.
	ErrInvalidExtension = errors.New("extension must add at least one month")
	// ErrInvalidOwner rejects a reassignment without a target user.
	ErrInvalidOwner = errors.New("new owner is required")
	// ErrOwnerCollaborator rejects adding the owner to the collaborator set.
	ErrOwnerCollaborator = errors.New("owner cannot be a collaborator")
)

// Result is the outcome of one decision.
type Result struct {
	Lead    domain.Lead
	Changed bool
	From    domain.Status
	To      domain.Status
	Trigger string
	// Notices go out only after the commit succeeded.
	Notices []domain.Notice
	// Audit, when set, must be appended in the same commit.
	Audit *domain.AuditRecord
	// Activities are appended in the same commit.
	Activities []domain.Activity
}

// StatusChanged reports whether the status moved.
func (r Result) StatusChanged() bool {
	return r.From != r.To
}

// Lifecycle applies decisions validated by a TransitionValidator.
type Lifecycle struct {
	validator domain.TransitionValidator
}

// New creates a Lifecycle.
func New(validator domain.TransitionValidator) *Lifecycle {
	return &Lifecycle{validator: validator}
}

func begin(lead domain.Lead, trigger string) Result {
	return Result{
		Lead:    lead.Clone(),
		From:    lead.Status,
		To:      lead.Status,
		Trigger: trigger,
	}
}

func (l *Lifecycle) move(res *Result, event domain.Event) error {
	next, err := l.validator.Apply(res.Lead.Status, event)
	if err != nil {
		return err
	}
	res.Lead.Status = next
	res.To = next
	res.Changed = true
	return nil
}

// Evaluate applies at most one time-driven transition. A paused or deleted lead
// never changes, and a transition whose timestamp is already stamped is not
// applied again.
func (l *Lifecycle) Evaluate(now time.Time, lead domain.Lead) (Result, error) {
	res := begin(lead, "sweep")
	if lead.IsDeleted() || lead.IsPaused() {
		return res, nil
	}

	if lead.IsPreClaim() {
		return l.evaluatePreClaim(now, res)
	}

	ev := protection.EvaluateLead(lead, now)
	next := &res.Lead
	graceLength := time.Duration(lead.GraceDays) * 24 * time.Hour

	switch lead.Status {
	case domain.StatusRegistered, domain.StatusActive, domain.StatusExtended:
		if !ev.NeedsReminder || lead.ReminderSentAt != nil {
			return res, nil
		}
		if err := l.move(&res, domain.EventRemind); err != nil {
			return res, err
		}
		next.ReminderSentAt = domain.TimePtr(now)
		next.ReminderPauseMark = lead.PausedSeconds
		res.Trigger = "reminder_due"
		res.Activities = append(res.Activities, domain.NewSystemActivity(lead.ID, uuid.Nil, domain.ActivityReminderSent, now, ""))
		res.addNotice(lead.OwnerUserID, domain.NoticeReminder, now, now.Add(graceLength))

	case domain.StatusReminderSent:
		if !ev.NeedsGrace || lead.GracePeriodStartAt != nil {
			return res, nil
		}
		if err := l.move(&res, domain.EventStartGrace); err != nil {
			return res, err
		}
		next.GracePeriodStartAt = domain.TimePtr(now)
		next.GracePauseMark = lead.PausedSeconds
		res.Trigger = "grace_due"
		res.Activities = append(res.Activities, statusActivity(lead.ID, uuid.Nil, now, res))
		res.addNotice(lead.OwnerUserID, domain.NoticeGraceStarted, now, now.Add(graceLength))

	case domain.StatusGracePeriod:
		if !ev.IsGraceExpired || lead.ExpiredAt != nil {
			return res, nil
		}
		if err := l.move(&res, domain.EventExpire); err != nil {
			return res, err
		}
		next.ExpiredAt = domain.TimePtr(now)
		next.OwnerUserID = nil
		res.Trigger = "grace_elapsed"
		res.Activities = append(res.Activities, statusActivity(lead.ID, uuid.Nil, now, res))
		res.addNotice(lead.OwnerUserID, domain.NoticeExpired, now, time.Time{})
	}

	return res, nil
}

func (l *Lifecycle) evaluatePreClaim(now time.Time, res Result) (Result, error) {
	lead := res.Lead
	if lead.PreClaimReleasedAt != nil || lead.Status.IsTerminal() {
		return res, nil
	}
	if now.Before(domain.PreClaimDeadline(lead.CreatedAt)) {
		return res, nil
	}
	if err := l.move(&res, domain.EventRelease); err != nil {
		return res, err
	}
	res.Lead.PreClaimReleasedAt = domain.TimePtr(now)
	res.Lead.ExpiredAt = domain.TimePtr(now)
	res.Lead.OwnerUserID = nil
	res.Trigger = "pre_claim_expired"
	return res, nil
}

// RecordActivity appends activity and applies its effects on the lead. The
// activity keeps its reported time in history, but only one newer than
// everything the lead already knows moves the clock.
func (l *Lifecycle) RecordActivity(now time.Time, lead domain.Lead, activity domain.Activity) (Result, error) {
	res := begin(lead, "activity")
	if lead.IsDeleted() {
		return res, domain.ErrLeadDeleted
	}
	if activity.OccurredAt.IsZero() || activity.OccurredAt.After(now) {
		activity.OccurredAt = now
	}
	activity.LeadID = lead.ID
	res.Activities = append(res.Activities, activity)

	// An expired claim keeps its history but only a reassignment reopens it.
	if lead.Status.IsTerminal() {
		return res, nil
	}

	next := &res.Lead
	moved := activity.Type.IsMeaningful() && activity.OccurredAt.After(activityFloor(lead))
	if moved {
		next.LastActivityAt = domain.TimePtr(activity.OccurredAt)
		res.Changed = true
	}

	if next.IsPreClaim() && activity.Type.DocumentsFirstContact() {
		if err := l.register(&res, now, activity.ActorID); err != nil {
			return res, err
		}
		res.Trigger = "first_contact"
	}

	if moved && activity.Type.ResetsTimer() && !next.IsPreClaim() {
		if err := l.move(&res, domain.EventActivity); err != nil {
			return res, err
		}
		next.ReminderSentAt = nil
		next.GracePeriodStartAt = nil
	}
	return res, nil
}

// activityFloor is the latest instant the lead already accounts for.
func activityFloor(lead domain.Lead) time.Time {
	floor := lead.CreatedAt
	for _, t := range []*time.Time{lead.RegisteredAt, lead.LastActivityAt, lead.ExtendedAt} {
		if t != nil && t.After(floor) {
			floor = *t
		}
	}
	return floor
}

// AttachContact sets the contact person; on a PRELIMINARY lead it starts protection.
func (l *Lifecycle) AttachContact(now time.Time, lead domain.Lead, actor uuid.UUID, contact domain.ContactPerson) (Result, error) {
	res := begin(lead, "contact_attached")
	if lead.IsDeleted() {
		return res, domain.ErrLeadDeleted
	}
	res.Lead.Contact = &contact
	res.Changed = true

	if res.Lead.IsPreClaim() && !lead.Status.IsTerminal() {
		if err := l.register(&res, now, actor); err != nil {
			return res, err
		}
	}
	return res, nil
}

// AdvanceStage moves the progressive stage forward by at most one.
func (l *Lifecycle) AdvanceStage(now time.Time, lead domain.Lead, actor uuid.UUID, target domain.Stage) (Result, error) {
	res := begin(lead, "stage_advanced")
	if lead.IsDeleted() {
		return res, domain.ErrLeadDeleted
	}
	if !lead.Stage.CanTransitionTo(target) {
		return res, domain.ErrStageTransition
	}
	if lead.Stage == target {
		return res, nil
	}
	if lead.Status.IsTerminal() {
		return res, domain.ErrLeadExpired
	}

	if lead.Stage == domain.StagePreliminary {
		err := l.register(&res, now, actor)
		return res, err
	}
	res.Lead.Stage = target
	res.Changed = true
	res.Activities = append(res.Activities, stageActivity(lead, actor, target, now))
	return res, nil
}

// register moves a PRELIMINARY lead to REGISTERED and starts the protection clock.
func (l *Lifecycle) register(res *Result, at time.Time, actor uuid.UUID) error {
	before := res.Lead
	if !before.Stage.CanTransitionTo(domain.StageRegistered) {
		return domain.ErrStageTransition
	}
	res.Lead.Stage = domain.StageRegistered
	res.Lead.RegisteredAt = domain.TimePtr(at)
	res.Changed = true
	res.Activities = append(res.Activities, stageActivity(before, actor, domain.StageRegistered, at))
	return nil
}

// StopClock sets the stop-clock overlay.
func (l *Lifecycle) StopClock(now time.Time, lead domain.Lead, actor uuid.UUID, reason string) (Result, error) {
	res := begin(lead, "clock_stopped")
	if err := requireLiveClaim(lead); err != nil {
		return res, err
	}
	if lead.IsPaused() {
		return res, domain.ErrClockAlreadyStopped
	}
	res.Lead.ClockStoppedAt = domain.TimePtr(now)
	res.Lead.StopReason = reason
	res.Lead.StopApprovedBy = domain.UUIDPtr(actor)
	res.Changed = true
	res.Activities = append(res.Activities, domain.NewSystemActivity(lead.ID, actor, domain.ActivityClockStopped, now, reason))
	return res, nil
}

// ResumeClock clears the overlay and adds the stopped time to the paused total
// in the same snapshot.
func (l *Lifecycle) ResumeClock(now time.Time, lead domain.Lead, actor uuid.UUID) (Result, error) {
	res := begin(lead, "clock_resumed")
	if lead.IsDeleted() {
		return res, domain.ErrLeadDeleted
	}
	if !lead.IsPaused() {
		return res, domain.ErrClockNotStopped
	}
	resumeInto(&res.Lead, now)
	res.Changed = true
	res.Activities = append(res.Activities, domain.NewSystemActivity(lead.ID, actor, domain.ActivityClockResumed, now, ""))
	return res, nil
}

// Extend lengthens protection, restarts the reminder window from now and
// always produces an audit record.
func (l *Lifecycle) Extend(now time.Time, lead domain.Lead, actor uuid.UUID, months int, reason string) (Result, error) {
	res := begin(lead, "extended")
	if months < 1 {
		return res, ErrInvalidExtension
	}
	if err := requireLiveClaim(lead); err != nil {
		return res, err
	}
	if err := l.move(&res, domain.EventExtend); err != nil {
		return res, err
	}
	res.Lead.ProtectionMonths += months
	res.Lead.ExtendedAt = domain.TimePtr(now)
	res.Lead.ReminderSentAt = nil
	res.Lead.GracePeriodStartAt = nil
	res.Audit = audit(actor, domain.ActionExtend, lead, res.Lead, reason, now)
	res.Activities = append(res.Activities, statusActivity(lead.ID, actor, now, res))
	return res, nil
}

// Reassign hands the lead to newOwner. Reassigning an expired lead reopens
// protection for the new owner from now.
func (l *Lifecycle) Reassign(now time.Time, lead domain.Lead, actor, newOwner uuid.UUID, reason string) (Result, error) {
	res := begin(lead, "reassigned")
	if newOwner == uuid.Nil {
		return res, ErrInvalidOwner
	}
	if lead.IsDeleted() {
		return res, domain.ErrLeadDeleted
	}
	if lead.IsOwner(newOwner) && !lead.Status.IsTerminal() {
		return res, nil
	}

	next := &res.Lead
	if lead.Status.IsTerminal() {
		if err := l.move(&res, domain.EventReopen); err != nil {
			return res, err
		}
		if next.Stage == domain.StagePreliminary {
			next.Stage = domain.StageRegistered
		}
		next.RegisteredAt = domain.TimePtr(now)
		next.ReminderSentAt = nil
		next.GracePeriodStartAt = nil
		next.ExpiredAt = nil
		next.ExtendedAt = nil
		next.PreClaimReleasedAt = nil
		next.PseudonymizedAt = nil
		// The new window starts without the pauses of earlier owners.
		next.PauseBaseline = next.PausedSeconds
		next.ReminderPauseMark = next.PausedSeconds
		next.GracePauseMark = next.PausedSeconds
		res.Trigger = "reopened"
	}
	next.OwnerUserID = domain.UUIDPtr(newOwner)
	next.CollaboratorUserIDs = without(next.CollaboratorUserIDs, newOwner)
	res.Changed = true
	res.Audit = audit(actor, domain.ActionReassign, lead, *next, reason, now)
	res.Activities = append(res.Activities, domain.NewSystemActivity(lead.ID, actor, domain.ActivityLeadAssigned, now, newOwner.String()))
	return res, nil
}

// Release ends protection early and frees the lead for reassignment.
func (l *Lifecycle) Release(now time.Time, lead domain.Lead, actor uuid.UUID, reason string) (Result, error) {
	res := begin(lead, "released")
	if lead.IsDeleted() {
		return res, domain.ErrLeadDeleted
	}
	if lead.Status.IsTerminal() {
		return res, domain.ErrLeadExpired
	}
	if err := l.move(&res, domain.EventRelease); err != nil {
		return res, err
	}
	if res.Lead.IsPaused() {
		resumeInto(&res.Lead, now)
	}
	res.Lead.ExpiredAt = domain.TimePtr(now)
	res.Lead.OwnerUserID = nil
	res.Audit = audit(actor, domain.ActionRelease, lead, res.Lead, reason, now)
	res.Activities = append(res.Activities, statusActivity(lead.ID, actor, now, res))
	return res, nil
}

// Pseudonymize replaces the contact data of a lead that has been expired for
// PseudonymizeAfter: the email becomes its SHA-256 digest, the phone is
// cleared and the name is anonymized. Status and history stay. A lead that is
// not due, or already pseudonymized, is returned unchanged.
func (l *Lifecycle) Pseudonymize(now time.Time, lead domain.Lead) (Result, error) {
	res := begin(lead, "pseudonymized")
	if !lead.IsPseudonymizable(now) {
		return res, nil
	}
	if c := res.Lead.Contact; c != nil {
		c.Name = domain.AnonymizedContactName
		c.Email = hashEmail(c.Email)
		c.Phone = ""
	}
	res.Lead.PseudonymizedAt = domain.TimePtr(now)
	res.Changed = true
	return res, nil
}

func hashEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}

// Delete soft deletes the lead. History stays.
func (l *Lifecycle) Delete(now time.Time, lead domain.Lead) (Result, error) {
	res := begin(lead, "deleted")
	if lead.IsDeleted() {
		return res, domain.ErrLeadDeleted
	}
	res.Lead.DeletedAt = domain.TimePtr(now)
	res.Changed = true
	return res, nil
}

// AddCollaborator adds userID to the collaborator set.
func (l *Lifecycle) AddCollaborator(lead domain.Lead, userID uuid.UUID) (Result, error) {
	res := begin(lead, "collaborator_added")
	if lead.IsDeleted() {
		return res, domain.ErrLeadDeleted
	}
	if lead.IsOwner(userID) {
		return res, ErrOwnerCollaborator
	}
	if lead.IsCollaborator(userID) {
		return res, nil
	}
	res.Lead.CollaboratorUserIDs = append(res.Lead.CollaboratorUserIDs, userID)
	res.Changed = true
	return res, nil
}

// RemoveCollaborator removes userID from the collaborator set.
func (l *Lifecycle) RemoveCollaborator(lead domain.Lead, userID uuid.UUID) (Result, error) {
	res := begin(lead, "collaborator_removed")
	if lead.IsDeleted() {
		return res, domain.ErrLeadDeleted
	}
	if !lead.IsCollaborator(userID) {
		return res, nil
	}
	res.Lead.CollaboratorUserIDs = without(res.Lead.CollaboratorUserIDs, userID)
	res.Changed = true
	return res, nil
}

func requireLiveClaim(lead domain.Lead) error {
	switch {
	case lead.IsDeleted():
		return domain.ErrLeadDeleted
	case lead.IsPreClaim():
		return domain.ErrNotRegistered
	case lead.Status.IsTerminal():
		return domain.ErrLeadExpired
	}
	return nil
}

func resumeInto(lead *domain.Lead, now time.Time) {
	lead.PausedSeconds = protection.Resume(*lead.ClockStoppedAt, now, lead.PausedSeconds)
	lead.ClockStoppedAt = nil
	lead.StopReason = ""
	lead.StopApprovedBy = nil
}

func (r *Result) addNotice(owner *uuid.UUID, kind domain.NoticeKind, stampedAt, dueAt time.Time) {
	if owner == nil {
		return
	}
	r.Notices = append(r.Notices, domain.Notice{
		LeadID:    r.Lead.ID,
		OwnerID:   *owner,
		Kind:      kind,
		StampedAt: stampedAt,
		DueAt:     dueAt,
	})
}

func audit(actor uuid.UUID, action domain.Action, before, after domain.Lead, reason string, now time.Time) *domain.AuditRecord {
	rec := domain.NewAuditRecord(actor, action, before, after, reason, now)
	return &rec
}

func statusActivity(leadID, actor uuid.UUID, now time.Time, res Result) domain.Activity {
	return domain.NewSystemActivity(leadID, actor, domain.ActivityStatusChange, now, string(res.From)+" -> "+string(res.To))
}

func stageActivity(lead domain.Lead, actor uuid.UUID, target domain.Stage, at time.Time) domain.Activity {
	return domain.NewSystemActivity(lead.ID, actor, domain.ActivityStageChanged, at, lead.Stage.String()+" -> "+target.String())
}

func without(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
