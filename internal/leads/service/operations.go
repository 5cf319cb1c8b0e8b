package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"lead_protection_backend/internal/events"
	"lead_protection_backend/internal/leads/domain"
	"lead_protection_backend/internal/leads/lifecycle"
	"lead_protection_backend/internal/leads/transport"
	"lead_protection_backend/platform/apperr"
	"lead_protection_backend/platform/phone"
	"lead_protection_backend/platform/sanitize"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

// Create captures a new PRELIMINARY lead owned by the caller. A contact person
// in the request registers it immediately.
func (s *Service) Create(ctx context.Context, ac domain.AccessContext, req transport.CreateLeadRequest) (transport.LeadResponse, error) {
	now := s.opts.Clock.Now()
	owner := ac.UserID
	draft := domain.Lead{
		ID:               uuid.New(),
		OwnerUserID:      &owner,
		TerritoryID:      strings.ToUpper(strings.TrimSpace(req.TerritoryID)),
		CompanyName:      sanitize.Text(req.CompanyName),
		Stage:            domain.StagePreliminary,
		Status:           domain.StatusRegistered,
		CreatedAt:        now,
		ProtectionMonths: s.opts.ProtectionMonths,
		ReminderDays:     s.opts.ReminderDays,
		GraceDays:        s.opts.GraceDays,
	}

	if draft.CompanyName == "" {
		return transport.LeadResponse{}, apperr.Validation("company name is required")
	}
	if grant := s.guard.Decide(ac, draft, domain.ActionWrite); !grant.Allowed {
		return transport.LeadResponse{}, denied(grant)
	}

	var activities []domain.Activity
	if req.Contact != nil {
		res, err := s.lifecycle.AttachContact(now, draft, ac.UserID, toContact(*req.Contact, draft.TerritoryID))
		if err != nil {
			return transport.LeadResponse{}, mapError(err)
		}
		draft = res.Lead
		activities = res.Activities
	}

	lead, err := s.store.Create(ctx, draft, activities)
	if err != nil {
		return transport.LeadResponse{}, mapError(err)
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadCreated{
			BaseEvent:   events.NewBaseEvent(),
			LeadID:      lead.ID,
			OwnerUserID: lead.OwnerUserID,
			TerritoryID: lead.TerritoryID,
		})
	}
	return ToLeadResponse(lead, now), nil
}

// Get returns a lead visible to the caller.
func (s *Service) Get(ctx context.Context, ac domain.AccessContext, id uuid.UUID) (transport.LeadResponse, error) {
	lead, err := s.read(ctx, ac, id)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return ToLeadResponse(lead, s.opts.Clock.Now()), nil
}

// ProtectionStatus summarises the protection clock of a lead.
func (s *Service) ProtectionStatus(ctx context.Context, ac domain.AccessContext, id uuid.UUID) (transport.ProtectionStatusResponse, error) {
	lead, err := s.read(ctx, ac, id)
	if err != nil {
		return transport.ProtectionStatusResponse{}, err
	}
	return ToProtectionStatus(lead, s.opts.Clock.Now()), nil
}

// RecordActivity logs an interaction. Meaningful activities restart the
// reminder window; first-contact types register a PRELIMINARY lead.
func (s *Service) RecordActivity(ctx context.Context, ac domain.AccessContext, id uuid.UUID, req transport.RecordActivityRequest) (transport.LeadResponse, error) {
	activityType, ok := domain.ParseActivityType(req.Type)
	if !ok || activityType.IsSystem() {
		return transport.LeadResponse{}, apperr.Validation("unknown activity type")
	}

	return s.apply(ctx, ac, id, domain.ActionWrite, "", func(now time.Time, lead domain.Lead) (lifecycle.Result, error) {
		activity := domain.Activity{
			ID:             uuid.New(),
			Type:           activityType,
			ActorID:        ac.UserID,
			Outcome:        sanitize.Multiline(req.Outcome),
			NextAction:     sanitize.Text(req.NextAction),
			NextActionDate: req.NextActionDate,
		}
		if req.OccurredAt != nil {
			activity.OccurredAt = req.OccurredAt.UTC()
		}
		return s.lifecycle.RecordActivity(now, lead, activity)
	})
}

// AttachContact sets the contact person; a PRELIMINARY lead becomes REGISTERED.
func (s *Service) AttachContact(ctx context.Context, ac domain.AccessContext, id uuid.UUID, req transport.ContactRequest) (transport.LeadResponse, error) {
	return s.apply(ctx, ac, id, domain.ActionWrite, "", func(now time.Time, lead domain.Lead) (lifecycle.Result, error) {
		return s.lifecycle.AttachContact(now, lead, ac.UserID, toContact(req, lead.TerritoryID))
	})
}

// AdvanceStage moves the progressive stage forward by one.
func (s *Service) AdvanceStage(ctx context.Context, ac domain.AccessContext, id uuid.UUID, req transport.AdvanceStageRequest) (transport.LeadResponse, error) {
	target, err := domain.ParseStage(req.Stage)
	if err != nil {
		return transport.LeadResponse{}, apperr.Validation(err.Error())
	}
	return s.apply(ctx, ac, id, domain.ActionWrite, "", func(now time.Time, lead domain.Lead) (lifecycle.Result, error) {
		return s.lifecycle.AdvanceStage(now, lead, ac.UserID, target)
	})
}

// UpdateDetails edits descriptive fields. It never touches the clock.
func (s *Service) UpdateDetails(ctx context.Context, ac domain.AccessContext, id uuid.UUID, req transport.UpdateDetailsRequest) (transport.LeadResponse, error) {
	return s.apply(ctx, ac, id, domain.ActionWrite, "", func(_ time.Time, lead domain.Lead) (lifecycle.Result, error) {
		res := lifecycle.Result{Lead: lead.Clone(), From: lead.Status, To: lead.Status, Trigger: "details_updated"}
		if req.CompanyName != nil {
			if name := sanitize.Text(*req.CompanyName); name != "" && name != lead.CompanyName {
				res.Lead.CompanyName = name
				res.Changed = true
			}
		}
		return res, nil
	})
}

// StopClock pauses protection with a reason.
func (s *Service) StopClock(ctx context.Context, ac domain.AccessContext, id uuid.UUID, req transport.StopClockRequest) (transport.LeadResponse, error) {
	reason := sanitize.Text(req.Reason)
	return s.apply(ctx, ac, id, domain.ActionStopClock, reason, func(now time.Time, lead domain.Lead) (lifecycle.Result, error) {
		return s.lifecycle.StopClock(now, lead, ac.UserID, reason)
	})
}

// ResumeClock restarts protection; the stopped time extends every deadline.
func (s *Service) ResumeClock(ctx context.Context, ac domain.AccessContext, id uuid.UUID) (transport.LeadResponse, error) {
	return s.apply(ctx, ac, id, domain.ActionResumeClock, "clock resumed", func(now time.Time, lead domain.Lead) (lifecycle.Result, error) {
		return s.lifecycle.ResumeClock(now, lead, ac.UserID)
	})
}

// Extend lengthens protection by req.Months.
func (s *Service) Extend(ctx context.Context, ac domain.AccessContext, id uuid.UUID, req transport.ExtendRequest) (transport.LeadResponse, error) {
	reason := sanitize.Text(req.Reason)
	return s.apply(ctx, ac, id, domain.ActionExtend, reason, func(now time.Time, lead domain.Lead) (lifecycle.Result, error) {
		return s.lifecycle.Extend(now, lead, ac.UserID, req.Months, reason)
	})
}

// Reassign hands the lead to another sales user.
func (s *Service) Reassign(ctx context.Context, ac domain.AccessContext, id uuid.UUID, req transport.ReassignRequest) (transport.LeadResponse, error) {
	if err := s.requireUser(ctx, req.NewOwnerID); err != nil {
		return transport.LeadResponse{}, err
	}
	reason := sanitize.Text(req.Reason)
	return s.apply(ctx, ac, id, domain.ActionReassign, reason, func(now time.Time, lead domain.Lead) (lifecycle.Result, error) {
		return s.lifecycle.Reassign(now, lead, ac.UserID, req.NewOwnerID, reason)
	})
}

// Release gives up protection early.
func (s *Service) Release(ctx context.Context, ac domain.AccessContext, id uuid.UUID, req transport.ReleaseRequest) (transport.LeadResponse, error) {
	reason := sanitize.Text(req.Reason)
	return s.apply(ctx, ac, id, domain.ActionRelease, reason, func(now time.Time, lead domain.Lead) (lifecycle.Result, error) {
		return s.lifecycle.Release(now, lead, ac.UserID, reason)
	})
}

// Delete soft deletes the lead.
func (s *Service) Delete(ctx context.Context, ac domain.AccessContext, id uuid.UUID) error {
	_, _, err := s.mutate(ctx, ac, id, domain.ActionDelete, "lead deleted", func(now time.Time, lead domain.Lead) (lifecycle.Result, error) {
		return s.lifecycle.Delete(now, lead)
	})
	return err
}

// AddCollaborator grants write access to another sales user.
func (s *Service) AddCollaborator(ctx context.Context, ac domain.AccessContext, id uuid.UUID, req transport.CollaboratorRequest) (transport.LeadResponse, error) {
	if err := s.requireUser(ctx, req.UserID); err != nil {
		return transport.LeadResponse{}, err
	}
	return s.apply(ctx, ac, id, domain.ActionManageCollaborators, "collaborator added", func(_ time.Time, lead domain.Lead) (lifecycle.Result, error) {
		return s.lifecycle.AddCollaborator(lead, req.UserID)
	})
}

// RemoveCollaborator revokes a collaborator.
func (s *Service) RemoveCollaborator(ctx context.Context, ac domain.AccessContext, id, userID uuid.UUID) (transport.LeadResponse, error) {
	return s.apply(ctx, ac, id, domain.ActionManageCollaborators, "collaborator removed", func(_ time.Time, lead domain.Lead) (lifecycle.Result, error) {
		return s.lifecycle.RemoveCollaborator(lead, userID)
	})
}

// ListActivities returns the newest activities of a lead.
func (s *Service) ListActivities(ctx context.Context, ac domain.AccessContext, id uuid.UUID, limit int) (transport.ActivityListResponse, error) {
	if _, err := s.read(ctx, ac, id); err != nil {
		return transport.ActivityListResponse{}, err
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	items, err := s.store.ListActivities(ctx, id, limit)
	if err != nil {
		return transport.ActivityListResponse{}, mapError(err)
	}
	return ToActivityListResponse(items), nil
}

// ListAudit returns the audit trail of a lead.
func (s *Service) ListAudit(ctx context.Context, ac domain.AccessContext, id uuid.UUID) (transport.AuditListResponse, error) {
	if _, err := s.read(ctx, ac, id); err != nil {
		return transport.AuditListResponse{}, err
	}
	records, err := s.store.ListAudit(ctx, id)
	if err != nil {
		return transport.AuditListResponse{}, mapError(err)
	}
	return ToAuditListResponse(records), nil
}

func (s *Service) apply(ctx context.Context, ac domain.AccessContext, id uuid.UUID, action domain.Action, reason string, decide decision) (transport.LeadResponse, error) {
	lead, _, err := s.mutate(ctx, ac, id, action, reason, decide)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return ToLeadResponse(lead, s.opts.Clock.Now()), nil
}

func (s *Service) read(ctx context.Context, ac domain.AccessContext, id uuid.UUID) (domain.Lead, error) {
	lead, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Lead{}, mapError(err)
	}
	if grant := s.guard.Decide(ac, lead, domain.ActionRead); !grant.Allowed {
		return domain.Lead{}, denied(grant)
	}
	return lead, nil
}

func (s *Service) requireUser(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return apperr.Validation("user id is required")
	}
	if s.users == nil {
		return nil
	}
	exists, err := s.users.UserExists(ctx, id)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "user lookup failed", err)
	}
	if !exists {
		return apperr.Validation("user not found")
	}
	return nil
}

// toContact normalises a contact; national phone numbers are read in the
// lead's territory.
func toContact(req transport.ContactRequest, territoryID string) domain.ContactPerson {
	return domain.ContactPerson{
		Name:  sanitize.Text(req.Name),
		Email: strings.ToLower(strings.TrimSpace(req.Email)),
		Phone: phone.NormalizeE164(req.Phone, territoryID),
	}
}
