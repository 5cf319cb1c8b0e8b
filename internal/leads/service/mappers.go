package service

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"lead_protection_backend/internal/leads/domain"
	"lead_protection_backend/internal/leads/protection"
	"lead_protection_backend/internal/leads/transport"
)

// ToLeadResponse maps a lead snapshot with its protection summary at now.
func ToLeadResponse(lead domain.Lead, now time.Time) transport.LeadResponse {
	collaborators := slices.Clone(lead.CollaboratorUserIDs)
	if collaborators == nil {
		collaborators = []uuid.UUID{}
	}

	resp := transport.LeadResponse{
		ID:                  lead.ID,
		OwnerUserID:         lead.OwnerUserID,
		CollaboratorUserIDs: collaborators,
		TerritoryID:         lead.TerritoryID,
		CompanyName:         lead.CompanyName,
		Stage:               lead.Stage.String(),
		Status:              string(lead.Status),
		CreatedAt:           lead.CreatedAt,
		RegisteredAt:        lead.RegisteredAt,
		LastActivityAt:      lead.LastActivityAt,
		ReminderSentAt:      lead.ReminderSentAt,
		GracePeriodStartAt:  lead.GracePeriodStartAt,
		ExpiredAt:           lead.ExpiredAt,
		ExtendedAt:          lead.ExtendedAt,
		PseudonymizedAt:     lead.PseudonymizedAt,
		Protection:          ToProtectionStatus(lead, now),
		Version:             lead.Version,
		UpdatedAt:           lead.UpdatedAt,
	}
	if lead.Contact != nil {
		resp.Contact = &transport.ContactResponse{
			Name:  lead.Contact.Name,
			Email: lead.Contact.Email,
			Phone: lead.Contact.Phone,
		}
	}
	return resp
}

// expiringSoonDays is the warning horizon for ExpiringSoon.
const expiringSoonDays = 7

// ToProtectionStatus summarises the clock of lead at now.
func ToProtectionStatus(lead domain.Lead, now time.Time) transport.ProtectionStatusResponse {
	ev := protection.EvaluateLead(lead, now)
	resp := transport.ProtectionStatusResponse{
		IsProtected:  ev.Started && !lead.Status.IsTerminal() && lead.OwnerUserID != nil,
		ClockStopped: ev.IsPaused,
	}
	if !ev.Started {
		return resp
	}

	resp.RemainingDays = ev.RemainingDays(now)
	resp.ExpiringSoon = !lead.Status.IsTerminal() && ev.ExpiringSoon(now, expiringSoonDays)
	resp.ProtectionEndsAt = domain.TimePtr(ev.ProtectionEndsAt)
	resp.ReminderDueAt = domain.TimePtr(ev.ReminderDueAt)
	if days := ev.DaysUntilNextTransition(now, lead.Status); days >= 0 {
		resp.DaysUntilNextTransition = &days
	}
	if lead.IsPaused() {
		resp.StopReason = lead.StopReason
		resp.StoppedBy = lead.StopApprovedBy
		resp.StoppedAt = lead.ClockStoppedAt
	}
	return resp
}

func ToActivityListResponse(items []domain.Activity) transport.ActivityListResponse {
	out := make([]transport.ActivityResponse, 0, len(items))
	for _, a := range items {
		out = append(out, transport.ActivityResponse{
			ID:             a.ID,
			Type:           string(a.Type),
			OccurredAt:     a.OccurredAt,
			ActorID:        a.ActorID,
			Outcome:        a.Outcome,
			NextAction:     a.NextAction,
			NextActionDate: a.NextActionDate,
		})
	}
	return transport.ActivityListResponse{Items: out}
}

func ToAuditListResponse(records []domain.AuditRecord) transport.AuditListResponse {
	out := make([]transport.AuditRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, transport.AuditRecordResponse{
			ID:          r.ID,
			ActorID:     r.ActorID,
			Action:      string(r.Action),
			Override:    r.Override,
			PriorOwner:  r.PriorOwner,
			NewOwner:    r.NewOwner,
			PriorStatus: string(r.PriorStatus),
			NewStatus:   string(r.NewStatus),
			Reason:      r.Reason,
			OccurredAt:  r.OccurredAt,
		})
	}
	return transport.AuditListResponse{Items: out}
}
