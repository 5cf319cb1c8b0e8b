package transport

import (
	"time"

	"github.com/google/uuid"
)

// Request DTOs
type ContactRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=200"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,min=5,max=20"`
}

type CreateLeadRequest struct {
	CompanyName string          `json:"companyName" validate:"required,min=1,max=200"`
	TerritoryID string          `json:"territoryId" validate:"required,territory"`
	Contact     *ContactRequest `json:"contact,omitempty" validate:"omitempty"`
}

type UpdateDetailsRequest struct {
	CompanyName *string `json:"companyName,omitempty" validate:"omitempty,min=1,max=200"`
}

type RecordActivityRequest struct {
	Type           string     `json:"type" validate:"required,max=40"`
	OccurredAt     *time.Time `json:"occurredAt,omitempty"`
	Outcome        string     `json:"outcome,omitempty" validate:"max=2000"`
	NextAction     string     `json:"nextAction,omitempty" validate:"max=500"`
	NextActionDate *time.Time `json:"nextActionDate,omitempty"`
}

type AdvanceStageRequest struct {
	Stage string `json:"stage" validate:"required,oneof=PRELIMINARY REGISTERED QUALIFIED"`
}

type StopClockRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

type ExtendRequest struct {
	Months int    `json:"months" validate:"required,min=1,max=24"`
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

type ReassignRequest struct {
	NewOwnerID uuid.UUID `json:"newOwnerId" validate:"required"`
	Reason     string    `json:"reason" validate:"required,min=3,max=500"`
}

type ReleaseRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

type CollaboratorRequest struct {
	UserID uuid.UUID `json:"userId" validate:"required"`
}

// Response DTOs
type ContactResponse struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type ProtectionStatusResponse struct {
	IsProtected             bool       `json:"isProtected"`
	ClockStopped            bool       `json:"clockStopped"`
	RemainingDays           int        `json:"remainingDays"`
	ExpiringSoon            bool       `json:"expiringSoon"`
	DaysUntilNextTransition *int       `json:"daysUntilNextTransition,omitempty"`
	ProtectionEndsAt        *time.Time `json:"protectionEndsAt,omitempty"`
	ReminderDueAt           *time.Time `json:"reminderDueAt,omitempty"`
	StopReason              string     `json:"stopReason,omitempty"`
	StoppedBy               *uuid.UUID `json:"stoppedBy,omitempty"`
	StoppedAt               *time.Time `json:"stoppedAt,omitempty"`
}

type LeadResponse struct {
	ID                  uuid.UUID                `json:"id"`
	OwnerUserID         *uuid.UUID               `json:"ownerUserId,omitempty"`
	CollaboratorUserIDs []uuid.UUID              `json:"collaboratorUserIds"`
	TerritoryID         string                   `json:"territoryId"`
	CompanyName         string                   `json:"companyName"`
	Contact             *ContactResponse         `json:"contact,omitempty"`
	Stage               string                   `json:"stage"`
	Status              string                   `json:"status"`
	CreatedAt           time.Time                `json:"createdAt"`
	RegisteredAt        *time.Time               `json:"registeredAt,omitempty"`
	LastActivityAt      *time.Time               `json:"lastActivityAt,omitempty"`
	ReminderSentAt      *time.Time               `json:"reminderSentAt,omitempty"`
	GracePeriodStartAt  *time.Time               `json:"gracePeriodStartAt,omitempty"`
	ExpiredAt           *time.Time               `json:"expiredAt,omitempty"`
	ExtendedAt          *time.Time               `json:"extendedAt,omitempty"`
	PseudonymizedAt     *time.Time               `json:"pseudonymizedAt,omitempty"`
	Protection          ProtectionStatusResponse `json:"protection"`
	Version             int64                    `json:"version"`
	UpdatedAt           time.Time                `json:"updatedAt"`
}

type ActivityResponse struct {
	ID             uuid.UUID  `json:"id"`
	Type           string     `json:"type"`
	OccurredAt     time.Time  `json:"occurredAt"`
	ActorID        uuid.UUID  `json:"actorId"`
	Outcome        string     `json:"outcome,omitempty"`
	NextAction     string     `json:"nextAction,omitempty"`
	NextActionDate *time.Time `json:"nextActionDate,omitempty"`
}

type ActivityListResponse struct {
	Items []ActivityResponse `json:"items"`
}

type AuditRecordResponse struct {
	ID          uuid.UUID  `json:"id"`
	ActorID     uuid.UUID  `json:"actorId"`
	Action      string     `json:"action"`
	Override    bool       `json:"override"`
	PriorOwner  *uuid.UUID `json:"priorOwner,omitempty"`
	NewOwner    *uuid.UUID `json:"newOwner,omitempty"`
	PriorStatus string     `json:"priorStatus"`
	NewStatus   string     `json:"newStatus"`
	Reason      string     `json:"reason"`
	OccurredAt  time.Time  `json:"occurredAt"`
}

type AuditListResponse struct {
	Items []AuditRecordResponse `json:"items"`
}
