package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActivityType enumerates the recorded interactions with a lead.
type ActivityType string

const (
	ActivityCall                   ActivityType = "CALL"
	ActivityMeeting                ActivityType = "MEETING"
	ActivityEmail                  ActivityType = "EMAIL"
	ActivityFirstContactDocumented ActivityType = "FIRST_CONTACT_DOCUMENTED"
	ActivityQualifiedCall          ActivityType = "QUALIFIED_CALL"
	ActivityDemo                   ActivityType = "DEMO"
	ActivityROIPresentation        ActivityType = "ROI_PRESENTATION"
	ActivitySampleSent             ActivityType = "SAMPLE_SENT"
	ActivityFollowUp               ActivityType = "FOLLOW_UP"
	ActivityNote                   ActivityType = "NOTE"

	// System types, recorded by the service itself.
	ActivityStatusChange ActivityType = "STATUS_CHANGE"
	ActivityStageChanged ActivityType = "STAGE_CHANGED"
	ActivityReminderSent ActivityType = "REMINDER_SENT"
	ActivityLeadAssigned ActivityType = "LEAD_ASSIGNED"
	ActivityClockStopped ActivityType = "CLOCK_STOPPED"
	ActivityClockResumed ActivityType = "CLOCK_RESUMED"
)

type activityFlags struct {
	meaningful   bool
	resetsTimer  bool
	firstContact bool
	system       bool
}

var activityCatalog = map[ActivityType]activityFlags{
	ActivityCall:                   {meaningful: true, resetsTimer: true, firstContact: true},
	ActivityMeeting:                {meaningful: true, resetsTimer: true, firstContact: true},
	ActivityEmail:                  {meaningful: true, resetsTimer: true, firstContact: true},
	ActivityFirstContactDocumented: {meaningful: true, resetsTimer: true, firstContact: true},
	ActivityQualifiedCall:          {meaningful: true, resetsTimer: true, firstContact: true},
	ActivityDemo:                   {meaningful: true, resetsTimer: true, firstContact: true},
	ActivityROIPresentation:        {meaningful: true, resetsTimer: true, firstContact: true},
	ActivitySampleSent:             {meaningful: true, resetsTimer: true},
	ActivityFollowUp:               {meaningful: true, resetsTimer: true},
	ActivityNote:                   {},
	ActivityStatusChange:           {system: true},
	ActivityStageChanged:           {system: true},
	ActivityReminderSent:           {system: true},
	ActivityLeadAssigned:           {system: true},
	ActivityClockStopped:           {system: true},
	ActivityClockResumed:           {system: true},
}

// ParseActivityType maps a name to a known type.
func ParseActivityType(name string) (ActivityType, bool) {
	t := ActivityType(strings.ToUpper(strings.TrimSpace(name)))
	_, ok := activityCatalog[t]
	return t, ok
}

// Valid reports whether t is in the catalog.
func (t ActivityType) Valid() bool {
	_, ok := activityCatalog[t]
	return ok
}

// IsMeaningful reports whether the activity moves lastActivityAt.
func (t ActivityType) IsMeaningful() bool { return activityCatalog[t].meaningful }

// ResetsTimer reports whether the activity returns the lead to ACTIVE.
func (t ActivityType) ResetsTimer() bool { return activityCatalog[t].resetsTimer }

// DocumentsFirstContact reports whether the activity registers a PRELIMINARY lead.
func (t ActivityType) DocumentsFirstContact() bool { return activityCatalog[t].firstContact }

// IsSystem reports whether only the service may record the type.
func (t ActivityType) IsSystem() bool { return activityCatalog[t].system }

// Activity is an immutable fact about a lead.
type Activity struct {
	ID             uuid.UUID
	LeadID         uuid.UUID
	Type           ActivityType
	OccurredAt     time.Time
	ActorID        uuid.UUID
	Outcome        string
	NextAction     string
	NextActionDate *time.Time
}

// NewSystemActivity builds an activity the service records alongside a state change.
func NewSystemActivity(leadID, actorID uuid.UUID, t ActivityType, at time.Time, outcome string) Activity {
	return Activity{
		ID:         uuid.New(),
		LeadID:     leadID,
		Type:       t,
		OccurredAt: at,
		ActorID:    actorID,
		Outcome:    outcome,
	}
}
