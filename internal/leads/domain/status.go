package domain

import (
	"errors"
	"fmt"
)

// Status is the lifecycle position of a lead. The stop-clock flag is an overlay
// on the lead (ClockStoppedAt), never a Status.
type Status string

const (
	StatusRegistered   Status = "REGISTERED"
	StatusActive       Status = "ACTIVE"
	StatusReminderSent Status = "REMINDER_SENT"
	StatusGracePeriod  Status = "GRACE_PERIOD"
	StatusExpired      Status = "EXPIRED"
	StatusExtended     Status = "EXTENDED"
)

var knownStatuses = map[Status]bool{
	StatusRegistered:   true,
	StatusActive:       true,
	StatusReminderSent: true,
	StatusGracePeriod:  true,
	StatusExpired:      true,
	StatusExtended:     true,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return knownStatuses[s]
}

// IsTerminal reports whether no time-driven transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusExpired
}

// Event names a lifecycle trigger.
type Event string

const (
	EventActivity   Event = "activity"
	EventRemind     Event = "remind"
	EventStartGrace Event = "start_grace"
	EventExpire     Event = "expire"
	EventExtend     Event = "extend"
	EventRelease    Event = "release"
	EventReopen     Event = "reopen"
)

// Transition is one permitted edge of the status machine.
type Transition struct {
	Event Event
	Src   Status
	Dst   Status
}

var open = []Status{StatusRegistered, StatusActive, StatusReminderSent, StatusGracePeriod, StatusExtended}

// Transitions is the complete status machine. Self loops (ACTIVE on activity,
// EXTENDED on a second extension) are permitted edges.
var Transitions = buildTransitions()

func buildTransitions() []Transition {
	var out []Transition
	for _, src := range open {
		out = append(out, Transition{Event: EventActivity, Src: src, Dst: StatusActive})
	}
	for _, src := range []Status{StatusRegistered, StatusActive, StatusExtended} {
		out = append(out, Transition{Event: EventRemind, Src: src, Dst: StatusReminderSent})
	}
	out = append(out,
		Transition{Event: EventStartGrace, Src: StatusReminderSent, Dst: StatusGracePeriod},
		Transition{Event: EventExpire, Src: StatusGracePeriod, Dst: StatusExpired},
		Transition{Event: EventReopen, Src: StatusExpired, Dst: StatusRegistered},
	)
	for _, src := range open {
		out = append(out,
			Transition{Event: EventExtend, Src: src, Dst: StatusExtended},
			Transition{Event: EventRelease, Src: src, Dst: StatusExpired},
		)
	}
	return out
}

// TransitionValidator checks an event against the status machine and returns
// the destination status.
type TransitionValidator interface {
	Apply(current Status, event Event) (Status, error)
}

// ErrInvalidTransition is matched by every TransitionError and by stage violations.
var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError reports an event that is not permitted from the current status.
type TransitionError struct {
	Event   Event
	Current Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q not allowed from status %q", e.Event, e.Current)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
