// Package fsm validates lead status changes against domain.Transitions using looplab/fsm.
package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"lead_protection_backend/internal/leads/domain"
)

var _ domain.TransitionValidator = (*Validator)(nil)

// events groups transitions sharing event and destination into one EventDesc
// with several sources.
var events = buildEvents()

func buildEvents() []loopfsm.EventDesc {
	type key struct {
		event string
		dst   string
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, t := range domain.Transitions {
		k := key{event: string(t.Event), dst: string(t.Dst)}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], string(t.Src))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{
			Name: k.event,
			Src:  grouped[k],
			Dst:  k.dst,
		})
	}
	return out
}

// Validator is stateless; each Apply runs a short-lived FSM seeded with the
// lead's current status.
type Validator struct{}

// New creates an FSM-backed transition validator.
func New() *Validator {
	return &Validator{}
}

// Apply returns the destination status for event, or a *domain.TransitionError.
// A permitted self loop returns the current status.
func (v *Validator) Apply(current domain.Status, event domain.Event) (domain.Status, error) {
	machine := loopfsm.NewFSM(string(current), events, nil)

	if err := machine.Event(context.Background(), string(event)); err != nil {
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return current, nil
		}
		var invalidEvent loopfsm.InvalidEventError
		var unknownEvent loopfsm.UnknownEventError
		if errors.As(err, &invalidEvent) || errors.As(err, &unknownEvent) {
			return "", &domain.TransitionError{Event: event, Current: current}
		}
		return "", err
	}

	return domain.Status(machine.Current()), nil
}
