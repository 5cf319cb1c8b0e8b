package fsm

import (
	"errors"
	"testing"

	"lead_protection_backend/internal/leads/domain"
)

func TestApplyTimeDrivenChain(t *testing.T) {
	v := New()
	steps := []struct {
		from  domain.Status
		event domain.Event
		want  domain.Status
	}{
		{domain.StatusRegistered, domain.EventRemind, domain.StatusReminderSent},
		{domain.StatusActive, domain.EventRemind, domain.StatusReminderSent},
		{domain.StatusExtended, domain.EventRemind, domain.StatusReminderSent},
		{domain.StatusReminderSent, domain.EventStartGrace, domain.StatusGracePeriod},
		{domain.StatusGracePeriod, domain.EventExpire, domain.StatusExpired},
		{domain.StatusExpired, domain.EventReopen, domain.StatusRegistered},
	}

	for _, s := range steps {
		got, err := v.Apply(s.from, s.event)
		if err != nil {
			t.Fatalf("%s --%s--> unexpected error: %v", s.from, s.event, err)
		}
		if got != s.want {
			t.Fatalf("%s --%s--> expected %s, got %s", s.from, s.event, s.want, got)
		}
	}
}

func TestApplyAllowsSelfLoops(t *testing.T) {
	v := New()
	got, err := v.Apply(domain.StatusActive, domain.EventActivity)
	if err != nil || got != domain.StatusActive {
		t.Fatalf("expected ACTIVE self loop, got %s (%v)", got, err)
	}
	got, err = v.Apply(domain.StatusExtended, domain.EventExtend)
	if err != nil || got != domain.StatusExtended {
		t.Fatalf("expected EXTENDED self loop, got %s (%v)", got, err)
	}
}

func TestApplyRejectsUnlistedEdges(t *testing.T) {
	v := New()
	cases := []struct {
		from  domain.Status
		event domain.Event
	}{
		{domain.StatusActive, domain.EventExpire},
		{domain.StatusRegistered, domain.EventStartGrace},
		{domain.StatusExpired, domain.EventActivity},
		{domain.StatusExpired, domain.EventExtend},
		{domain.StatusActive, domain.EventReopen},
	}

	for _, c := range cases {
		_, err := v.Apply(c.from, c.event)
		var te *domain.TransitionError
		if !errors.As(err, &te) {
			t.Fatalf("%s --%s--> expected TransitionError, got %v", c.from, c.event, err)
		}
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("expected error to match ErrInvalidTransition")
		}
	}
}
