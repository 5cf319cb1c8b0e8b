package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

type testEvent struct {
	BaseEvent
}

func (testEvent) EventName() string { return "test.happened" }

func TestPublishSyncJoinsHandlerErrors(t *testing.T) {
	bus := NewInMemoryBus(nil)
	calls := 0
	bus.Subscribe("test.happened", HandlerFunc(func(context.Context, Event) error {
		calls++
		return errors.New("first")
	}))
	bus.Subscribe("test.happened", HandlerFunc(func(context.Context, Event) error {
		calls++
		return nil
	}))

	err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent()})
	if err == nil {
		t.Fatalf("expected joined error, got nil")
	}
	if calls != 2 {
		t.Fatalf("expected both handlers to run, got %d", calls)
	}
}

func TestPublishRunsHandlersAsync(t *testing.T) {
	bus := NewInMemoryBus(nil)
	var calls atomic.Int32
	bus.Subscribe("test.happened", HandlerFunc(func(context.Context, Event) error {
		calls.Add(1)
		return nil
	}))
	bus.Subscribe("other", HandlerFunc(func(context.Context, Event) error {
		t.Fatalf("unexpected handler for other event")
		return nil
	}))

	bus.Publish(context.Background(), testEvent{BaseEvent: NewBaseEvent()})
	bus.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}
