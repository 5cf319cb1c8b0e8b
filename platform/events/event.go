// Package events is the in-process publish/subscribe bus that carries lead
// protection events from the service and the sweep to their consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is anything published on the bus. EventName doubles as the AMQP
// routing key once the event leaves the process.
type Event interface {
	EventName() string
	OccurredAt() time.Time
	// ID identifies one occurrence; consumers use it to drop redeliveries.
	ID() uuid.UUID
}

// BaseEvent is embedded by every concrete event.
type BaseEvent struct {
	EventID   uuid.UUID `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) ID() uuid.UUID         { return e.EventID }

// NewBaseEvent stamps a new occurrence with a fresh id and the current UTC time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{EventID: uuid.New(), Timestamp: time.Now().UTC()}
}

type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc lets a plain function subscribe.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus routes events to the handlers subscribed under their name.
type Bus interface {
	// Publish hands event to its handlers in the background. Handler errors
	// are logged, never returned.
	Publish(ctx context.Context, event Event)
	// PublishSync runs every handler before returning and joins their errors.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
