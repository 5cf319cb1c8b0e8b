// Package notification fans lead protection events out to other systems.
// It subscribes to the in-process bus and republishes each event on a broker,
// so domain code never knows who listens.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lead_protection_backend/internal/events"
	"lead_protection_backend/platform/logger"
)

// Message is one fanned-out event.
type Message struct {
	ID         string
	RoutingKey string
	Body       []byte
}

// Publisher delivers one message.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Envelope is the wire shape of every fanned-out event.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// Module republishes lead events.
type Module struct {
	publisher Publisher
	log       *logger.Logger
}

func New(publisher Publisher, log *logger.Logger) *Module {
	return &Module{publisher: publisher, log: log}
}

// RegisterHandlers subscribes the module to every lead protection event.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadCreated{}.EventName(), m)
	bus.Subscribe(events.LeadStatusChanged{}.EventName(), m)
	bus.Subscribe(events.LeadReassigned{}.EventName(), m)
}

// Handle implements events.Handler.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch event.(type) {
	case events.LeadCreated, events.LeadStatusChanged, events.LeadReassigned:
	default:
		return nil
	}

	body, err := encode(event)
	if err != nil {
		return err
	}
	msg := Message{ID: event.ID().String(), RoutingKey: event.EventName(), Body: body}
	if err := m.publisher.Publish(ctx, msg); err != nil {
		m.log.Warn("event fan-out failed", "event", event.EventName(), "error", err)
		return fmt.Errorf("publish %s: %w", event.EventName(), err)
	}
	return nil
}

func encode(event events.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event.EventName(), err)
	}
	return json.Marshal(Envelope{
		ID:         event.ID().String(),
		Type:       event.EventName(),
		OccurredAt: event.OccurredAt().UTC(),
		Data:       data,
	})
}

// NoopPublisher discards messages. It stands in when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Message) error { return nil }
