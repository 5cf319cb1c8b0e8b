package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"lead_protection_backend/platform/config"
	"lead_protection_backend/platform/logger"
)

// AMQPPublisher publishes events to a durable topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQPPublisher connects to the broker and declares the exchange.
func NewAMQPPublisher(cfg config.AMQPConfig) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.GetAMQPURL())
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	exchange := cfg.GetAMQPExchange()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(ctx, p.exchange, msg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    time.Now().UTC(),
		Body:         msg.Body,
	})
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// Connect returns the AMQP publisher when a broker is configured. Fan-out is
// best effort: without a broker, or when the dial fails, events are dropped
// and the returned close func is a no-op.
func Connect(cfg config.AMQPConfig, log *logger.Logger) (Publisher, func()) {
	if !cfg.IsAMQPEnabled() {
		log.Warn("AMQP_URL not configured; event fan-out disabled")
		return NoopPublisher{}, func() {}
	}

	publisher, err := NewAMQPPublisher(cfg)
	if err != nil {
		log.Error("failed to connect to AMQP broker; event fan-out disabled", "error", err)
		return NoopPublisher{}, func() {}
	}
	return publisher, func() { _ = publisher.Close() }
}
