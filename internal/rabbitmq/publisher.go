package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"studygroup-chat/internal/telemetry"
)

const defaultPublishTimeout = 5 * time.Second

// Publisher publishes chat audit and broker connection events to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	PublishJSON(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// Config selects the broker and exchange. An empty URL disables publishing.
type Config struct {
	URL            string
	Exchange       string
	PublishTimeout time.Duration
}

// NewPublisher connects to RabbitMQ and declares the exchange. Any failure
// yields a noop publisher that logs events instead of sending them.
func NewPublisher(cfg Config) Publisher {
	if cfg.URL == "" {
		return newNoop("empty amqp url")
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	p, err := dial(cfg)
	if err != nil {
		return newNoop(err.Error())
	}
	log.Printf("rabbitmq connected exchange=%s", cfg.Exchange)
	return p
}

func dial(cfg Config) (*amqpPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	// durable, not auto-deleted
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	return &amqpPublisher{conn: conn, ch: ch, exchange: cfg.Exchange, timeout: cfg.PublishTimeout}, nil
}

type amqpPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	timeout  time.Duration
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	return p.PublishJSON(ctx, routingKey, event, nil)
}

func (p *amqpPublisher) PublishJSON(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	table := make(amqp.Table, len(headers))
	for key, value := range headers {
		table[key] = value
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      table,
		Body:         body,
	})
	if err != nil {
		log.Printf("rabbitmq publish failed routing_key=%s err=%v", routingKey, err)
	}
	return err
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
}

func newNoop(reason string) noopPublisher {
	log.Printf("rabbitmq disabled, using noop: %s", reason)
	return noopPublisher{reason: reason}
}

func (p noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	return p.PublishJSON(ctx, routingKey, event, nil)
}

func (noopPublisher) PublishJSON(_ context.Context, routingKey string, event any, headers map[string]string) error {
	if envelope, ok := event.(telemetry.AuditEnvelope); ok {
		log.Printf("rabbitmq noop publish routing_key=%s event_type=%s request_id=%s", routingKey, envelope.EventType, envelope.RequestID)
		return nil
	}
	log.Printf("rabbitmq noop publish routing_key=%s request_id=%s", routingKey, headers["x-request-id"])
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports "amqp" or "noop" for startup logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason explains why publishing is disabled, if it is.
func PublisherNoopReason(p Publisher) string {
	if noop, ok := p.(noopPublisher); ok {
		return noop.reason
	}
	return ""
}
