// Package amqp publishes execution events to a RabbitMQ topic exchange.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/flowrun/pkg/events"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange events are routed through; the routing key is the topic.
const DefaultExchange = "flowrun.events"

var ErrPublisherClosed = errors.New("amqp publisher closed")

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	logger   *slog.Logger
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel Channel
	closed  bool
}

// Dial connects to url and declares the exchange.
func Dial(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("open channel: %w", err)
	}

	p, err := NewPublisher(ch, exchange, logger)
	if err != nil {
		_ = conn.Close()

		return nil, err
	}

	p.conn = conn

	logger.Info("connected to RabbitMQ", "exchange", p.exchange)

	return p, nil
}

// NewPublisher wraps an open channel.
func NewPublisher(ch Channel, exchange string, logger *slog.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &Publisher{
		logger:   logger,
		exchange: exchange,
		channel:  ch,
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	headers := amqp.Table{}

	if event, ok := payload.(interface{ GetType() events.EventType }); ok {
		headers[events.EventTypeMetadataKey] = string(event.GetType())
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPublisherClosed
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, topic, false, false, msg)
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", p.exchange, topic, err)
	}

	p.logger.DebugContext(ctx, "published message",
		"exchange", p.exchange,
		"routing_key", topic,
		"message_id", msg.MessageId,
	)

	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	err := p.channel.Close()

	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}

	return err
}
