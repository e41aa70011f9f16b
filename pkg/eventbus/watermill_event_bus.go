package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/flowrun/pkg/events"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type keyed interface {
	Key() string
}

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

// NewWatermillEventBus wraps a watermill publisher and subscriber. Either may be nil
// for a bus that only publishes or only follows events.
func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

// Publish marshals payload to JSON and sends it on topic. Event payloads carry
// their type and key in the message metadata along with the trace context.
func (eb *WatermillEventBus) Publish(ctx context.Context, topic string, payload any) error {
	if eb.publisher == nil {
		return fmt.Errorf("event bus cannot publish %s: no publisher", topic)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), body)
	msg.SetContext(ctx)

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	for k, v := range carrier {
		msg.Metadata.Set(k, v)
	}

	if event, ok := payload.(Event); ok {
		msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))
	}

	if k, ok := payload.(keyed); ok {
		msg.Metadata.Set(events.EventMetadataKey, k.Key())
	}

	return eb.publisher.Publish(topic, msg)
}

// Subscribe starts one consumer per handled event type. Messages are decoded
// into the matching event struct before reaching the handler.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	if eb.subscriber == nil {
		return ErrNoSubscriber
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for eventType, handler := range eb.subscriptions {
		messages, err := eb.subscriber.Subscribe(ctx, string(eventType))
		if err != nil {
			return err
		}

		go consume(ctx, eventType, messages, handler)
	}

	return nil
}

func consume(ctx context.Context, eventType events.EventType, messages <-chan *message.Message, handler EventHandler) {
	for msg := range messages {
		event, ok := events.New(eventType)
		if !ok {
			msg.Nack()

			continue
		}

		err := json.Unmarshal(msg.Payload, event)
		if err != nil {
			msg.Nack()

			continue
		}

		err = handler(ctx, event)
		if err != nil {
			msg.Nack()

			continue
		}

		msg.Ack()
	}
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	if eb.publisher != nil {
		if err := eb.publisher.Close(); err != nil {
			return err
		}
	}

	if eb.subscriber == nil {
		return nil
	}

	return eb.subscriber.Close()
}
