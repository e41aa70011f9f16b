// Package eventbus carries execution progress notifications to external transports.
package eventbus

import (
	"context"
	"errors"

	"github.com/dukex/flowrun/pkg/events"
)

var ErrNoSubscriber = errors.New("event bus has no subscriber")

type Event interface {
	GetType() events.EventType
}

// Publisher is the narrow capability the engine needs from a transport.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
	Close() error
}

type EventHandler func(ctx context.Context, event any) error

// Subscriber delivers decoded events for the topics it was asked to follow.
type Subscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// NopPublisher drops every payload.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

func (NopPublisher) Close() error { return nil }
