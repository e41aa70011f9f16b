// Package notification provides the notification action, which publishes a
// message through the process event publisher.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

var (
	ErrMissingMessage = errors.New("missing notification message")
	ErrInvalidLevel   = errors.New("invalid notification level")
)

type Action struct {
	publisher eventbus.Publisher

	Topic   string
	Message string
	Level   models.LogLevel
}

func NewAction(publisher eventbus.Publisher, config map[string]any) (*Action, error) {
	message, _ := config["message"].(string)
	if message == "" {
		return nil, ErrMissingMessage
	}

	topic, _ := config["topic"].(string)
	if topic == "" {
		topic = string(events.NotificationEvent)
	}

	level, _ := config["level"].(string)
	if level == "" {
		level = string(models.LogLevelInfo)
	}

	switch models.LogLevel(level) {
	case models.LogLevelDebug, models.LogLevelInfo, models.LogLevelWarn, models.LogLevelError:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidLevel, level)
	}

	if publisher == nil {
		publisher = eventbus.NopPublisher{}
	}

	return &Action{
		publisher: publisher,
		Topic:     topic,
		Message:   message,
		Level:     models.LogLevel(level),
	}, nil
}

func (a *Action) Execute(ctx context.Context, input protocol.ActionInput, logger *slog.Logger) (any, error) {
	scope := input.Scope()

	message, err := template.RenderString(a.Message, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to render message template: %w", err)
	}

	topic, err := template.RenderString(a.Topic, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to render topic template: %w", err)
	}

	logger.Log(ctx, slogLevel(a.Level), message, "module", "notification_action", "topic", topic)

	event := events.Notification{
		BaseEvent: events.NewBaseEvent(events.NotificationEvent, input.ExecutionID, input.FlowID),
		NodeID:    input.NodeID,
		Topic:     topic,
		Level:     a.Level,
		Message:   message,
		Data:      input.Data,
	}

	if err := a.publisher.Publish(ctx, topic, event); err != nil {
		return nil, fmt.Errorf("failed to publish notification: %w", err)
	}

	return map[string]any{
		"topic":    topic,
		"message":  message,
		"level":    string(a.Level),
		"event_id": event.ID,
	}, nil
}

func slogLevel(level models.LogLevel) slog.Level {
	switch level {
	case models.LogLevelDebug:
		return slog.LevelDebug
	case models.LogLevelWarn:
		return slog.LevelWarn
	case models.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
