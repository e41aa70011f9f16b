// Package events defines the progress notifications emitted while flows execute.
package events

import (
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/google/uuid"
)

type EventType string

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

// Event types double as the topic they are published on.
const (
	ExecutionStartedEvent   EventType = "flowrun.execution.started"
	NodeEnteredEvent        EventType = "flowrun.node.entered"
	NodeCompletedEvent      EventType = "flowrun.node.completed"
	ExecutionCompletedEvent EventType = "flowrun.execution.completed"
	ExecutionFailedEvent    EventType = "flowrun.execution.failed"
	ExecutionCancelledEvent EventType = "flowrun.execution.cancelled"
	NotificationEvent       EventType = "flowrun.notifications"
)

// Topics lists every topic the engine and the built-in actions publish on.
func Topics() []string {
	return []string{
		string(ExecutionStartedEvent),
		string(NodeEnteredEvent),
		string(NodeCompletedEvent),
		string(ExecutionCompletedEvent),
		string(ExecutionFailedEvent),
		string(ExecutionCancelledEvent),
		string(NotificationEvent),
	}
}

// IsTerminal reports whether eventType ends an execution.
func IsTerminal(eventType EventType) bool {
	switch eventType {
	case ExecutionCompletedEvent, ExecutionFailedEvent, ExecutionCancelledEvent:
		return true
	default:
		return false
	}
}

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	ExecutionID string    `json:"execution_id"`
	FlowID      string    `json:"flow_id"`
}

func NewBaseEvent(eventType EventType, executionID, flowID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
		FlowID:      flowID,
	}
}

// Key is the partition key of the event.
func (b BaseEvent) Key() string {
	return b.ExecutionID
}

type ExecutionStarted struct {
	BaseEvent

	InputData any `json:"input_data,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type NodeEntered struct {
	BaseEvent

	NodeID   string          `json:"node_id"`
	NodeType models.NodeType `json:"node_type"`
	Visit    int             `json:"visit"`
}

func (e NodeEntered) GetType() EventType {
	return NodeEnteredEvent
}

type NodeCompleted struct {
	BaseEvent

	NodeID       string          `json:"node_id"`
	NodeType     models.NodeType `json:"node_type"`
	Success      bool            `json:"success"`
	Branch       string          `json:"branch,omitempty"`
	OutputData   any             `json:"output_data,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
}

func (e NodeCompleted) GetType() EventType {
	return NodeCompletedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	OutputData    any   `json:"output_data,omitempty"`
	DurationMs    int64 `json:"duration_ms"`
	NodesExecuted int   `json:"nodes_executed"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	Error         models.ExecutionError `json:"error"`
	DurationMs    int64                 `json:"duration_ms"`
	NodesExecuted int                   `json:"nodes_executed"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	DurationMs    int64  `json:"duration_ms"`
	NodesExecuted int    `json:"nodes_executed"`
	LastNodeID    string `json:"last_node_id,omitempty"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

// Notification is published by the notification action.
type Notification struct {
	BaseEvent

	NodeID  string          `json:"node_id"`
	Topic   string          `json:"topic"`
	Level   models.LogLevel `json:"level"`
	Message string          `json:"message"`
	Data    any             `json:"data,omitempty"`
}

func (e Notification) GetType() EventType {
	return NotificationEvent
}

// New returns an empty event for eventType, ready to be decoded into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case ExecutionStartedEvent:
		return &ExecutionStarted{}, true
	case NodeEnteredEvent:
		return &NodeEntered{}, true
	case NodeCompletedEvent:
		return &NodeCompleted{}, true
	case ExecutionCompletedEvent:
		return &ExecutionCompleted{}, true
	case ExecutionFailedEvent:
		return &ExecutionFailed{}, true
	case ExecutionCancelledEvent:
		return &ExecutionCancelled{}, true
	case NotificationEvent:
		return &Notification{}, true
	default:
		return nil, false
	}
}
