package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/flowrun/pkg/template"
)

// ActionInput is what an action node hands to its sub-executor.
type ActionInput struct {
	ExecutionID string
	FlowID      string
	NodeID      string
	// Data is the output of the previous node.
	Data      any
	Input     any
	Variables map[string]any
}

// Scope exposes the input to configuration templates.
func (in ActionInput) Scope() template.Scope {
	return template.Scope{
		ExecutionID: in.ExecutionID,
		FlowID:      in.FlowID,
		NodeID:      in.NodeID,
		Input:       in.Input,
		Data:        in.Data,
		Variables:   in.Variables,
	}
}

// Action is a configured sub-executor of an action node.
type Action interface {
	Execute(ctx context.Context, input ActionInput, logger *slog.Logger) (any, error)
}

// ActionFactory builds actions of one actionType from node configuration.
type ActionFactory interface {
	Create(config map[string]any) (Action, error)
	ID() string
}
