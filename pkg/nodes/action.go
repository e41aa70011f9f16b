package nodes

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

var ErrMissingActionType = errors.New("action node has no actionType")

// ActionCreator builds configured actions by type; *registry.Registry is one.
type ActionCreator interface {
	CreateAction(actionType string, config map[string]any) (protocol.Action, error)
}

type ActionExecutor struct {
	actions ActionCreator
}

func NewActionExecutor(actions ActionCreator) *ActionExecutor {
	return &ActionExecutor{actions: actions}
}

// actionConfig reads a nested "config" object when present, otherwise every
// node config key except actionType.
func actionConfig(node *models.Node) map[string]any {
	if nested, ok := node.Config["config"].(map[string]any); ok {
		return nested
	}

	config := maps.Clone(node.Config)
	if config == nil {
		config = map[string]any{}
	}

	delete(config, "actionType")

	return config
}

// Execute builds the action for this invocation and returns its payload as output.
func (e *ActionExecutor) Execute(ctx context.Context, node *models.Node, data any, env Env) Outcome {
	actionType := node.ConfigString("actionType")
	if actionType == "" {
		return failure(node, ErrMissingActionType)
	}

	if e.actions == nil {
		return failure(node, fmt.Errorf("no actions available for type %s", actionType))
	}

	action, err := e.actions.CreateAction(actionType, actionConfig(node))
	if err != nil {
		return failure(node, fmt.Errorf("failed to create action %s: %w", actionType, err))
	}

	logger := env.Logger.With("node_id", node.ID, "action_type", actionType)

	output, err := action.Execute(ctx, protocol.ActionInput{
		ExecutionID: env.Run.ID(),
		FlowID:      env.Run.FlowID(),
		NodeID:      node.ID,
		Data:        data,
		Input:       env.Run.Input(),
		Variables:   env.Run.Variables(),
	}, logger)
	if err != nil {
		return failure(node, err)
	}

	return success(node, output)
}
