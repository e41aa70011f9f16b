package nodes

import (
	"context"
	"fmt"

	"github.com/dukex/flowrun/pkg/models"
)

// executeStart moves the run to running and emits the run input.
func executeStart(_ context.Context, node *models.Node, _ any, env Env) Outcome {
	if env.Run.Status() != models.ExecutionStatusRunning {
		if err := env.Run.Transition(models.ExecutionStatusRunning, nil); err != nil {
			return failure(node, fmt.Errorf("cannot start execution: %w", err))
		}
	}

	return success(node, env.Run.Input())
}

// executeEnd captures data as the run output.
func executeEnd(_ context.Context, node *models.Node, data any, env Env) Outcome {
	env.Run.SetOutput(data)

	outcome := success(node, data)
	outcome.Terminal = true

	return outcome
}
