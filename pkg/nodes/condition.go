package nodes

import (
	"context"
	"fmt"

	"github.com/dukex/flowrun/pkg/models"
)

// executeCondition selects the true or false handle; data passes through.
func executeCondition(_ context.Context, node *models.Node, data any, env Env) Outcome {
	set, err := parseRuleSet(node.Config)
	if err != nil {
		return failure(node, err)
	}

	ok, err := set.Evaluate(Sources{
		Input:     env.Run.Input(),
		Variables: env.Run.Variables(),
		Data:      data,
	})
	if err != nil {
		return failure(node, fmt.Errorf("condition evaluation failed: %w", err))
	}

	outcome := success(node, data)
	outcome.Branch = models.HandleFalse
	outcome.Fallback = set.DefaultPath

	if ok {
		outcome.Branch = models.HandleTrue
	}

	return outcome
}
