package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/template"
)

var (
	ErrMissingVariableName = errors.New("variable node has no variableName")
	ErrUnknownOperation    = errors.New("unknown variable operation")
	ErrNotNumeric          = errors.New("variable is not numeric")
	ErrNotAppendable       = errors.New("variable cannot be appended to")
)

// executeVariable applies set, get, increment, decrement or append to one run
// variable. get outputs the value; the others pass data through.
func executeVariable(_ context.Context, node *models.Node, data any, env Env) Outcome {
	name := node.ConfigString("variableName")
	if name == "" {
		return failure(node, ErrMissingVariableName)
	}

	operation := node.ConfigString("operation")
	if operation == "" {
		operation = "set"
	}

	if operation == "get" {
		value, _ := env.Run.Variable(name)

		return success(node, value)
	}

	value, err := variableValue(node, data, env)
	if err != nil {
		return failure(node, err)
	}

	current, _ := env.Run.Variable(name)

	switch operation {
	case "set":
		env.Run.SetVariable(name, value)
	case "increment", "decrement":
		next, err := step(current, value, operation == "decrement")
		if err != nil {
			return failure(node, fmt.Errorf("%s %s: %w", operation, name, err))
		}

		env.Run.SetVariable(name, next)
	case "append":
		next, err := appendValue(current, value)
		if err != nil {
			return failure(node, fmt.Errorf("append %s: %w", name, err))
		}

		env.Run.SetVariable(name, next)
	default:
		return failure(node, fmt.Errorf("%w: %s", ErrUnknownOperation, operation))
	}

	return success(node, data)
}

// variableValue renders string values as templates and decodes the result.
func variableValue(node *models.Node, data any, env Env) (any, error) {
	value := node.Config["value"]

	s, ok := value.(string)
	if !ok || !template.NeedsTemplating(s) {
		return value, nil
	}

	rendered, err := template.RenderWithContext(s, env.Scope(node.ID, data))
	if err != nil {
		return nil, fmt.Errorf("failed to render value: %w", err)
	}

	return rendered, nil
}

func step(current, amount any, negative bool) (float64, error) {
	base := 0.0

	if current != nil {
		n, ok := toNumber(current)
		if !ok {
			return 0, fmt.Errorf("%w: %v", ErrNotNumeric, current)
		}

		base = n
	}

	delta := 1.0

	if amount != nil {
		n, ok := toNumber(amount)
		if !ok {
			return 0, fmt.Errorf("%w: %v", ErrNotNumeric, amount)
		}

		delta = n
	}

	if negative {
		delta = -delta
	}

	return base + delta, nil
}

func appendValue(current, value any) (any, error) {
	switch c := current.(type) {
	case nil:
		return []any{value}, nil
	case []any:
		next := make([]any, len(c), len(c)+1)
		copy(next, c)

		return append(next, value), nil
	case string:
		return c + fmt.Sprint(value), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotAppendable, current)
	}
}
