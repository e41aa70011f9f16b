// Package transform provides the data_transform action using Go templates.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

var ErrMissingExpression = errors.New("missing transform expression")

type Action struct {
	Expression string
}

func NewAction(config map[string]any) (*Action, error) {
	expression, _ := config["expression"].(string)
	if expression == "" {
		return nil, ErrMissingExpression
	}

	if _, err := template.Parse(expression); err != nil {
		return nil, err
	}

	return &Action{Expression: expression}, nil
}

// Execute renders the expression over the run scope; JSON, numbers and booleans are decoded.
func (a *Action) Execute(ctx context.Context, input protocol.ActionInput, logger *slog.Logger) (any, error) {
	logger = logger.With("module", "data_transform_action")
	logger.DebugContext(ctx, "Executing TransformAction")

	result, err := template.RenderWithContext(a.Expression, input.Scope())
	if err != nil {
		return nil, fmt.Errorf("transformation failed: %w", err)
	}

	return result, nil
}
