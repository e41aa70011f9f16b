// Package script provides the custom_script action: a Go template evaluated over the run scope.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

var (
	ErrMissingScript       = errors.New("missing script")
	ErrUnsupportedLanguage = errors.New("unsupported script language")
)

type Action struct {
	Script string
}

func NewAction(config map[string]any) (*Action, error) {
	script, _ := config["script"].(string)
	if strings.TrimSpace(script) == "" {
		return nil, ErrMissingScript
	}

	if language, _ := config["language"].(string); language != "" && language != "template" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	if _, err := template.Parse(script); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}

	return &Action{Script: script}, nil
}

// Execute runs the script. Output that looks like JSON, a number or a boolean is
// decoded; anything else, including malformed JSON, is returned as text.
func (a *Action) Execute(ctx context.Context, input protocol.ActionInput, logger *slog.Logger) (any, error) {
	logger = logger.With("module", "custom_script_action")

	rendered, err := template.RenderString(a.Script, input.Scope())
	if err != nil {
		return nil, fmt.Errorf("script failed: %w", err)
	}

	result, err := template.Decode(rendered)
	if err != nil {
		logger.DebugContext(ctx, "script output is not valid JSON, returning text", "error", err)

		return strings.TrimSpace(rendered), nil
	}

	return result, nil
}
