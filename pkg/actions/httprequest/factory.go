package httprequest

import (
	"github.com/dukex/flowrun/pkg/protocol"
)

// ActionFactory creates http_request actions.
type ActionFactory struct{}

// NewActionFactory creates a new ActionFactory.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// Create creates a new Action from the node configuration.
func (h *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

// ID returns the actionType this factory serves.
func (h *ActionFactory) ID() string {
	return "http_request"
}

// Name returns the name of the action.
func (h *ActionFactory) Name() string {
	return "HTTP Request"
}

// Description returns a brief description of the action.
func (h *ActionFactory) Description() string {
	return "Performs an HTTP request to a specified URL with optional headers and body."
}

// Schema returns the JSON schema for configuring this action.
func (h *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to send the HTTP request to. Supports templating.",
				"examples": []string{
					"https://api.example.com/users",
					"https://api.example.com/users/{{ .input.user_id }}",
				},
			},
			"method": map[string]any{
				"type":    "string",
				"default": "GET",
				"enum":    []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"description":          "HTTP headers to include in the request. Values support templating.",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"description": "Request body. Strings support templating, objects are sent as JSON.",
			},
			"timeoutMs": map[string]any{
				"type":    "integer",
				"default": 30000, //nolint:mnd // default timeout
				"minimum": 1,
			},
			"retry": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "integer", "minimum": 1, "maximum": 5}, //nolint:mnd // bound
					"delayMs":  map[string]any{"type": "integer", "minimum": 0},
				},
			},
		},
		"required": []string{"url"},
	}
}
