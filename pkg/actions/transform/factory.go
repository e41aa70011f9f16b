package transform

import "github.com/dukex/flowrun/pkg/protocol"

// ActionFactory is the factory for creating data_transform actions.
type ActionFactory struct{}

// NewActionFactory creates a new instance of ActionFactory.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// Create creates a new Action instance based on the provided configuration.
func (h *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

// ID returns the actionType served by this factory.
func (h *ActionFactory) ID() string {
	return "data_transform"
}

// Name returns the name of the action.
func (h *ActionFactory) Name() string {
	return "Transform"
}

// Description returns a brief description of the Transform action.
func (h *ActionFactory) Description() string {
	return "Transforms data using a specified expression."
}

// Schema returns the JSON schema for the Transform action configuration.
func (h *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"format":      "template",
				"description": "Go template expression over .input, .data and .variables. JSON output is decoded.",
				"examples": []string{
					"{{ .data.name }}",
					"{\"fullName\": \"{{ .input.firstName }} {{ .input.lastName }}\", \"isActive\": {{ eq .data.status \"active\" }}}",
					"{{ len .data.items }}",
				},
			},
		},
		"required": []string{"expression"},
	}
}
