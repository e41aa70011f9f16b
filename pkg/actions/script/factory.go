package script

import "github.com/dukex/flowrun/pkg/protocol"

type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

func (f *ActionFactory) ID() string {
	return "custom_script"
}

func (f *ActionFactory) Name() string {
	return "Custom Script"
}

func (f *ActionFactory) Description() string {
	return "Evaluates a template script with helper functions over the run input, current data and variables."
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"script": map[string]any{
				"type":   "string",
				"format": "code",
				"examples": []string{
					`{"total": {{ add .data.subtotal .data.tax }}, "customer": "{{ upper .input.name }}"}`,
				},
			},
			"language": map[string]any{
				"type":    "string",
				"enum":    []string{"template"},
				"default": "template",
			},
		},
		"required": []string{"script"},
	}
}
