package notification

import (
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/protocol"
)

// ActionFactory creates notification actions that publish through publisher.
type ActionFactory struct {
	publisher eventbus.Publisher
}

func NewActionFactory(publisher eventbus.Publisher) *ActionFactory {
	return &ActionFactory{publisher: publisher}
}

func (*ActionFactory) ID() string {
	return "notification"
}

func (*ActionFactory) Name() string {
	return "Notification"
}

func (*ActionFactory) Description() string {
	return "Publishes a message on a topic. Supports templating for dynamic content."
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewAction(f.publisher, config)
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message to publish. Supports templating for dynamic content.",
				"examples": []string{
					"Order {{ .input.order_id }} processed",
					"Received {{ len .data.items }} records at {{ now }}",
				},
			},
			"topic": map[string]any{
				"type":    "string",
				"default": "flowrun.notifications",
			},
			"level": map[string]any{
				"type":    "string",
				"default": "info",
				"enum":    []string{"debug", "info", "warn", "error"},
			},
		},
		"required": []string{"message"},
	}
}
