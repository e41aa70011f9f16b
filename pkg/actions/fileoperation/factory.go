package fileoperation

import "github.com/dukex/flowrun/pkg/protocol"

type ActionFactory struct {
	root string
}

// NewActionFactory creates a factory whose actions are confined to root.
func NewActionFactory(root string) *ActionFactory {
	return &ActionFactory{root: root}
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(f.root, config)
}

func (f *ActionFactory) ID() string {
	return "file_operation"
}

func (f *ActionFactory) Name() string {
	return "File Operation"
}

func (f *ActionFactory) Description() string {
	return "Reads, writes, appends, deletes or checks files under the configured files root."
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []string{"read", "write", "append", "delete", "exists"},
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Path relative to the files root. Supports templating.",
			},
			"content": map[string]any{
				"description": "Content for write and append. Strings support templating, objects are written as JSON.",
			},
		},
		"required": []string{"operation", "path"},
	}
}
