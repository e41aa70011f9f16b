package registry

// Describer is implemented by factories that publish metadata about their configuration.
type Describer interface {
	Name() string
	Description() string
	Schema() map[string]any
}

// ActionDescription is the catalog entry for one registered action type.
type ActionDescription struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// Describe lists every registered action type with whatever metadata its factory exposes.
func (r *Registry) Describe() []ActionDescription {
	types := r.ActionTypes()
	descriptions := make([]ActionDescription, 0, len(types))

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, actionType := range types {
		description := ActionDescription{Type: actionType, Name: actionType}

		if d, ok := r.actionFactories[actionType].(Describer); ok {
			description.Name = d.Name()
			description.Description = d.Description()
			description.Schema = d.Schema()
		}

		descriptions = append(descriptions, description)
	}

	return descriptions
}
