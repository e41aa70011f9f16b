package execution

// deepCopy copies the JSON-shaped values flows carry around (maps, slices, scalars).
// Other reference types are shared.
func deepCopy(v any) any {
	switch value := v.(type) {
	case map[string]any:
		return deepCopyMap(value)
	case []any:
		copied := make([]any, len(value))
		for i, item := range value {
			copied[i] = deepCopy(item)
		}

		return copied
	case []string:
		return append([]string(nil), value...)
	default:
		return v
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	copied := make(map[string]any, len(m))
	for k, v := range m {
		copied[k] = deepCopy(v)
	}

	return copied
}
