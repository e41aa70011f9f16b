// Package template renders Go text/template strings used in node and action configuration.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// Scope is the data a configuration template can reference.
type Scope struct {
	ExecutionID string
	FlowID      string
	NodeID      string
	Input       any
	Data        any
	Variables   map[string]any
}

// RenderWithContext renders input against the run scope. Templates see
// .input, .data, .variables (alias .vars), .env and .execution.
func RenderWithContext(input string, scope Scope) (any, error) {
	return Render(input, scope.templateData())
}

// RenderString renders input and formats the result as a string.
func RenderString(input string, scope Scope) (string, error) {
	if !NeedsTemplating(input) {
		return input, nil
	}

	tmpl, err := Parse(input)
	if err != nil {
		return "", err
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, scope.templateData())
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", input, err)
	}

	return buf.String(), nil
}

func (s Scope) templateData() map[string]any {
	return map[string]any{
		"input":     s.Input,
		"data":      s.Data,
		"variables": s.Variables,
		"vars":      s.Variables,
		"env":       getEnvVars(),
		"execution": map[string]any{
			"id":      s.ExecutionID,
			"flow_id": s.FlowID,
			"node_id": s.NodeID,
		},
	}
}

// Parse compiles templateStr with the helper functions available to flows.
func Parse(templateStr string) (*template.Template, error) {
	tmpl, err := template.
		New("flowrun").
		Funcs(funcs()).
		Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	return tmpl, nil
}

// Render executes templateStr against data and decodes JSON, numeric and boolean results.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := Parse(templateStr)
	if err != nil {
		return nil, err
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return Decode(buf.String())
}

// Decode interprets rendered text: JSON objects and arrays, numbers and booleans
// are converted, anything else is returned as a trimmed string.
func Decode(rendered string) (any, error) {
	result := strings.TrimSpace(rendered)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return nil, fmt.Errorf("failed to parse json '%s': %w", result, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"now": func() string {
			return time.Now().UTC().Format(time.RFC3339)
		},
		"rand": func(max int) int {
			if max <= 0 {
				return 0
			}

			num := make([]byte, 1)

			_, err := rand.Read(num)
			if err != nil {
				return 0
			}

			return int(num[0]) % max
		},
		"json": func(v any) (string, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}

			return string(b), nil
		},
		"upper":    strings.ToUpper,
		"lower":    strings.ToLower,
		"trim":     strings.TrimSpace,
		"replace":  strings.ReplaceAll,
		"split":    strings.Split,
		"join":     joinAny,
		"contains": strings.Contains,
		"default": func(fallback, v any) any {
			if v == nil || v == "" {
				return fallback
			}

			return v
		},
		"add": func(a, b any) float64 { return toFloat(a) + toFloat(b) },
		"sub": func(a, b any) float64 { return toFloat(a) - toFloat(b) },
		"mul": func(a, b any) float64 { return toFloat(a) * toFloat(b) },
		"div": func(a, b any) (float64, error) {
			d := toFloat(b)
			if d == 0 {
				return 0, ErrDivisionByZero
			}

			return toFloat(a) / d, nil
		},
	}
}

func joinAny(items any, sep string) string {
	switch v := items.(type) {
	case []string:
		return strings.Join(v, sep)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}

		return strings.Join(parts, sep)
	default:
		return fmt.Sprint(items)
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)

		return f
	default:
		return 0
	}
}

// getEnvVars returns environment variables as a map.
func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
