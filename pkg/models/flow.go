// Package models defines the core domain models for flow definitions and their executions.
package models

import "time"

// FlowStatus represents the publish state of a flow.
type FlowStatus string

const (
	FlowStatusDraft       FlowStatus = "draft"       // Editable, not executable
	FlowStatusPublished   FlowStatus = "published"   // Current active, executable
	FlowStatusUnpublished FlowStatus = "unpublished" // Historical, not executable
)

// Executable reports whether runs may be started for a flow in this state.
func (s FlowStatus) Executable() bool {
	return s == FlowStatusPublished
}

// Flow is a graph of typed nodes joined by connections. It is read-only to the engine.
type Flow struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Status      FlowStatus            `json:"status"`
	Nodes       []*Node               `json:"nodes"`
	Connections []*Connection         `json:"connections"`
	Variables   []VariableDeclaration `json:"variables,omitempty"`
	InputSchema map[string]any        `json:"input_schema,omitempty"` // JSON Schema the input must satisfy
	Schedule    string                `json:"schedule,omitempty"`     // Cron expression for scheduled runs
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// VariableDeclaration declares a flow-level variable and the value it starts each run with.
type VariableDeclaration struct {
	Name         string        `json:"name"          validate:"required"`
	Type         string        `json:"type,omitempty"`
	DefaultValue any           `json:"default_value,omitempty"`
	Scope        VariableScope `json:"scope,omitempty"`
}

// VariableScope is kept for compatibility with editor-authored flows. Both scopes
// resolve into the same run-local variable map.
type VariableScope string

const (
	VariableScopeLocal  VariableScope = "local"
	VariableScopeGlobal VariableScope = "global"
)
