// Package web provides HTTP request and response types for the execution API.
package web

import (
	"github.com/dukex/flowrun/pkg/execution"
	"github.com/dukex/flowrun/pkg/graph"
	"github.com/dukex/flowrun/pkg/models"
)

// StartExecutionRequest is the body of POST /flows/:id/executions.
type StartExecutionRequest struct {
	Input       any    `json:"input"`
	ExecutionID string `json:"execution_id,omitempty" validate:"omitempty,max=128,printascii"`
	// Wait blocks the request until the execution is terminal.
	Wait bool `json:"wait,omitempty"`
}

type StartExecutionResponse struct {
	ExecutionID string                 `json:"execution_id"`
	FlowID      string                 `json:"flow_id"`
	Status      models.ExecutionStatus `json:"status"`
}

type ValidateFlowResponse struct {
	Valid      bool              `json:"valid"`
	Violations []graph.Violation `json:"violations"`
}

// ExecutionResponse is a snapshot with its elapsed time.
type ExecutionResponse struct {
	execution.Snapshot

	DurationMs int64 `json:"duration_ms"`
}

func NewExecutionResponse(snapshot execution.Snapshot) ExecutionResponse {
	return ExecutionResponse{
		Snapshot:   snapshot,
		DurationMs: snapshot.Duration().Milliseconds(),
	}
}

type LogsResponse struct {
	ExecutionID string                      `json:"execution_id"`
	Logs        []*models.ExecutionLogEntry `json:"logs"`
}

type FlowSummary struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Status      models.FlowStatus `json:"status"`
	Schedule    string            `json:"schedule,omitempty"`
	NodeCount   int               `json:"node_count"`
}

func NewFlowSummary(flow *models.Flow) FlowSummary {
	return FlowSummary{
		ID:          flow.ID,
		Name:        flow.Name,
		Description: flow.Description,
		Status:      flow.Status,
		Schedule:    flow.Schedule,
		NodeCount:   len(flow.Nodes),
	}
}
