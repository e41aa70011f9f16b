package execution

import (
	"time"

	"github.com/dukex/flowrun/pkg/models"
)

// Snapshot is a point-in-time copy of a run's state.
type Snapshot struct {
	ExecutionID   string                 `json:"execution_id"`
	FlowID        string                 `json:"flow_id"`
	Status        models.ExecutionStatus `json:"status"`
	Variables     map[string]any         `json:"variables"`
	InputData     any                    `json:"input_data,omitempty"`
	OutputData    any                    `json:"output_data,omitempty"`
	CurrentNodeID string                 `json:"current_node_id,omitempty"`
	ExecutionPath []string               `json:"execution_path"`
	StartedAt     time.Time              `json:"started_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	Error         *models.ExecutionError `json:"error,omitempty"`
}

// Duration returns the elapsed run time; for unfinished runs it is measured until now.
func (s Snapshot) Duration() time.Duration {
	if s.CompletedAt != nil {
		return s.CompletedAt.Sub(s.StartedAt)
	}

	return time.Since(s.StartedAt)
}

// Record converts the snapshot into an execution record.
func (s Snapshot) Record() *models.ExecutionRecord {
	record := &models.ExecutionRecord{
		ID:            s.ExecutionID,
		FlowID:        s.FlowID,
		Status:        s.Status,
		InputData:     s.InputData,
		OutputData:    s.OutputData,
		Error:         s.Error,
		Variables:     s.Variables,
		ExecutionPath: s.ExecutionPath,
		StartedAt:     s.StartedAt,
		CompletedAt:   s.CompletedAt,
	}

	if s.CompletedAt != nil {
		record.DurationMs = s.CompletedAt.Sub(s.StartedAt).Milliseconds()
	}

	return record
}

// FromRecord rebuilds a snapshot from a persisted record.
func FromRecord(record *models.ExecutionRecord) Snapshot {
	return Snapshot{
		ExecutionID:   record.ID,
		FlowID:        record.FlowID,
		Status:        record.Status,
		Variables:     record.Variables,
		InputData:     record.InputData,
		OutputData:    record.OutputData,
		ExecutionPath: record.ExecutionPath,
		StartedAt:     record.StartedAt,
		CompletedAt:   record.CompletedAt,
		Error:         record.Error,
	}
}
