package models

import "time"

// ExecutionStatus defines the possible states of an execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// Error codes carried by ExecutionError.
const (
	ErrorCodeNoStartNode     = "NO_START_NODE"
	ErrorCodeDeadEnd         = "DEAD_END"
	ErrorCodeCycleDetected   = "CYCLE_DETECTED"
	ErrorCodeNodeExecution   = "NODE_EXECUTION_ERROR"
	ErrorCodeUnknownNodeType = "UNKNOWN_NODE_TYPE"
)

// ExecutionError is the structured error detail of a failed execution.
type ExecutionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	NodeID  string `json:"node_id,omitempty"`
}

func (e *ExecutionError) Error() string {
	if e.NodeID != "" {
		return e.Code + " at node " + e.NodeID + ": " + e.Message
	}

	return e.Code + ": " + e.Message
}

// ExecutionRecord is the persisted form of an execution.
type ExecutionRecord struct {
	ID            string          `json:"id"`
	FlowID        string          `json:"flow_id"`
	Status        ExecutionStatus `json:"status"`
	InputData     any             `json:"input_data,omitempty"`
	OutputData    any             `json:"output_data,omitempty"`
	Error         *ExecutionError `json:"error,omitempty"`
	Variables     map[string]any  `json:"variables,omitempty"`
	ExecutionPath []string        `json:"execution_path"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	DurationMs    int64           `json:"duration_ms"`
}

// LogLevel is the severity of an execution log entry.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ExecutionLogEntry is one append-only line of an execution's log trail.
// Entries of one execution are ordered by Timestamp, ties broken by Sequence.
type ExecutionLogEntry struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	NodeID      *string        `json:"node_id,omitempty"` // nil for execution-level lines
	Level       LogLevel       `json:"level"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Sequence    int64          `json:"sequence"`
}

// NodeExecutionResult represents the result of one node invocation.
type NodeExecutionResult struct {
	NodeID          string `json:"node_id"`
	Success         bool   `json:"success"`
	OutputData      any    `json:"output_data,omitempty"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}
