package persistence

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/dukex/flowrun/pkg/models"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrExecutionNotFound indicates no execution record exists for the given id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrInvalidExecutionID indicates an id that cannot be used as a storage key.
	ErrInvalidExecutionID = errors.New("invalid execution id")
)

// ExecutionError wraps execution storage errors with the operation and id.
type ExecutionError struct {
	Op          string // Operation being performed (e.g., "GetByID", "Save", "Append")
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for execution errors.
func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:          op,
		ExecutionID: executionID,
		Err:         err,
	}
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// SortLogs orders entries by timestamp, then by sequence.
func SortLogs(entries []*models.ExecutionLogEntry) {
	slices.SortStableFunc(entries, func(a, b *models.ExecutionLogEntry) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}

		return cmp.Compare(a.Sequence, b.Sequence)
	})
}

// SortExecutions orders records by start time, most recent first.
func SortExecutions(records []*models.ExecutionRecord) {
	slices.SortStableFunc(records, func(a, b *models.ExecutionRecord) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
}
