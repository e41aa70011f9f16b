package supervisor

import (
	"errors"

	"github.com/dukex/flowrun/pkg/execution"
)

var (
	ErrInvalidFlow        = errors.New("invalid flow")
	ErrFlowNotPublished   = errors.New("flow is not published")
	ErrInvalidInput       = errors.New("input does not match the flow input schema")
	ErrNotFound           = errors.New("execution not found")
	ErrDuplicateExecution = errors.New("execution id already in use")

	ErrInvalidStateTransition = execution.ErrInvalidStateTransition
)

// RunError ties a supervisor failure to the execution it concerns.
type RunError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *RunError) Error() string {
	if e.ExecutionID == "" {
		return e.Op + ": " + e.Err.Error()
	}

	return e.Op + " " + e.ExecutionID + ": " + e.Err.Error()
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newRunError(op, executionID string, err error) error {
	return &RunError{Op: op, ExecutionID: executionID, Err: err}
}
