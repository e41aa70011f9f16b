package graph

import (
	"errors"
	"strings"
)

var (
	// ErrValidation indicates a flow violates one or more graph invariants.
	ErrValidation = errors.New("flow validation failed")

	// ErrNoStartNode indicates a flow has no start node.
	ErrNoStartNode = errors.New("flow has no start node")
)

// Violation codes.
const (
	CodeNilFlow            = "NIL_FLOW"
	CodeNoStartNode        = "NO_START_NODE"
	CodeMultipleStartNodes = "MULTIPLE_START_NODES"
	CodeNoEndNode          = "NO_END_NODE"
	CodeDuplicateNodeID    = "DUPLICATE_NODE_ID"
	CodeInvalidNode        = "INVALID_NODE"
	CodeInvalidConnection  = "INVALID_CONNECTION"
	CodeUnknownSource      = "UNKNOWN_SOURCE_NODE"
	CodeUnknownTarget      = "UNKNOWN_TARGET_NODE"
	CodeInvalidVariable    = "INVALID_VARIABLE"
)

// Violation is a single broken invariant.
type Violation struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	NodeID       string `json:"node_id,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// ValidationError carries every violation found in a flow.
type ValidationError struct {
	FlowID     string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		messages = append(messages, v.Message)
	}

	return "flow " + e.FlowID + " is invalid: " + strings.Join(messages, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// IsValidationError checks if an error reports graph invariant violations.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}
