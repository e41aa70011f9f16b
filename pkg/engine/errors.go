package engine

import (
	"errors"

	"github.com/dukex/flowrun/pkg/graph"
	"github.com/dukex/flowrun/pkg/models"
)

var (
	ErrNoStartNode     = graph.ErrNoStartNode
	ErrDeadEnd         = errors.New("node has no outgoing connection to follow")
	ErrCycleDetected   = errors.New("cycle detected")
	ErrNodeExecution   = errors.New("node execution failed")
	ErrUnknownNodeType = errors.New("unknown node type")
)

var errorCodes = map[error]string{
	ErrNoStartNode:     models.ErrorCodeNoStartNode,
	ErrDeadEnd:         models.ErrorCodeDeadEnd,
	ErrCycleDetected:   models.ErrorCodeCycleDetected,
	ErrNodeExecution:   models.ErrorCodeNodeExecution,
	ErrUnknownNodeType: models.ErrorCodeUnknownNodeType,
}

// Sentinel maps a recorded error code back to its sentinel, for callers that
// want errors.Is over a finished execution.
func Sentinel(detail *models.ExecutionError) error {
	if detail == nil {
		return nil
	}

	for err, code := range errorCodes {
		if code == detail.Code {
			return err
		}
	}

	return nil
}

func detail(err error, message, nodeID string) *models.ExecutionError {
	code := models.ErrorCodeNodeExecution

	for sentinel, c := range errorCodes {
		if errors.Is(err, sentinel) {
			code = c

			break
		}
	}

	return &models.ExecutionError{Code: code, Message: message, NodeID: nodeID}
}
