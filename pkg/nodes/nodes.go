// Package nodes implements one executor per node kind.
//
// Executors report failures inside the returned Outcome and never return errors
// to the traversal loop.
package nodes

import (
	"context"
	"log/slog"

	"github.com/dukex/flowrun/pkg/execution"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/template"
)

// Env is what an executor may touch while running one node of one execution.
type Env struct {
	Run *execution.Context
	// Cancel is closed when the execution is cancelled or the process shuts down.
	Cancel <-chan struct{}
	Logger *slog.Logger
}

// Scope exposes the run to templates evaluated by nodeID over data.
func (e Env) Scope(nodeID string, data any) template.Scope {
	return template.Scope{
		ExecutionID: e.Run.ID(),
		FlowID:      e.Run.FlowID(),
		NodeID:      nodeID,
		Input:       e.Run.Input(),
		Data:        data,
		Variables:   e.Run.Variables(),
	}
}

// Outcome is the result of one node invocation plus the routing hints the
// traversal loop needs.
type Outcome struct {
	Result models.NodeExecutionResult
	// Branch is the handle selected by a condition node.
	Branch string
	// Fallback is the condition node's defaultPath.
	Fallback string
	// Terminal stops the traversal after this node.
	Terminal bool
}

type Executor interface {
	Execute(ctx context.Context, node *models.Node, data any, env Env) Outcome
}

type ExecutorFunc func(ctx context.Context, node *models.Node, data any, env Env) Outcome

func (f ExecutorFunc) Execute(ctx context.Context, node *models.Node, data any, env Env) Outcome {
	return f(ctx, node, data, env)
}

// Registry maps every node kind to its executor.
type Registry map[models.NodeType]Executor

// NewRegistry builds the executor table. Action nodes dispatch through actions.
func NewRegistry(actions ActionCreator) Registry {
	return Registry{
		models.NodeTypeStart:     ExecutorFunc(executeStart),
		models.NodeTypeEnd:       ExecutorFunc(executeEnd),
		models.NodeTypeCondition: ExecutorFunc(executeCondition),
		models.NodeTypeAction:    NewActionExecutor(actions),
		models.NodeTypeDelay:     ExecutorFunc(executeDelay),
		models.NodeTypeVariable:  ExecutorFunc(executeVariable),
	}
}

func (r Registry) Lookup(nodeType models.NodeType) (Executor, bool) {
	executor, ok := r[nodeType]

	return executor, ok
}

func success(node *models.Node, output any) Outcome {
	return Outcome{
		Result: models.NodeExecutionResult{
			NodeID:     node.ID,
			Success:    true,
			OutputData: output,
		},
	}
}

func failure(node *models.Node, err error) Outcome {
	return Outcome{
		Result: models.NodeExecutionResult{
			NodeID:  node.ID,
			Success: false,
			Error:   err.Error(),
		},
	}
}
