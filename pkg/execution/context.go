// Package execution holds the mutable per-run state of a flow execution.
//
// A Context is owned by the single goroutine executing its run. Other goroutines
// only ever see Snapshot copies.
package execution

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/dukex/flowrun/pkg/models"
)

// ErrInvalidStateTransition is returned when a transition is attempted out of a terminal state.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// Context is the single source of truth for one run's state.
type Context struct {
	executionID   string
	flowID        string
	variables     map[string]any
	inputData     any
	outputData    any
	currentNodeID string
	executionPath []string
	visits        map[string]int
	status        models.ExecutionStatus
	startedAt     time.Time
	completedAt   *time.Time
	errorDetail   *models.ExecutionError

	now func() time.Time
}

// New creates a pending context with variables seeded from the flow's declarations.
func New(flow *models.Flow, executionID string, inputData any) *Context {
	return newWithClock(flow, executionID, inputData, time.Now)
}

func newWithClock(flow *models.Flow, executionID string, inputData any, now func() time.Time) *Context {
	variables := make(map[string]any, len(flow.Variables))
	for _, decl := range flow.Variables {
		variables[decl.Name] = deepCopy(decl.DefaultValue)
	}

	return &Context{
		executionID: executionID,
		flowID:      flow.ID,
		variables:   variables,
		inputData:   inputData,
		visits:      make(map[string]int),
		status:      models.ExecutionStatusPending,
		startedAt:   now().UTC(),
		now:         now,
	}
}

// ID returns the execution id.
func (c *Context) ID() string { return c.executionID }

// FlowID returns the id of the flow being executed.
func (c *Context) FlowID() string { return c.flowID }

// Input returns the run's input data.
func (c *Context) Input() any { return c.inputData }

// Output returns the data captured by the end node, or nil.
func (c *Context) Output() any { return c.outputData }

// SetOutput captures the run's result.
func (c *Context) SetOutput(data any) { c.outputData = data }

// Status returns the current status.
func (c *Context) Status() models.ExecutionStatus { return c.status }

// ErrorDetail returns the failure detail, or nil.
func (c *Context) ErrorDetail() *models.ExecutionError { return c.errorDetail }

// CurrentNodeID returns the node being executed.
func (c *Context) CurrentNodeID() string { return c.currentNodeID }

// SetCurrentNode marks nodeID as the node being executed.
func (c *Context) SetCurrentNode(nodeID string) { c.currentNodeID = nodeID }

// Variable returns a run-local variable.
func (c *Context) Variable(name string) (any, bool) {
	v, ok := c.variables[name]

	return v, ok
}

// SetVariable sets a run-local variable.
func (c *Context) SetVariable(name string, value any) {
	c.variables[name] = value
}

// Variables returns a copy of the variable map.
func (c *Context) Variables() map[string]any {
	return maps.Clone(c.variables)
}

// RecordVisit appends nodeID to the execution path.
func (c *Context) RecordVisit(nodeID string) {
	c.executionPath = append(c.executionPath, nodeID)
	c.visits[nodeID]++
}

// VisitCount returns how many times nodeID appears in the execution path.
func (c *Context) VisitCount(nodeID string) int {
	return c.visits[nodeID]
}

// Path returns a copy of the execution path.
func (c *Context) Path() []string {
	return slices.Clone(c.executionPath)
}

// Transition moves the run to status. Transitions out of a terminal state and
// back to pending are rejected with ErrInvalidStateTransition.
func (c *Context) Transition(status models.ExecutionStatus, detail *models.ExecutionError) error {
	if c.status.IsTerminal() {
		return fmt.Errorf("%w: execution %s is already %s", ErrInvalidStateTransition, c.executionID, c.status)
	}

	if status == models.ExecutionStatusPending && c.status != models.ExecutionStatusPending {
		return fmt.Errorf("%w: execution %s cannot return to pending", ErrInvalidStateTransition, c.executionID)
	}

	c.status = status

	if detail != nil {
		c.errorDetail = detail
	}

	if status.IsTerminal() {
		completedAt := c.now().UTC()
		if completedAt.Before(c.startedAt) {
			completedAt = c.startedAt
		}

		c.completedAt = &completedAt
	}

	return nil
}

// Snapshot returns a deep copy of the context that is safe to share.
func (c *Context) Snapshot() Snapshot {
	snapshot := Snapshot{
		ExecutionID:   c.executionID,
		FlowID:        c.flowID,
		Status:        c.status,
		Variables:     deepCopyMap(c.variables),
		InputData:     deepCopy(c.inputData),
		OutputData:    deepCopy(c.outputData),
		CurrentNodeID: c.currentNodeID,
		ExecutionPath: slices.Clone(c.executionPath),
		StartedAt:     c.startedAt,
	}

	if c.completedAt != nil {
		completedAt := *c.completedAt
		snapshot.CompletedAt = &completedAt
	}

	if c.errorDetail != nil {
		detail := *c.errorDetail
		snapshot.Error = &detail
	}

	return snapshot
}

// Record converts the context into its persisted form.
func (c *Context) Record() *models.ExecutionRecord {
	return c.Snapshot().Record()
}
