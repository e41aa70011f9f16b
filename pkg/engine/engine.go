// Package engine walks a flow graph node by node for one execution.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/execution"
	"github.com/dukex/flowrun/pkg/graph"
	"github.com/dukex/flowrun/pkg/metrics"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/nodes"
	"github.com/dukex/flowrun/pkg/otelhelper"
	"github.com/dukex/flowrun/pkg/recorder"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxRevisits = 1
	DefaultMaxSteps    = 10000

	maxSummaryLength = 512
)

type Engine struct {
	executors nodes.Registry
	recorder  *recorder.Recorder
	publisher eventbus.Publisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger

	maxRevisits int
	maxSteps    int
}

type Option func(*Engine)

// WithMaxRevisits sets how many times a node may already appear in the path
// before entering it again fails the run. 1 forbids revisits.
func WithMaxRevisits(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRevisits = n
		}
	}
}

// WithMaxSteps caps the node invocations of one run.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

func WithPublisher(publisher eventbus.Publisher) Option {
	return func(e *Engine) {
		if publisher != nil {
			e.publisher = publisher
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

func New(executors nodes.Registry, rec *recorder.Recorder, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		executors:   executors,
		recorder:    rec,
		publisher:   eventbus.NopPublisher{},
		tracer:      otelhelper.DefaultTracer(),
		logger:      logger.With("module", "engine"),
		maxRevisits: DefaultMaxRevisits,
		maxSteps:    DefaultMaxSteps,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Job is one execution handed to the engine.
type Job struct {
	Flow *models.Flow
	Run  *execution.Context
	// Trail continues the log trail the caller may have started; nil starts a new one.
	Trail *recorder.Trail
	// Cancel is closed to request cancellation. It is observed between nodes.
	Cancel <-chan struct{}
	// Observe, when set, receives a snapshot after every node and at the end.
	Observe func(execution.Snapshot)
}

// runState is the per-run bookkeeping of one Run call.
type runState struct {
	Job

	logger   *slog.Logger
	steps    int
	lastNode string
}

// Run drives the execution to a terminal state and returns its final snapshot.
func (e *Engine) Run(ctx context.Context, job Job) execution.Snapshot {
	if job.Trail == nil {
		job.Trail = e.recorder.Trail(job.Run.ID())
	}

	if job.Cancel == nil {
		job.Cancel = make(chan struct{})
	}

	state := &runState{
		Job:    job,
		logger: e.logger.With("execution_id", job.Run.ID(), "flow_id", job.Run.FlowID()),
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "execution.run",
		attribute.String(otelhelper.ExecutionIDKey, job.Run.ID()),
		attribute.String(otelhelper.FlowIDKey, job.Run.FlowID()),
		attribute.String(otelhelper.FlowNameKey, job.Flow.Name),
	)
	defer span.End()

	e.publish(ctx, events.ExecutionStarted{
		BaseEvent: events.NewBaseEvent(events.ExecutionStartedEvent, job.Run.ID(), job.Run.FlowID()),
		InputData: job.Run.Input(),
	})

	e.metrics.ExecutionStarted()
	state.logger.InfoContext(ctx, "execution started")
	job.Trail.Info(ctx, "", "execution started", nil)

	e.traverse(ctx, state)

	snapshot := job.Run.Snapshot()

	span.SetAttributes(
		attribute.String(otelhelper.ExecutionStatus, string(snapshot.Status)),
		attribute.Int(otelhelper.NodesExecutedKey, state.steps),
	)

	if snapshot.Error != nil {
		otelhelper.SetError(span, snapshot.Error)
	}

	return snapshot
}

func (e *Engine) traverse(ctx context.Context, state *runState) {
	run := state.Run

	node, err := graph.StartNode(state.Flow)
	if err != nil {
		e.fail(ctx, state, detail(ErrNoStartNode, "flow has no start node", ""))

		return
	}

	data := run.Input()

	for {
		if e.cancelRequested(ctx, state) {
			e.cancel(ctx, state)

			return
		}

		if run.VisitCount(node.ID) >= e.maxRevisits {
			e.fail(ctx, state, detail(ErrCycleDetected,
				fmt.Sprintf("node %s already visited %d time(s)", node.ID, run.VisitCount(node.ID)), node.ID))

			return
		}

		if state.steps >= e.maxSteps {
			e.fail(ctx, state, detail(ErrCycleDetected,
				fmt.Sprintf("execution exceeded %d steps", e.maxSteps), node.ID))

			return
		}

		outcome, ok := e.invoke(ctx, state, node, data)
		if !ok {
			return
		}

		data = outcome.Result.OutputData

		if outcome.Terminal {
			e.complete(ctx, state)

			return
		}

		if e.cancelRequested(ctx, state) {
			e.cancel(ctx, state)

			return
		}

		next, err := nextNode(state.Flow, node, outcome)
		if err != nil {
			e.fail(ctx, state, detail(err, err.Error(), node.ID))

			return
		}

		node = next
	}
}

// invoke runs one node. It returns false when the run has already been failed.
func (e *Engine) invoke(ctx context.Context, state *runState, node *models.Node, data any) (nodes.Outcome, bool) {
	run := state.Run
	statusBefore := run.Status()

	run.SetCurrentNode(node.ID)
	run.RecordVisit(node.ID)
	state.steps++
	state.lastNode = node.ID

	visit := run.VisitCount(node.ID)
	e.observe(state)

	logger := state.logger.With("node_id", node.ID, "node_type", string(node.Type))

	state.Trail.Info(ctx, node.ID, "entering node", map[string]any{
		"node_type": string(node.Type),
		"visit":     visit,
	})
	e.publish(ctx, events.NodeEntered{
		BaseEvent: events.NewBaseEvent(events.NodeEnteredEvent, run.ID(), run.FlowID()),
		NodeID:    node.ID,
		NodeType:  node.Type,
		Visit:     visit,
	})

	executor, ok := e.executors.Lookup(node.Type)
	if !ok {
		e.fail(ctx, state, detail(ErrUnknownNodeType, fmt.Sprintf("no executor for node type %q", node.Type), node.ID))

		return nodes.Outcome{}, false
	}

	nodeCtx, span := otelhelper.StartSpan(ctx, e.tracer, "node.execute",
		attribute.String(otelhelper.ExecutionIDKey, run.ID()),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
		attribute.Int(otelhelper.NodeVisitKey, visit),
	)

	started := time.Now()
	outcome := executor.Execute(nodeCtx, node, data, nodes.Env{
		Run:    run,
		Cancel: state.Cancel,
		Logger: logger,
	})
	elapsed := time.Since(started)
	outcome.Result.NodeID = node.ID
	outcome.Result.ExecutionTimeMs = elapsed.Milliseconds()

	status := "success"
	if !outcome.Result.Success {
		status = "error"
		otelhelper.SetError(span, fmt.Errorf("%w: %s", ErrNodeExecution, outcome.Result.Error))
	} else if outcome.Branch != "" {
		span.SetAttributes(attribute.String(otelhelper.BranchKey, outcome.Branch))
	}

	span.End()
	e.metrics.NodeExecuted(string(node.Type), status, elapsed)

	if outcome.Result.Success {
		fields := map[string]any{
			"duration_ms": outcome.Result.ExecutionTimeMs,
			"output":      summarize(outcome.Result.OutputData),
		}
		if outcome.Branch != "" {
			fields["branch"] = outcome.Branch
		}

		state.Trail.Info(ctx, node.ID, "node completed", fields)
	} else {
		state.Trail.Error(ctx, node.ID, "node failed", map[string]any{
			"duration_ms": outcome.Result.ExecutionTimeMs,
			"error":       outcome.Result.Error,
		})
	}

	e.publish(ctx, events.NodeCompleted{
		BaseEvent:    events.NewBaseEvent(events.NodeCompletedEvent, run.ID(), run.FlowID()),
		NodeID:       node.ID,
		NodeType:     node.Type,
		Success:      outcome.Result.Success,
		Branch:       outcome.Branch,
		OutputData:   outcome.Result.OutputData,
		ErrorMessage: outcome.Result.Error,
		DurationMs:   outcome.Result.ExecutionTimeMs,
	})

	if !outcome.Result.Success {
		logger.WarnContext(ctx, "node failed", "error", outcome.Result.Error)
		e.fail(ctx, state, detail(ErrNodeExecution, outcome.Result.Error, node.ID))

		return outcome, false
	}

	if run.Status() != statusBefore {
		state.Trail.Save(ctx, run.Record())
	}

	e.observe(state)

	return outcome, true
}

// nextNode follows the first matching outgoing connection. Condition nodes only
// follow connections tagged with the selected branch, falling back to the
// defaultPath handle and then to a connection targeting the defaultPath node.
func nextNode(flow *models.Flow, node *models.Node, outcome nodes.Outcome) (*models.Node, error) {
	connections := graph.OutgoingConnections(flow, node.ID)

	if node.Type == models.NodeTypeCondition {
		matched := graph.ConnectionsByHandle(connections, outcome.Branch)

		if len(matched) == 0 && outcome.Fallback != "" {
			matched = graph.ConnectionsByHandle(connections, outcome.Fallback)

			if len(matched) == 0 {
				for _, conn := range connections {
					if conn.TargetNodeID == outcome.Fallback {
						matched = append(matched, conn)
					}
				}
			}
		}

		if len(matched) == 0 {
			return nil, fmt.Errorf("%w: no connection for branch %q", ErrDeadEnd, outcome.Branch)
		}

		connections = matched
	}

	if len(connections) == 0 {
		return nil, fmt.Errorf("%w: node %s", ErrDeadEnd, node.ID)
	}

	next, ok := graph.FindNode(flow, connections[0].TargetNodeID)
	if !ok {
		return nil, fmt.Errorf("%w: target %s does not exist", ErrDeadEnd, connections[0].TargetNodeID)
	}

	return next, nil
}

func (e *Engine) cancelRequested(ctx context.Context, state *runState) bool {
	select {
	case <-state.Cancel:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (e *Engine) complete(ctx context.Context, state *runState) {
	ctx = context.WithoutCancel(ctx)
	run := state.Run

	if !e.finish(ctx, state, models.ExecutionStatusCompleted, nil) {
		return
	}

	snapshot := run.Snapshot()

	state.logger.InfoContext(ctx, "execution completed", "nodes_executed", state.steps, "duration", snapshot.Duration())
	state.Trail.Info(ctx, "", "execution completed", map[string]any{
		"nodes_executed": state.steps,
		"duration_ms":    snapshot.Duration().Milliseconds(),
	})
	e.publish(ctx, events.ExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, run.ID(), run.FlowID()),
		OutputData:    snapshot.OutputData,
		DurationMs:    snapshot.Duration().Milliseconds(),
		NodesExecuted: state.steps,
	})
	e.persist(ctx, state)
}

func (e *Engine) fail(ctx context.Context, state *runState, errDetail *models.ExecutionError) {
	ctx = context.WithoutCancel(ctx)
	run := state.Run

	if !e.finish(ctx, state, models.ExecutionStatusFailed, errDetail) {
		return
	}

	snapshot := run.Snapshot()

	state.logger.ErrorContext(ctx, "execution failed", "code", errDetail.Code, "node_id", errDetail.NodeID, "error", errDetail.Message)
	state.Trail.Error(ctx, errDetail.NodeID, "execution failed", map[string]any{
		"code":    errDetail.Code,
		"message": errDetail.Message,
	})
	e.publish(ctx, events.ExecutionFailed{
		BaseEvent:     events.NewBaseEvent(events.ExecutionFailedEvent, run.ID(), run.FlowID()),
		Error:         *errDetail,
		DurationMs:    snapshot.Duration().Milliseconds(),
		NodesExecuted: state.steps,
	})
	e.persist(ctx, state)
}

func (e *Engine) cancel(ctx context.Context, state *runState) {
	ctx = context.WithoutCancel(ctx)
	run := state.Run

	if !e.finish(ctx, state, models.ExecutionStatusCancelled, nil) {
		return
	}

	snapshot := run.Snapshot()

	state.logger.InfoContext(ctx, "execution cancelled", "last_node_id", state.lastNode)
	state.Trail.Warn(ctx, "", "execution cancelled", map[string]any{
		"nodes_executed": state.steps,
		"last_node_id":   state.lastNode,
	})
	e.publish(ctx, events.ExecutionCancelled{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCancelledEvent, run.ID(), run.FlowID()),
		DurationMs:    snapshot.Duration().Milliseconds(),
		NodesExecuted: state.steps,
		LastNodeID:    state.lastNode,
	})
	e.persist(ctx, state)
}

// finish applies the terminal transition and reports it to the observer before
// any logging or publishing, so status readers stop seeing a running execution.
func (e *Engine) finish(ctx context.Context, state *runState, status models.ExecutionStatus, errDetail *models.ExecutionError) bool {
	if err := state.Run.Transition(status, errDetail); err != nil {
		state.logger.ErrorContext(ctx, "invalid terminal transition", "status", status, "error", err)

		return false
	}

	e.observe(state)

	return true
}

// persist writes the final record and reports the terminal snapshot.
func (e *Engine) persist(ctx context.Context, state *runState) {
	snapshot := state.Run.Snapshot()

	e.metrics.ExecutionFinished(string(snapshot.Status), snapshot.Duration())
	state.Trail.Save(ctx, snapshot.Record())
	e.observe(state)
}

func (e *Engine) observe(state *runState) {
	if state.Observe != nil {
		state.Observe(state.Run.Snapshot())
	}
}

func (e *Engine) publish(ctx context.Context, event eventbus.Event) {
	err := e.publisher.Publish(ctx, string(event.GetType()), event)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

// summarize renders output compactly for the log trail.
func summarize(output any) string {
	if output == nil {
		return ""
	}

	encoded, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}

	if len(encoded) > maxSummaryLength {
		return string(encoded[:maxSummaryLength]) + "..."
	}

	return string(encoded)
}
