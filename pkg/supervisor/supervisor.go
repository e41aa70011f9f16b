// Package supervisor starts executions on their own goroutines and tracks them until they finish.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dukex/flowrun/pkg/engine"
	"github.com/dukex/flowrun/pkg/execution"
	"github.com/dukex/flowrun/pkg/graph"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/recorder"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

// run is the registry entry of one in-flight execution.
type run struct {
	cancel     chan struct{}
	cancelOnce sync.Once
	done       chan struct{}
	snapshot   execution.Snapshot
}

func (r *run) requestCancel() {
	r.cancelOnce.Do(func() { close(r.cancel) })
}

type Supervisor struct {
	engine      *engine.Engine
	persistence persistence.Persistence
	recorder    *recorder.Recorder
	logger      *slog.Logger

	mu   sync.RWMutex
	runs map[string]*run
	wg   sync.WaitGroup
}

func New(eng *engine.Engine, p persistence.Persistence, rec *recorder.Recorder, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		engine:      eng,
		persistence: p,
		recorder:    rec,
		logger:      logger.With("module", "supervisor"),
		runs:        make(map[string]*run),
	}
}

// Start validates the flow and input, registers a pending execution and runs it in
// the background. It returns as soon as the execution is registered.
func (s *Supervisor) Start(ctx context.Context, flow *models.Flow, input any, opts ...StartOption) (string, error) {
	options := startOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	if flow == nil {
		return "", newRunError("start", "", fmt.Errorf("%w: flow is nil", ErrInvalidFlow))
	}

	if err := graph.Validate(flow).Err(flow.ID); err != nil {
		return "", newRunError("start", "", fmt.Errorf("%w: %w", ErrInvalidFlow, err))
	}

	if !options.allowDraft && !flow.Status.Executable() {
		return "", newRunError("start", "", fmt.Errorf("%w: flow %s is %q", ErrFlowNotPublished, flow.ID, flow.Status))
	}

	if err := validateInput(flow, input); err != nil {
		return "", newRunError("start", "", err)
	}

	id := options.executionID
	if id == "" {
		id = uuid.New().String()
	}

	if err := s.checkUnused(ctx, id); err != nil {
		return "", newRunError("start", id, err)
	}

	runCtx := execution.New(flow, id, input)
	entry := &run{
		cancel:   make(chan struct{}),
		done:     make(chan struct{}),
		snapshot: runCtx.Snapshot(),
	}

	s.mu.Lock()
	if _, exists := s.runs[id]; exists {
		s.mu.Unlock()

		return "", newRunError("start", id, ErrDuplicateExecution)
	}

	s.runs[id] = entry
	s.mu.Unlock()

	trail := s.recorder.Trail(id)
	trail.Save(ctx, runCtx.Record())

	s.logger.InfoContext(ctx, "execution registered", "execution_id", id, "flow_id", flow.ID)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		final := s.engine.Run(context.WithoutCancel(ctx), engine.Job{
			Flow:    flow,
			Run:     runCtx,
			Trail:   trail,
			Cancel:  entry.cancel,
			Observe: func(snapshot execution.Snapshot) { s.observe(entry, snapshot) },
		})

		s.mu.Lock()
		entry.snapshot = final
		delete(s.runs, id)
		s.mu.Unlock()

		close(entry.done)
	}()

	return id, nil
}

func (s *Supervisor) checkUnused(ctx context.Context, id string) error {
	s.mu.RLock()
	_, exists := s.runs[id]
	s.mu.RUnlock()

	if exists {
		return ErrDuplicateExecution
	}

	_, err := s.persistence.ExecutionRepository().GetByID(ctx, id)

	switch {
	case err == nil:
		return ErrDuplicateExecution
	case persistence.IsExecutionNotFound(err):
		return nil
	default:
		return fmt.Errorf("failed to check execution id: %w", err)
	}
}

func (s *Supervisor) observe(entry *run, snapshot execution.Snapshot) {
	s.mu.Lock()
	entry.snapshot = snapshot
	s.mu.Unlock()
}

// Cancel asks a running execution to stop at its next node boundary. Cancellation is
// cooperative: a request that arrives while the last node runs is accepted, yet the
// execution still ends with the outcome of that node.
func (s *Supervisor) Cancel(ctx context.Context, id string) error {
	s.mu.RLock()
	entry, ok := s.runs[id]

	var status models.ExecutionStatus
	if ok {
		status = entry.snapshot.Status
	}
	s.mu.RUnlock()

	if ok {
		if status.IsTerminal() {
			return newRunError("cancel", id, fmt.Errorf("%w: execution is %s", ErrInvalidStateTransition, status))
		}

		entry.requestCancel()
		s.logger.InfoContext(ctx, "cancellation requested", "execution_id", id)

		return nil
	}

	record, err := s.persistence.ExecutionRepository().GetByID(ctx, id)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return newRunError("cancel", id, ErrNotFound)
		}

		return newRunError("cancel", id, err)
	}

	if record.Status.IsTerminal() {
		return newRunError("cancel", id, fmt.Errorf("%w: execution is %s", ErrInvalidStateTransition, record.Status))
	}

	// Persisted but not owned by this process.
	return newRunError("cancel", id, fmt.Errorf("%w: execution is not running here", ErrNotFound))
}

// Status returns the live snapshot of a running execution, or the persisted one.
func (s *Supervisor) Status(ctx context.Context, id string) (execution.Snapshot, error) {
	s.mu.RLock()
	entry, ok := s.runs[id]

	var snapshot execution.Snapshot
	if ok {
		snapshot = entry.snapshot
	}
	s.mu.RUnlock()

	if ok {
		return snapshot, nil
	}

	return s.stored(ctx, "status", id)
}

func (s *Supervisor) stored(ctx context.Context, op, id string) (execution.Snapshot, error) {
	record, err := s.persistence.ExecutionRepository().GetByID(ctx, id)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return execution.Snapshot{}, newRunError(op, id, ErrNotFound)
		}

		return execution.Snapshot{}, newRunError(op, id, err)
	}

	return execution.FromRecord(record), nil
}

// Wait blocks until the execution is terminal or ctx is done.
func (s *Supervisor) Wait(ctx context.Context, id string) (execution.Snapshot, error) {
	s.mu.RLock()
	entry, ok := s.runs[id]
	s.mu.RUnlock()

	if !ok {
		return s.stored(ctx, "wait", id)
	}

	select {
	case <-entry.done:
	case <-ctx.Done():
		return execution.Snapshot{}, ctx.Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return entry.snapshot, nil
}

// Logs returns the persisted log trail of an execution.
func (s *Supervisor) Logs(ctx context.Context, id string) ([]*models.ExecutionLogEntry, error) {
	if _, err := s.Status(ctx, id); err != nil {
		return nil, err
	}

	entries, err := s.recorder.Logs(ctx, id)
	if err != nil {
		return nil, newRunError("logs", id, err)
	}

	return entries, nil
}

// Running returns the number of in-flight executions.
func (s *Supervisor) Running() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.runs)
}

// Shutdown cancels every in-flight execution and waits for their goroutines.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	for _, entry := range s.runs {
		entry.requestCancel()
	}
	s.mu.RUnlock()

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.InfoContext(ctx, "all executions stopped")

		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown interrupted with %d execution(s) running: %w", s.Running(), ctx.Err())
	}
}

func validateInput(flow *models.Flow, input any) error {
	if len(flow.InputSchema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(flow.InputSchema),
		gojsonschema.NewGoLoader(input),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
}

// IsNotFound reports whether err means the execution is unknown.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
