// Package schedule starts published flows on their cron schedule.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/flowrun/pkg/flows"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/supervisor"
	"github.com/robfig/cron/v3"
)

var (
	ErrInvalidSchedule = errors.New("invalid cron expression")
	ErrNotSchedulable  = errors.New("flow cannot be scheduled")
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Starter is the part of the supervisor the scheduler drives.
type Starter interface {
	Start(ctx context.Context, flow *models.Flow, input any, opts ...supervisor.StartOption) (string, error)
}

type Scheduler struct {
	cron    *cron.Cron
	starter Starter
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(starter Starter, logger *slog.Logger) *Scheduler {
	logger = logger.With("module", "scheduler")
	adapter := cronLogger{logger: logger}

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(time.UTC),
			cron.WithLogger(adapter),
			cron.WithChain(cron.SkipIfStillRunning(adapter), cron.Recover(adapter)),
		),
		starter: starter,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Validate checks a cron expression.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidSchedule, expr, err)
	}

	return nil
}

// NextRun returns the first activation of expr after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, expr, err)
	}

	return sched.Next(from).UTC(), nil
}

// Register schedules flow, replacing any earlier entry for the same flow id.
func (s *Scheduler) Register(flow *models.Flow) error {
	if flow.Schedule == "" || !flow.Status.Executable() {
		return fmt.Errorf("%w: %s", ErrNotSchedulable, flow.ID)
	}

	if err := Validate(flow.Schedule); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if previous, ok := s.entries[flow.ID]; ok {
		s.cron.Remove(previous)
	}

	id, err := s.cron.AddFunc(flow.Schedule, func() { s.fire(context.Background(), flow) })
	if err != nil {
		return fmt.Errorf("failed to schedule flow %s: %w", flow.ID, err)
	}

	s.entries[flow.ID] = id
	s.logger.Info("flow scheduled", "flow_id", flow.ID, "schedule", flow.Schedule)

	return nil
}

// Unregister removes the entry of flowID, if any.
func (s *Scheduler) Unregister(flowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[flowID]; ok {
		s.cron.Remove(id)
		delete(s.entries, flowID)
	}
}

// Load registers every scheduled, published flow of repo and returns how many were registered.
func (s *Scheduler) Load(ctx context.Context, repo flows.Repository) (int, error) {
	all, err := repo.List(ctx)
	if err != nil {
		return 0, err
	}

	registered := 0

	for _, flow := range all {
		if flow.Schedule == "" || !flow.Status.Executable() {
			continue
		}

		if err := s.Register(flow); err != nil {
			s.logger.WarnContext(ctx, "skipping flow schedule", "flow_id", flow.ID, "error", err)

			continue
		}

		registered++
	}

	return registered, nil
}

// Scheduled returns the ids of the flows with an entry.
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}

	return ids
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops firing new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) fire(ctx context.Context, flow *models.Flow) {
	input := map[string]any{
		"scheduled_at": time.Now().UTC().Format(time.RFC3339),
	}

	id, err := s.starter.Start(ctx, flow, input)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled execution rejected", "flow_id", flow.ID, "error", err)

		return
	}

	s.logger.InfoContext(ctx, "scheduled execution started", "flow_id", flow.ID, "execution_id", id)
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
