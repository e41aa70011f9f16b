// Package recorder writes execution records and log trails to persistence.
//
// Storage failures never stop an execution: they are reported on the process
// logger and the run carries on.
package recorder

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/google/uuid"
)

type Recorder struct {
	persistence persistence.Persistence
	logger      *slog.Logger
	now         func() time.Time
}

func New(p persistence.Persistence, logger *slog.Logger) *Recorder {
	return &Recorder{
		persistence: p,
		logger:      logger.With("module", "recorder"),
		now:         time.Now,
	}
}

// Trail returns the writer for one execution's log trail. A trail hands out
// timestamps that never go backwards and a strictly increasing sequence.
func (r *Recorder) Trail(executionID string) *Trail {
	return &Trail{
		recorder:    r,
		executionID: executionID,
		logger:      r.logger.With("execution_id", executionID),
	}
}

// Logs reads back an execution's trail.
func (r *Recorder) Logs(ctx context.Context, executionID string) ([]*models.ExecutionLogEntry, error) {
	return r.persistence.LogRepository().GetByExecution(ctx, executionID)
}

type Trail struct {
	recorder    *Recorder
	executionID string
	logger      *slog.Logger

	mu       sync.Mutex
	last     time.Time
	sequence int64
}

func (t *Trail) ExecutionID() string {
	return t.executionID
}

// Save upserts the execution record.
func (t *Trail) Save(ctx context.Context, record *models.ExecutionRecord) {
	err := t.recorder.persistence.ExecutionRepository().Save(ctx, record)
	if err != nil {
		t.logger.ErrorContext(ctx, "failed to save execution record", "status", record.Status, "error", err)
	}
}

// Log appends one entry. An empty nodeID marks an execution-level line.
func (t *Trail) Log(ctx context.Context, level models.LogLevel, nodeID, message string, data map[string]any) *models.ExecutionLogEntry {
	entry := t.next(level, nodeID, message, data)

	t.logger.DebugContext(ctx, message,
		"level", string(level),
		"node_id", nodeID,
		"sequence", entry.Sequence,
	)

	err := t.recorder.persistence.LogRepository().Append(ctx, entry)
	if err != nil {
		t.logger.ErrorContext(ctx, "failed to append execution log", "sequence", entry.Sequence, "error", err)
	}

	return entry
}

func (t *Trail) Info(ctx context.Context, nodeID, message string, data map[string]any) {
	t.Log(ctx, models.LogLevelInfo, nodeID, message, data)
}

func (t *Trail) Warn(ctx context.Context, nodeID, message string, data map[string]any) {
	t.Log(ctx, models.LogLevelWarn, nodeID, message, data)
}

func (t *Trail) Error(ctx context.Context, nodeID, message string, data map[string]any) {
	t.Log(ctx, models.LogLevelError, nodeID, message, data)
}

func (t *Trail) Debug(ctx context.Context, nodeID, message string, data map[string]any) {
	t.Log(ctx, models.LogLevelDebug, nodeID, message, data)
}

func (t *Trail) next(level models.LogLevel, nodeID, message string, data map[string]any) *models.ExecutionLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.recorder.now().UTC()
	if now.Before(t.last) {
		now = t.last
	}

	t.last = now
	t.sequence++

	entry := &models.ExecutionLogEntry{
		ID:          uuid.New().String(),
		ExecutionID: t.executionID,
		Level:       level,
		Message:     message,
		Data:        maps.Clone(data),
		Timestamp:   now,
		Sequence:    t.sequence,
	}

	if nodeID != "" {
		entry.NodeID = &nodeID
	}

	return entry
}
