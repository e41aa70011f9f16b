// Package persistence provides the storage abstraction for execution records and log trails.
package persistence

import (
	"context"

	"github.com/dukex/flowrun/pkg/models"
)

type Persistence interface {
	ExecutionRepository() ExecutionRepository
	LogRepository() LogRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ExecutionRepository stores one record per execution; Save upserts by record ID.
type ExecutionRepository interface {
	Save(ctx context.Context, record *models.ExecutionRecord) error
	GetByID(ctx context.Context, executionID string) (*models.ExecutionRecord, error)
	// GetByFlow returns the flow's executions, most recently started first.
	GetByFlow(ctx context.Context, flowID string) ([]*models.ExecutionRecord, error)
}

// LogRepository stores append-only log entries.
type LogRepository interface {
	Append(ctx context.Context, entry *models.ExecutionLogEntry) error
	// GetByExecution returns entries ordered by timestamp, ties broken by sequence.
	GetByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLogEntry, error)
}
