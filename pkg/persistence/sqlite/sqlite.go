// Package sqlite provides a single-file SQLite persistence backend.
//
// Timestamps are stored as UTC unix nanoseconds so ordering in SQL matches
// ordering in Go. Structured fields are stored as JSON text.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dukex/flowrun/pkg/persistence"
	_ "modernc.org/sqlite"
)

var ErrClosed = errors.New("sqlite persistence is closed")

// Persistence is backed by one SQLite database file. ":memory:" is accepted for tests.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
	path   string

	mu     sync.RWMutex
	closed bool
}

// NewPersistence opens (creating if needed) the database at path. The path may carry
// a sqlite:// prefix.
func NewPersistence(ctx context.Context, logger *slog.Logger, path string) (*Persistence, error) {
	path = strings.TrimPrefix(path, "sqlite://")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()

			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	p := &Persistence{db: db, logger: logger, path: path}

	if err := p.createTables(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.InfoContext(ctx, "sqlite persistence ready", "path", path)

	return p, nil
}

func (p *Persistence) createTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			flow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			input_data TEXT,
			output_data TEXT,
			error TEXT,
			variables TEXT,
			execution_path TEXT NOT NULL DEFAULT '[]',
			started_at INTEGER NOT NULL,
			completed_at INTEGER,
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`,
		"CREATE INDEX IF NOT EXISTS idx_executions_flow_id ON executions(flow_id, started_at)",
		`CREATE TABLE IF NOT EXISTS execution_logs (
			id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			node_id TEXT,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			data TEXT,
			timestamp INTEGER NOT NULL,
			sequence INTEGER NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_execution_logs_order ON execution_logs(execution_id, timestamp, sequence)",
	}

	for _, stmt := range statements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", firstLine(stmt), err)
		}
	}

	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")

	return line
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return &executionRepository{p: p}
}

func (p *Persistence) LogRepository() persistence.LogRepository {
	return &logRepository{p: p}
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return nil
}

// Close is idempotent.
func (p *Persistence) Close(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	if err := p.db.Close(); err != nil {
		return fmt.Errorf("failed to close sqlite database: %w", err)
	}

	return nil
}

func (p *Persistence) checkOpen() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	return nil
}
