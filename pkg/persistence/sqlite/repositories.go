package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

type executionRepository struct {
	p *Persistence
}

const selectExecution = `SELECT id, flow_id, status, input_data, output_data, error, variables,
	execution_path, started_at, completed_at, duration_ms FROM executions`

func (r *executionRepository) Save(ctx context.Context, record *models.ExecutionRecord) error {
	if err := r.p.checkOpen(); err != nil {
		return err
	}

	if record.ID == "" {
		return persistence.NewExecutionError("Save", record.ID, persistence.ErrInvalidExecutionID)
	}

	path := record.ExecutionPath
	if path == nil {
		path = []string{}
	}

	encoded := make([]string, 0, 5)

	for _, v := range []any{record.InputData, record.OutputData, record.Error, record.Variables, path} {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal execution %s: %w", record.ID, err)
		}

		encoded = append(encoded, string(data))
	}

	var completedAt sql.NullInt64
	if record.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: record.CompletedAt.UTC().UnixNano(), Valid: true}
	}

	_, err := r.p.db.ExecContext(ctx, `
		INSERT INTO executions (id, flow_id, status, input_data, output_data, error, variables,
			execution_path, started_at, completed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			output_data = excluded.output_data,
			error = excluded.error,
			variables = excluded.variables,
			execution_path = excluded.execution_path,
			completed_at = excluded.completed_at,
			duration_ms = excluded.duration_ms`,
		record.ID, record.FlowID, string(record.Status),
		encoded[0], encoded[1], encoded[2], encoded[3], encoded[4],
		record.StartedAt.UTC().UnixNano(), completedAt, record.DurationMs,
	)
	if err != nil {
		return persistence.NewExecutionError("Save", record.ID, err)
	}

	return nil
}

func (r *executionRepository) GetByID(ctx context.Context, executionID string) (*models.ExecutionRecord, error) {
	if err := r.p.checkOpen(); err != nil {
		return nil, err
	}

	record, err := scanExecution(r.p.db.QueryRowContext(ctx, selectExecution+" WHERE id = ?", executionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution %s: %w", executionID, err)
	}

	return record, nil
}

func (r *executionRepository) GetByFlow(ctx context.Context, flowID string) ([]*models.ExecutionRecord, error) {
	if err := r.p.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := r.p.db.QueryContext(ctx, selectExecution+" WHERE flow_id = ? ORDER BY started_at DESC", flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	records := []*models.ExecutionRecord{}

	for rows.Next() {
		record, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return records, nil
}

func scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.ExecutionRecord, error) {
	var (
		record                                    models.ExecutionRecord
		status                                    string
		input, output, errDetail, variables, path sql.NullString
		startedAt                                 int64
		completedAt                               sql.NullInt64
	)

	err := scanner.Scan(&record.ID, &record.FlowID, &status, &input, &output, &errDetail, &variables,
		&path, &startedAt, &completedAt, &record.DurationMs)
	if err != nil {
		return nil, err
	}

	record.Status = models.ExecutionStatus(status)
	record.StartedAt = time.Unix(0, startedAt).UTC()

	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64).UTC()
		record.CompletedAt = &t
	}

	fields := []struct {
		data sql.NullString
		dest any
	}{
		{input, &record.InputData},
		{output, &record.OutputData},
		{errDetail, &record.Error},
		{variables, &record.Variables},
		{path, &record.ExecutionPath},
	}

	for _, field := range fields {
		if !field.data.Valid {
			continue
		}

		if err := json.Unmarshal([]byte(field.data.String), field.dest); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution column: %w", err)
		}
	}

	return &record, nil
}

type logRepository struct {
	p *Persistence
}

func (r *logRepository) Append(ctx context.Context, entry *models.ExecutionLogEntry) error {
	if err := r.p.checkOpen(); err != nil {
		return err
	}

	var data sql.NullString

	if entry.Data != nil {
		encoded, err := json.Marshal(entry.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal log data: %w", err)
		}

		data = sql.NullString{String: string(encoded), Valid: true}
	}

	var nodeID sql.NullString
	if entry.NodeID != nil {
		nodeID = sql.NullString{String: *entry.NodeID, Valid: true}
	}

	_, err := r.p.db.ExecContext(ctx,
		`INSERT INTO execution_logs (id, execution_id, node_id, level, message, data, timestamp, sequence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ExecutionID, nodeID, string(entry.Level), entry.Message, data,
		entry.Timestamp.UTC().UnixNano(), entry.Sequence,
	)
	if err != nil {
		return fmt.Errorf("failed to append log entry for %s: %w", entry.ExecutionID, err)
	}

	return nil
}

func (r *logRepository) GetByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLogEntry, error) {
	if err := r.p.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := r.p.db.QueryContext(ctx,
		`SELECT id, execution_id, node_id, level, message, data, timestamp, sequence
		FROM execution_logs WHERE execution_id = ? ORDER BY timestamp, sequence`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	entries := []*models.ExecutionLogEntry{}

	for rows.Next() {
		var (
			entry     models.ExecutionLogEntry
			nodeID    sql.NullString
			level     string
			data      sql.NullString
			timestamp int64
		)

		err := rows.Scan(&entry.ID, &entry.ExecutionID, &nodeID, &level, &entry.Message, &data, &timestamp, &entry.Sequence)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}

		entry.Level = models.LogLevel(level)
		entry.Timestamp = time.Unix(0, timestamp).UTC()

		if nodeID.Valid {
			entry.NodeID = &nodeID.String
		}

		if data.Valid {
			if err := json.Unmarshal([]byte(data.String), &entry.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal log data: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return entries, nil
}
