package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

// ExecutionRepository handles execution record database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const selectExecution = `
	SELECT id, flow_id, status, input_data, output_data, error, variables,
		   execution_path, started_at, completed_at, duration_ms
	FROM executions
`

// Save upserts an execution record.
func (r *ExecutionRepository) Save(ctx context.Context, record *models.ExecutionRecord) error {
	if record.ID == "" {
		return persistence.NewExecutionError("Save", record.ID, persistence.ErrInvalidExecutionID)
	}

	// Marshal complex fields to JSON
	inputJSON, err := json.Marshal(record.InputData)
	if err != nil {
		return fmt.Errorf("failed to marshal input data: %w", err)
	}

	outputJSON, err := json.Marshal(record.OutputData)
	if err != nil {
		return fmt.Errorf("failed to marshal output data: %w", err)
	}

	errorJSON, err := json.Marshal(record.Error)
	if err != nil {
		return fmt.Errorf("failed to marshal error: %w", err)
	}

	variablesJSON, err := json.Marshal(record.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	path := record.ExecutionPath
	if path == nil {
		path = []string{}
	}

	pathJSON, err := json.Marshal(path)
	if err != nil {
		return fmt.Errorf("failed to marshal execution path: %w", err)
	}

	query := `
		INSERT INTO executions (
			id, flow_id, status, input_data, output_data, error, variables,
			execution_path, started_at, completed_at, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			output_data = EXCLUDED.output_data,
			error = EXCLUDED.error,
			variables = EXCLUDED.variables,
			execution_path = EXCLUDED.execution_path,
			completed_at = EXCLUDED.completed_at,
			duration_ms = EXCLUDED.duration_ms
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.FlowID,
		record.Status,
		inputJSON,
		outputJSON,
		errorJSON,
		variablesJSON,
		pathJSON,
		record.StartedAt,
		record.CompletedAt,
		record.DurationMs,
	)
	if err != nil {
		return persistence.NewExecutionError("Save", record.ID, err)
	}

	return nil
}

// GetByID retrieves an execution record by its ID from the database.
func (r *ExecutionRepository) GetByID(ctx context.Context, executionID string) (*models.ExecutionRecord, error) {
	row := r.db.QueryRowContext(ctx, selectExecution+" WHERE id = $1", executionID)

	record, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return record, nil
}

// GetByFlow retrieves the executions of a flow, most recent first.
func (r *ExecutionRepository) GetByFlow(ctx context.Context, flowID string) ([]*models.ExecutionRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectExecution+" WHERE flow_id = $1 ORDER BY started_at DESC", flowID)
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

// scanExecution scans an execution record from a database row.
func scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.ExecutionRecord, error) {
	var (
		record                                                    models.ExecutionRecord
		inputJSON, outputJSON, errorJSON, variablesJSON, pathJSON []byte
	)

	err := scanner.Scan(
		&record.ID,
		&record.FlowID,
		&record.Status,
		&inputJSON,
		&outputJSON,
		&errorJSON,
		&variablesJSON,
		&pathJSON,
		&record.StartedAt,
		&record.CompletedAt,
		&record.DurationMs,
	)
	if err != nil {
		return nil, err
	}

	fields := []struct {
		name string
		data []byte
		dest any
	}{
		{"input data", inputJSON, &record.InputData},
		{"output data", outputJSON, &record.OutputData},
		{"error", errorJSON, &record.Error},
		{"variables", variablesJSON, &record.Variables},
		{"execution path", pathJSON, &record.ExecutionPath},
	}

	for _, field := range fields {
		if field.data == nil {
			continue
		}

		err := json.Unmarshal(field.data, field.dest)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", field.name, err)
		}
	}

	return &record, nil
}
