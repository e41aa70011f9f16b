package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/models"
)

// LogRepository handles the append-only execution log table.
type LogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewLogRepository(db *sql.DB, logger *slog.Logger) *LogRepository {
	return &LogRepository{db: db, logger: logger}
}

func (r *LogRepository) Append(ctx context.Context, entry *models.ExecutionLogEntry) error {
	var data []byte

	if entry.Data != nil {
		encoded, err := json.Marshal(entry.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal log data: %w", err)
		}

		data = encoded
	}

	query := `
		INSERT INTO execution_logs (id, execution_id, node_id, level, message, data, timestamp, sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.ExecutionID,
		entry.NodeID,
		entry.Level,
		entry.Message,
		data,
		entry.Timestamp,
		entry.Sequence,
	)
	if err != nil {
		return fmt.Errorf("failed to append log entry for %s: %w", entry.ExecutionID, err)
	}

	return nil
}

func (r *LogRepository) GetByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLogEntry, error) {
	query := `
		SELECT id, execution_id, node_id, level, message, data, timestamp, sequence
		FROM execution_logs
		WHERE execution_id = $1
		ORDER BY timestamp, sequence
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	entries := []*models.ExecutionLogEntry{}

	for rows.Next() {
		var (
			entry    models.ExecutionLogEntry
			nodeID   sql.NullString
			dataJSON []byte
		)

		err := rows.Scan(&entry.ID, &entry.ExecutionID, &nodeID, &entry.Level, &entry.Message, &dataJSON, &entry.Timestamp, &entry.Sequence)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}

		if nodeID.Valid {
			entry.NodeID = &nodeID.String
		}

		if dataJSON != nil {
			err := json.Unmarshal(dataJSON, &entry.Data)
			if err != nil {
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
