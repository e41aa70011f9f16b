package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

const logsDir = "logs"

// LogRepository appends log entries as JSON lines, one file per execution.
type LogRepository struct {
	root string
	mu   sync.Mutex
}

func NewLogRepository(root string) *LogRepository {
	return &LogRepository{root: root}
}

func (r *LogRepository) path(executionID string) string {
	return filepath.Join(r.root, logsDir, executionID+".jsonl")
}

func (r *LogRepository) Append(_ context.Context, entry *models.ExecutionLogEntry) error {
	if err := validateExecutionID(entry.ExecutionID); err != nil {
		return persistence.NewExecutionError("Append", entry.ExecutionID, fmt.Errorf("%w: %w", persistence.ErrInvalidExecutionID, err))
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry %s: %w", entry.ID, err)
	}

	err = os.MkdirAll(filepath.Join(r.root, logsDir), 0750)
	if err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path(entry.ExecutionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file for %s: %w", entry.ExecutionID, err)
	}

	_, err = f.Write(append(line, '\n'))
	if err != nil {
		_ = f.Close()

		return fmt.Errorf("failed to append log entry for %s: %w", entry.ExecutionID, err)
	}

	return f.Close()
}

// GetByExecution returns an empty slice when the execution has no log file.
func (r *LogRepository) GetByExecution(_ context.Context, executionID string) ([]*models.ExecutionLogEntry, error) {
	if err := validateExecutionID(executionID); err != nil {
		return nil, persistence.NewExecutionError("GetByExecution", executionID, fmt.Errorf("%w: %w", persistence.ErrInvalidExecutionID, err))
	}

	f, err := os.Open(r.path(executionID)) // #nosec G304 -- path is validated and constructed safely
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ExecutionLogEntry{}, nil
		}

		return nil, fmt.Errorf("failed to open log file for %s: %w", executionID, err)
	}

	defer func() {
		_ = f.Close()
	}()

	entries := []*models.ExecutionLogEntry{}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var entry models.ExecutionLogEntry

		err := json.Unmarshal(scanner.Bytes(), &entry)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal log entry for %s: %w", executionID, err)
		}

		entries = append(entries, &entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file for %s: %w", executionID, err)
	}

	persistence.SortLogs(entries)

	return entries, nil
}
