package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

const executionsDir = "executions"

// ExecutionRepository stores one JSON file per execution record.
type ExecutionRepository struct {
	root string
	mu   sync.Mutex
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

// Save writes the record, replacing any previous version. The file is written to a
// temporary name first and renamed so readers never observe a partial record.
func (r *ExecutionRepository) Save(_ context.Context, record *models.ExecutionRecord) error {
	if err := validateExecutionID(record.ID); err != nil {
		return persistence.NewExecutionError("Save", record.ID, fmt.Errorf("%w: %w", persistence.ErrInvalidExecutionID, err))
	}

	dir := filepath.Join(r.root, executionsDir)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", record.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	filePath := filepath.Join(dir, record.ID+".json")
	tmpPath := filePath + ".tmp"

	err = os.WriteFile(tmpPath, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write execution %s: %w", record.ID, err)
	}

	err = os.Rename(tmpPath, filePath)
	if err != nil {
		return fmt.Errorf("failed to write execution %s: %w", record.ID, err)
	}

	return nil
}

// GetByID retrieves an execution record by its ID from the file system.
func (r *ExecutionRepository) GetByID(_ context.Context, executionID string) (*models.ExecutionRecord, error) {
	if err := validateExecutionID(executionID); err != nil {
		return nil, persistence.NewExecutionError("GetByID", executionID, fmt.Errorf("%w: %w", persistence.ErrInvalidExecutionID, err))
	}

	filePath := filepath.Join(r.root, executionsDir, executionID+".json")

	data, err := os.ReadFile(filePath) // #nosec G304 -- filePath is validated and constructed safely
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("GetByID", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to read execution %s: %w", executionID, err)
	}

	var record models.ExecutionRecord

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", executionID, err)
	}

	return &record, nil
}

// GetByFlow retrieves all execution records for a specific flow.
func (r *ExecutionRepository) GetByFlow(ctx context.Context, flowID string) ([]*models.ExecutionRecord, error) {
	dir := filepath.Join(r.root, executionsDir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ExecutionRecord{}, nil
		}

		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	records := []*models.ExecutionRecord{}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		record, err := r.GetByID(ctx, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// Skip invalid files
			continue
		}

		if record.FlowID == flowID {
			records = append(records, record)
		}
	}

	persistence.SortExecutions(records)

	return records, nil
}
