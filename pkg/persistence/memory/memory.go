// Package memory provides an in-process persistence backend, used by tests and by
// single-shot CLI runs where nothing needs to survive the process.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

// Persistence keeps records in maps. Values are stored as JSON so callers can never
// mutate what was saved.
type Persistence struct {
	mu         sync.RWMutex
	executions map[string][]byte
	logs       map[string][][]byte
}

func NewPersistence() *Persistence {
	return &Persistence{
		executions: make(map[string][]byte),
		logs:       make(map[string][][]byte),
	}
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return executionRepository{p}
}

func (p *Persistence) LogRepository() persistence.LogRepository {
	return logRepository{p}
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

type executionRepository struct {
	p *Persistence
}

func (r executionRepository) Save(_ context.Context, record *models.ExecutionRecord) error {
	if record.ID == "" {
		return persistence.NewExecutionError("Save", record.ID, persistence.ErrInvalidExecutionID)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", record.ID, err)
	}

	r.p.mu.Lock()
	r.p.executions[record.ID] = data
	r.p.mu.Unlock()

	return nil
}

func (r executionRepository) GetByID(_ context.Context, executionID string) (*models.ExecutionRecord, error) {
	r.p.mu.RLock()
	data, ok := r.p.executions[executionID]
	r.p.mu.RUnlock()

	if !ok {
		return nil, persistence.NewExecutionError("GetByID", executionID, persistence.ErrExecutionNotFound)
	}

	return decodeRecord(data)
}

func (r executionRepository) GetByFlow(_ context.Context, flowID string) ([]*models.ExecutionRecord, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	records := []*models.ExecutionRecord{}

	for _, data := range r.p.executions {
		record, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}

		if record.FlowID == flowID {
			records = append(records, record)
		}
	}

	persistence.SortExecutions(records)

	return records, nil
}

func decodeRecord(data []byte) (*models.ExecutionRecord, error) {
	var record models.ExecutionRecord

	err := json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}

	return &record, nil
}

type logRepository struct {
	p *Persistence
}

func (r logRepository) Append(_ context.Context, entry *models.ExecutionLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry %s: %w", entry.ID, err)
	}

	r.p.mu.Lock()
	r.p.logs[entry.ExecutionID] = append(r.p.logs[entry.ExecutionID], data)
	r.p.mu.Unlock()

	return nil
}

func (r logRepository) GetByExecution(_ context.Context, executionID string) ([]*models.ExecutionLogEntry, error) {
	r.p.mu.RLock()
	lines := r.p.logs[executionID]
	r.p.mu.RUnlock()

	entries := make([]*models.ExecutionLogEntry, 0, len(lines))

	for _, data := range lines {
		var entry models.ExecutionLogEntry

		err := json.Unmarshal(data, &entry)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal log entry: %w", err)
		}

		entries = append(entries, &entry)
	}

	persistence.SortLogs(entries)

	return entries, nil
}
