// Package redis provides a Redis persistence backend.
//
// Key layout:
//
//	flowrun:execution:<id>          JSON execution record
//	flowrun:flow:<flow id>:executions sorted set of execution ids scored by start time
//	flowrun:logs:<id>               list of JSON log entries
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "flowrun:"

func executionKey(id string) string {
	return keyPrefix + "execution:" + id
}

func flowKey(flowID string) string {
	return keyPrefix + "flow:" + flowID + ":executions"
}

func logsKey(id string) string {
	return keyPrefix + "logs:" + id
}

// Persistence stores records in Redis.
type Persistence struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewPersistence connects using a redis:// or rediss:// URL and verifies the connection.
func NewPersistence(ctx context.Context, logger *slog.Logger, url string) (*Persistence, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewPersistenceWithClient(client, logger), nil
}

func NewPersistenceWithClient(client redis.UniversalClient, logger *slog.Logger) *Persistence {
	return &Persistence{client: client, logger: logger}
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return &executionRepository{client: p.client}
}

func (p *Persistence) LogRepository() persistence.LogRepository {
	return &logRepository{client: p.client}
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

type executionRepository struct {
	client redis.UniversalClient
}

// Save writes the record and indexes it under its flow in one transaction.
func (r *executionRepository) Save(ctx context.Context, record *models.ExecutionRecord) error {
	if record.ID == "" {
		return persistence.NewExecutionError("Save", record.ID, persistence.ErrInvalidExecutionID)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", record.ID, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, executionKey(record.ID), data, 0)
		pipe.ZAdd(ctx, flowKey(record.FlowID), redis.Z{
			Score:  float64(record.StartedAt.UnixMicro()),
			Member: record.ID,
		})

		return nil
	})
	if err != nil {
		return persistence.NewExecutionError("Save", record.ID, err)
	}

	return nil
}

func (r *executionRepository) GetByID(ctx context.Context, executionID string) (*models.ExecutionRecord, error) {
	data, err := r.client.Get(ctx, executionKey(executionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewExecutionError("GetByID", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", executionID, err)
	}

	var record models.ExecutionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", executionID, err)
	}

	return &record, nil
}

func (r *executionRepository) GetByFlow(ctx context.Context, flowID string) ([]*models.ExecutionRecord, error) {
	ids, err := r.client.ZRevRange(ctx, flowKey(flowID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list executions of flow %s: %w", flowID, err)
	}

	records := make([]*models.ExecutionRecord, 0, len(ids))

	for _, id := range ids {
		record, err := r.GetByID(ctx, id)
		if err != nil {
			if persistence.IsExecutionNotFound(err) {
				continue
			}

			return nil, err
		}

		records = append(records, record)
	}

	persistence.SortExecutions(records)

	return records, nil
}

type logRepository struct {
	client redis.UniversalClient
}

func (r *logRepository) Append(ctx context.Context, entry *models.ExecutionLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry %s: %w", entry.ID, err)
	}

	if err := r.client.RPush(ctx, logsKey(entry.ExecutionID), data).Err(); err != nil {
		return fmt.Errorf("failed to append log entry for %s: %w", entry.ExecutionID, err)
	}

	return nil
}

func (r *logRepository) GetByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLogEntry, error) {
	lines, err := r.client.LRange(ctx, logsKey(executionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read logs of %s: %w", executionID, err)
	}

	entries := make([]*models.ExecutionLogEntry, 0, len(lines))

	for _, line := range lines {
		var entry models.ExecutionLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log entry of %s: %w", executionID, err)
		}

		entries = append(entries, &entry)
	}

	persistence.SortLogs(entries)

	return entries, nil
}
