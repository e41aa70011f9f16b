// Package persistencetest holds the behavior every persistence backend must share.
package persistencetest

import (
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises p against the repository contracts. Each call should receive a fresh store.
func Run(t *testing.T, p persistence.Persistence) {
	t.Helper()

	t.Run("health check", func(t *testing.T) {
		require.NoError(t, p.HealthCheck(t.Context()))
	})

	t.Run("save and get execution", func(t *testing.T) {
		repo := p.ExecutionRepository()
		started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		record := &models.ExecutionRecord{
			ID:            "exec-save-get",
			FlowID:        "flow-1",
			Status:        models.ExecutionStatusRunning,
			InputData:     map[string]any{"user": "ana"},
			Variables:     map[string]any{"count": float64(1)},
			ExecutionPath: []string{"start"},
			StartedAt:     started,
		}

		require.NoError(t, repo.Save(t.Context(), record))

		got, err := repo.GetByID(t.Context(), "exec-save-get")
		require.NoError(t, err)
		assert.Equal(t, "flow-1", got.FlowID)
		assert.Equal(t, models.ExecutionStatusRunning, got.Status)
		assert.Equal(t, map[string]any{"user": "ana"}, got.InputData)
		assert.Equal(t, float64(1), got.Variables["count"])
		assert.Equal(t, []string{"start"}, got.ExecutionPath)
		assert.True(t, started.Equal(got.StartedAt))
		assert.Nil(t, got.CompletedAt)
		assert.Nil(t, got.Error)
	})

	t.Run("save upserts", func(t *testing.T) {
		repo := p.ExecutionRepository()
		started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		completed := started.Add(2 * time.Second)

		record := &models.ExecutionRecord{ID: "exec-upsert", FlowID: "flow-1", Status: models.ExecutionStatusPending, StartedAt: started}
		require.NoError(t, repo.Save(t.Context(), record))

		record.Status = models.ExecutionStatusFailed
		record.CompletedAt = &completed
		record.DurationMs = 2000
		record.ExecutionPath = []string{"start", "a"}
		record.Error = &models.ExecutionError{Code: models.ErrorCodeDeadEnd, Message: "no outgoing connection", NodeID: "a"}
		require.NoError(t, repo.Save(t.Context(), record))

		got, err := repo.GetByID(t.Context(), "exec-upsert")
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusFailed, got.Status)
		require.NotNil(t, got.CompletedAt)
		assert.True(t, completed.Equal(*got.CompletedAt))
		assert.Equal(t, int64(2000), got.DurationMs)
		require.NotNil(t, got.Error)
		assert.Equal(t, models.ErrorCodeDeadEnd, got.Error.Code)
		assert.Equal(t, "a", got.Error.NodeID)
	})

	t.Run("get missing execution", func(t *testing.T) {
		_, err := p.ExecutionRepository().GetByID(t.Context(), "exec-missing")
		require.Error(t, err)
		assert.True(t, persistence.IsExecutionNotFound(err))
	})

	t.Run("get by flow newest first", func(t *testing.T) {
		repo := p.ExecutionRepository()
		base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

		for i, id := range []string{"exec-flow-a", "exec-flow-b", "exec-flow-c"} {
			require.NoError(t, repo.Save(t.Context(), &models.ExecutionRecord{
				ID:        id,
				FlowID:    "flow-by-flow",
				Status:    models.ExecutionStatusCompleted,
				StartedAt: base.Add(time.Duration(i) * time.Minute),
			}))
		}

		require.NoError(t, repo.Save(t.Context(), &models.ExecutionRecord{
			ID: "exec-other-flow", FlowID: "flow-other", Status: models.ExecutionStatusCompleted, StartedAt: base,
		}))

		got, err := repo.GetByFlow(t.Context(), "flow-by-flow")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "exec-flow-c", got[0].ID)
		assert.Equal(t, "exec-flow-b", got[1].ID)
		assert.Equal(t, "exec-flow-a", got[2].ID)

		none, err := repo.GetByFlow(t.Context(), "flow-nothing")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("append and read logs in order", func(t *testing.T) {
		repo := p.LogRepository()
		ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		nodeID := "start"

		entries := []*models.ExecutionLogEntry{
			{ID: "log-3", ExecutionID: "exec-logs", Level: models.LogLevelInfo, Message: "third", Timestamp: ts.Add(time.Millisecond), Sequence: 3},
			{ID: "log-2", ExecutionID: "exec-logs", NodeID: &nodeID, Level: models.LogLevelInfo, Message: "second", Timestamp: ts, Sequence: 2, Data: map[string]any{"k": "v"}},
			{ID: "log-1", ExecutionID: "exec-logs", Level: models.LogLevelDebug, Message: "first", Timestamp: ts, Sequence: 1},
			{ID: "log-x", ExecutionID: "exec-other-logs", Level: models.LogLevelError, Message: "other", Timestamp: ts, Sequence: 1},
		}

		for _, entry := range entries {
			require.NoError(t, repo.Append(t.Context(), entry))
		}

		got, err := repo.GetByExecution(t.Context(), "exec-logs")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "first", got[0].Message)
		assert.Nil(t, got[0].NodeID)
		assert.Equal(t, "second", got[1].Message)
		require.NotNil(t, got[1].NodeID)
		assert.Equal(t, "start", *got[1].NodeID)
		assert.Equal(t, "v", got[1].Data["k"])
		assert.Equal(t, "third", got[2].Message)
	})

	t.Run("logs of unknown execution are empty", func(t *testing.T) {
		got, err := p.LogRepository().GetByExecution(t.Context(), "exec-no-logs")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
