package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/actions/transform"
	"github.com/dukex/flowrun/pkg/engine"
	"github.com/dukex/flowrun/pkg/graph"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/nodes"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/memory"
	"github.com/dukex/flowrun/pkg/recorder"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statusTracking records the status of every saved execution record.
type statusTracking struct {
	*memory.Persistence

	mu       sync.Mutex
	statuses map[string][]models.ExecutionStatus
}

func (p *statusTracking) ExecutionRepository() persistence.ExecutionRepository {
	return trackingRepository{ExecutionRepository: p.Persistence.ExecutionRepository(), parent: p}
}

type trackingRepository struct {
	persistence.ExecutionRepository

	parent *statusTracking
}

func (r trackingRepository) Save(ctx context.Context, record *models.ExecutionRecord) error {
	r.parent.mu.Lock()
	r.parent.statuses[record.ID] = append(r.parent.statuses[record.ID], record.Status)
	r.parent.mu.Unlock()

	return r.ExecutionRepository.Save(ctx, record)
}

func (p *statusTracking) saved(id string) []models.ExecutionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]models.ExecutionStatus(nil), p.statuses[id]...)
}

func newSupervisor(t *testing.T) (*Supervisor, *statusTracking) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	actions := registry.NewRegistry(logger)
	actions.RegisterAction(transform.NewActionFactory())

	p := &statusTracking{Persistence: memory.NewPersistence(), statuses: map[string][]models.ExecutionStatus{}}
	rec := recorder.New(p, logger)
	eng := engine.New(nodes.NewRegistry(actions), rec, logger)

	s := New(eng, p, rec, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = s.Shutdown(ctx)
	})

	return s, p
}

func actionFlow(id string) *models.Flow {
	return testutil.LinearFlow(id, testutil.CreateTestNode("greet", models.NodeTypeAction, testutil.WithConfig(map[string]any{
		"actionType": "data_transform",
		"expression": "hello {{ .input.name }}",
	})))
}

func delayFlow(id string) *models.Flow {
	return testutil.LinearFlow(id, testutil.CreateTestNode("wait", models.NodeTypeDelay, testutil.WithConfig(map[string]any{
		"duration": 30,
		"unit":     "seconds",
	})))
}

func TestStart_CompletesWithActionOutput(t *testing.T) {
	t.Parallel()

	s, p := newSupervisor(t)

	id, err := s.Start(t.Context(), actionFlow("greeting"), map[string]any{"name": "ada"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snapshot, err := s.Wait(t.Context(), id)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, snapshot.Status)
	assert.Equal(t, "hello ada", snapshot.OutputData)
	assert.Equal(t, []models.ExecutionStatus{
		models.ExecutionStatusPending,
		models.ExecutionStatusRunning,
		models.ExecutionStatusCompleted,
	}, p.saved(id))
	assert.Equal(t, 0, s.Running())

	stored, err := s.Status(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, "hello ada", stored.OutputData)

	logs, err := s.Logs(t.Context(), id)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)
}

func TestStart_RejectsSynchronously(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		flow     *models.Flow
		input    any
		opts     []StartOption
		expected error
	}{
		{
			name:     "nil flow",
			expected: ErrInvalidFlow,
		},
		{
			name:     "no start node",
			flow:     testutil.NewFlow("no-start").Node("end", models.NodeTypeEnd).Build(),
			expected: ErrInvalidFlow,
		},
		{
			name:     "draft",
			flow:     testutil.NewFlow("draft").Status(models.FlowStatusDraft).Node("start", models.NodeTypeStart).Node("end", models.NodeTypeEnd).Connect("start", "end").Build(),
			expected: ErrFlowNotPublished,
		},
		{
			name: "input schema",
			flow: testutil.NewFlow("typed").
				InputSchema(map[string]any{
					"type":     "object",
					"required": []any{"name"},
				}).
				Node("start", models.NodeTypeStart).Node("end", models.NodeTypeEnd).Connect("start", "end").Build(),
			input:    map[string]any{"age": 3},
			expected: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, _ := newSupervisor(t)

			id, err := s.Start(t.Context(), tt.flow, tt.input, tt.opts...)

			require.ErrorIs(t, err, tt.expected)
			assert.Empty(t, id)
			assert.Equal(t, 0, s.Running())
		})
	}
}

func TestStart_InvalidFlowCarriesViolations(t *testing.T) {
	t.Parallel()

	s, _ := newSupervisor(t)

	_, err := s.Start(t.Context(), testutil.NewFlow("bad").Node("end", models.NodeTypeEnd).Build(), nil)

	require.ErrorIs(t, err, ErrInvalidFlow)
	assert.True(t, graph.IsValidationError(err))
}

func TestStart_AllowDraft(t *testing.T) {
	t.Parallel()

	s, _ := newSupervisor(t)
	flow := actionFlow("draft")
	flow.Status = models.FlowStatusDraft

	id, err := s.Start(t.Context(), flow, map[string]any{"name": "bob"}, AllowDraft())
	require.NoError(t, err)

	snapshot, err := s.Wait(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, snapshot.Status)
}

func TestStart_DuplicateExecutionID(t *testing.T) {
	t.Parallel()

	s, _ := newSupervisor(t)

	id, err := s.Start(t.Context(), actionFlow("dup"), nil, WithExecutionID("fixed"))
	require.NoError(t, err)
	assert.Equal(t, "fixed", id)

	_, err = s.Wait(t.Context(), id)
	require.NoError(t, err)

	_, err = s.Start(t.Context(), actionFlow("dup"), nil, WithExecutionID("fixed"))
	assert.ErrorIs(t, err, ErrDuplicateExecution)
}

func TestCancel(t *testing.T) {
	t.Parallel()

	s, p := newSupervisor(t)

	err := s.Cancel(t.Context(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))

	id, err := s.Start(t.Context(), delayFlow("slow"), nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snapshot, err := s.Status(t.Context(), id)

		return err == nil && snapshot.CurrentNodeID == "wait"
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Cancel(t.Context(), id))
	require.NoError(t, s.Cancel(t.Context(), id), "cancel is idempotent while running")

	snapshot, err := s.Wait(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, snapshot.Status)
	assert.NotContains(t, snapshot.ExecutionPath, "end")
	assert.Equal(t, models.ExecutionStatusCancelled, p.saved(id)[len(p.saved(id))-1])

	err = s.Cancel(t.Context(), id)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestStatus_Unknown(t *testing.T) {
	t.Parallel()

	s, _ := newSupervisor(t)

	_, err := s.Status(t.Context(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Wait(t.Context(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Logs(t.Context(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStart_ConcurrentRunsAreIndependent(t *testing.T) {
	t.Parallel()

	s, _ := newSupervisor(t)

	flow := testutil.NewFlow("counter").
		Variable("count", 0).
		Node("start", models.NodeTypeStart).
		Node("inc", models.NodeTypeVariable, testutil.WithConfig(map[string]any{
			"variableName": "count",
			"operation":    "increment",
		})).
		Node("read", models.NodeTypeVariable, testutil.WithConfig(map[string]any{
			"variableName": "count",
			"operation":    "get",
		})).
		Node("end", models.NodeTypeEnd).
		Connect("start", "inc").
		Connect("inc", "read").
		Connect("read", "end").
		Build()

	ids := make([]string, 0, 20)

	for i := range 20 {
		id, err := s.Start(t.Context(), flow, map[string]any{"n": i}, WithExecutionID(fmt.Sprintf("run-%d", i)))
		require.NoError(t, err)

		ids = append(ids, id)
	}

	for _, id := range ids {
		snapshot, err := s.Wait(t.Context(), id)
		require.NoError(t, err)

		assert.Equal(t, models.ExecutionStatusCompleted, snapshot.Status)
		assert.EqualValues(t, 1, snapshot.Variables["count"])
		assert.EqualValues(t, 1, snapshot.OutputData)
	}

	assert.Equal(t, 0, s.Running())
}

func TestShutdown_CancelsInFlight(t *testing.T) {
	t.Parallel()

	s, _ := newSupervisor(t)

	id, err := s.Start(t.Context(), delayFlow("slow"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Running())

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.Shutdown(ctx))
	assert.Equal(t, 0, s.Running())

	snapshot, err := s.Status(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, snapshot.Status)
}
