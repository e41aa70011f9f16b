package execution

import (
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SeedsVariablesFromDeclarations(t *testing.T) {
	t.Parallel()

	defaults := map[string]any{"retries": float64(0)}
	flow := testutil.NewFlow("f").
		Variable("counter", float64(3)).
		Variable("settings", defaults).
		Build()

	run := New(flow, "exec-1", map[string]any{"x": 1})

	assert.Equal(t, "exec-1", run.ID())
	assert.Equal(t, "f", run.FlowID())
	assert.Equal(t, models.ExecutionStatusPending, run.Status())
	assert.Nil(t, run.Output())

	counter, ok := run.Variable("counter")
	require.True(t, ok)
	assert.InDelta(t, 3.0, counter, 0)

	settings, _ := run.Variable("settings")
	settings.(map[string]any)["retries"] = float64(9)
	assert.InDelta(t, 0.0, defaults["retries"], 0, "declaration defaults must not be shared with the run")

	_, ok = run.Variable("missing")
	assert.False(t, ok)
}

func TestContext_VisitsAndPath(t *testing.T) {
	t.Parallel()

	run := New(testutil.NewFlow("f").Build(), "exec", nil)

	run.RecordVisit("start")
	run.RecordVisit("a")
	run.RecordVisit("a")

	assert.Equal(t, []string{"start", "a", "a"}, run.Path())
	assert.Equal(t, 2, run.VisitCount("a"))
	assert.Equal(t, 0, run.VisitCount("end"))

	path := run.Path()
	path[0] = "mutated"
	assert.Equal(t, "start", run.Path()[0])
}

func TestContext_Transition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		steps       []models.ExecutionStatus
		next        models.ExecutionStatus
		expectError bool
	}{
		{name: "pending to running", next: models.ExecutionStatusRunning},
		{name: "pending to cancelled", next: models.ExecutionStatusCancelled},
		{name: "running to completed", steps: []models.ExecutionStatus{models.ExecutionStatusRunning}, next: models.ExecutionStatusCompleted},
		{name: "running to failed", steps: []models.ExecutionStatus{models.ExecutionStatusRunning}, next: models.ExecutionStatusFailed},
		{name: "running back to pending", steps: []models.ExecutionStatus{models.ExecutionStatusRunning}, next: models.ExecutionStatusPending, expectError: true},
		{name: "completed to running", steps: []models.ExecutionStatus{models.ExecutionStatusRunning, models.ExecutionStatusCompleted}, next: models.ExecutionStatusRunning, expectError: true},
		{name: "failed to cancelled", steps: []models.ExecutionStatus{models.ExecutionStatusFailed}, next: models.ExecutionStatusCancelled, expectError: true},
		{name: "cancelled to completed", steps: []models.ExecutionStatus{models.ExecutionStatusCancelled}, next: models.ExecutionStatusCompleted, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			run := New(testutil.NewFlow("f").Build(), "exec", nil)
			for _, step := range tt.steps {
				require.NoError(t, run.Transition(step, nil))
			}

			before := run.Status()
			err := run.Transition(tt.next, nil)

			if tt.expectError {
				require.ErrorIs(t, err, ErrInvalidStateTransition)
				assert.Equal(t, before, run.Status())

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.next, run.Status())
		})
	}
}

func TestContext_TerminalTransitionSetsCompletion(t *testing.T) {
	t.Parallel()

	started := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := started

	run := newWithClock(testutil.NewFlow("f").Build(), "exec", nil, func() time.Time { return clock })
	require.NoError(t, run.Transition(models.ExecutionStatusRunning, nil))

	clock = started.Add(1500 * time.Millisecond)
	detail := &models.ExecutionError{Code: models.ErrorCodeDeadEnd, Message: "no way out", NodeID: "a"}
	require.NoError(t, run.Transition(models.ExecutionStatusFailed, detail))

	record := run.Record()
	require.NotNil(t, record.CompletedAt)
	assert.Equal(t, started, record.StartedAt)
	assert.Equal(t, clock, *record.CompletedAt)
	assert.Equal(t, int64(1500), record.DurationMs)
	assert.Equal(t, models.ErrorCodeDeadEnd, record.Error.Code)
	assert.Equal(t, detail, run.ErrorDetail())
}

func TestContext_CompletionNeverPrecedesStart(t *testing.T) {
	t.Parallel()

	started := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := started

	run := newWithClock(testutil.NewFlow("f").Build(), "exec", nil, func() time.Time { return clock })

	clock = started.Add(-time.Second)
	require.NoError(t, run.Transition(models.ExecutionStatusCancelled, nil))

	snapshot := run.Snapshot()
	require.NotNil(t, snapshot.CompletedAt)
	assert.Equal(t, started, *snapshot.CompletedAt)
}

func TestContext_SnapshotIsDeepCopy(t *testing.T) {
	t.Parallel()

	input := map[string]any{"items": []any{"a"}}
	run := New(testutil.NewFlow("f").Build(), "exec", input)
	run.SetVariable("nested", map[string]any{"k": "v"})
	run.SetCurrentNode("n1")
	run.RecordVisit("n1")

	snapshot := run.Snapshot()

	snapshot.Variables["nested"].(map[string]any)["k"] = "changed"
	snapshot.InputData.(map[string]any)["items"].([]any)[0] = "changed"
	snapshot.ExecutionPath[0] = "changed"

	nested, _ := run.Variable("nested")
	assert.Equal(t, "v", nested.(map[string]any)["k"])
	assert.Equal(t, "a", input["items"].([]any)[0])
	assert.Equal(t, []string{"n1"}, run.Path())
	assert.Equal(t, "n1", snapshot.CurrentNodeID)
}

func TestFromRecord(t *testing.T) {
	t.Parallel()

	run := New(testutil.NewFlow("f").Build(), "exec", map[string]any{"a": 1})
	require.NoError(t, run.Transition(models.ExecutionStatusRunning, nil))
	run.SetOutput("done")
	require.NoError(t, run.Transition(models.ExecutionStatusCompleted, nil))

	snapshot := FromRecord(run.Record())

	assert.Equal(t, "exec", snapshot.ExecutionID)
	assert.Equal(t, models.ExecutionStatusCompleted, snapshot.Status)
	assert.Equal(t, "done", snapshot.OutputData)
	assert.NotNil(t, snapshot.CompletedAt)
}
