package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/engine"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/graph"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFlow(t *testing.T, flow *models.Flow) string {
	t.Helper()

	data, err := json.Marshal(flow)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), flow.ID+".json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out

	err := app.Run(t.Context(), append([]string{"flowrun", "--log-level", "error"}, args...))

	return out.String(), err
}

func greetingFlow(id string) *models.Flow {
	return testutil.LinearFlow(id, testutil.CreateTestNode("greet", models.NodeTypeAction, testutil.WithConfig(map[string]any{
		"actionType": "data_transform",
		"expression": "hello {{ .input.name }}",
	})))
}

func TestValidateCommand(t *testing.T) {
	out, err := runApp(t, "validate", writeFlow(t, greetingFlow("ok")))
	require.NoError(t, err)
	assert.Contains(t, out, "flow ok is valid")

	out, err = runApp(t, "validate", writeFlow(t, testutil.NewFlow("bad").Build()))
	require.Error(t, err)
	assert.True(t, graph.IsValidationError(err))
	assert.Contains(t, out, graph.CodeNoStartNode)

	_, err = runApp(t, "validate")
	assert.ErrorIs(t, err, errFlowPathRequired)
}

func TestRunCommand(t *testing.T) {
	path := writeFlow(t, greetingFlow("greeting"))

	out, err := runApp(t, "--database-url", "memory://", "run", "--input", `{"name":"cli"}`, path)
	require.NoError(t, err)

	var result struct {
		Execution models.ExecutionRecord     `json:"execution"`
		Logs      []models.ExecutionLogEntry `json:"logs"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))

	assert.Equal(t, models.ExecutionStatusCompleted, result.Execution.Status)
	assert.Equal(t, "hello cli", result.Execution.OutputData)
	assert.NotEmpty(t, result.Logs)
}

func TestRunCommand_Errors(t *testing.T) {
	draft := greetingFlow("draft")
	draft.Status = models.FlowStatusDraft
	draftPath := writeFlow(t, draft)

	_, err := runApp(t, "run", draftPath)
	require.Error(t, err)

	_, err = runApp(t, "run", "--allow-draft", draftPath)
	require.NoError(t, err)

	_, err = runApp(t, "run", "--input", "{not json", draftPath)
	require.Error(t, err)

	failing := testutil.LinearFlow("failing", testutil.CreateTestNode("act", models.NodeTypeAction,
		testutil.WithConfig(map[string]any{"actionType": "missing"})))

	_, err = runApp(t, "run", writeFlow(t, failing))
	assert.ErrorIs(t, err, errExecutionFailed)
	assert.ErrorIs(t, err, engine.ErrNodeExecution)
}

func TestRunCommand_WithoutInput(t *testing.T) {
	out, err := runApp(t, "run", writeFlow(t, greetingFlow("no-input")))
	require.NoError(t, err)

	var result struct {
		Execution models.ExecutionRecord `json:"execution"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))

	assert.Equal(t, models.ExecutionStatusCompleted, result.Execution.Status)
	assert.Equal(t, "hello <no value>", result.Execution.OutputData)
}

func TestRunCommand_Watch(t *testing.T) {
	var stdout, stderr bytes.Buffer

	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr

	err := app.Run(t.Context(), []string{
		"flowrun", "--log-level", "error", "run", "--watch", "--input", `{"name":"eve"}`,
		writeFlow(t, greetingFlow("watched")),
	})
	require.NoError(t, err)

	var result struct {
		Execution models.ExecutionRecord `json:"execution"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))

	types := map[events.EventType]int{}

	for _, line := range strings.Split(strings.TrimSpace(stderr.String()), "\n") {
		var progress struct {
			Type  events.EventType `json:"type"`
			Event struct {
				ExecutionID string `json:"execution_id"`
			} `json:"event"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &progress), line)
		assert.Equal(t, result.Execution.ID, progress.Event.ExecutionID)

		types[progress.Type]++
	}

	assert.Equal(t, 1, types[events.ExecutionCompletedEvent])
	assert.Equal(t, 3, types[events.NodeEnteredEvent])
	assert.Equal(t, 3, types[events.NodeCompletedEvent])
}

func TestWatchCommand_UnsupportedBus(t *testing.T) {
	_, err := runApp(t, "--event-bus", "none", "watch", "exec-1")
	require.ErrorIs(t, err, cmd.ErrUnsupportedEventBus)

	_, err = runApp(t, "--event-bus", "gochannel", "watch")
	require.ErrorIs(t, err, cmd.ErrUnsupportedEventBus)
}

func TestExampleFlows(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "examples", "flows", "*.json"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		out, err := runApp(t, "validate", path)
		require.NoError(t, err, path)
		assert.Contains(t, out, "is valid")
	}

	out, err := runApp(t, "--database-url", "memory://", "run", "--input", `{"name":"ada"}`,
		filepath.Join("..", "..", "examples", "flows", "greet.json"))
	require.NoError(t, err)

	var result struct {
		Execution models.ExecutionRecord `json:"execution"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))

	assert.Equal(t, map[string]any{"greeting": "hello ada"}, result.Execution.OutputData)
	assert.Equal(t, []string{"start", "has-name", "greet", "end"}, result.Execution.ExecutionPath)
}
