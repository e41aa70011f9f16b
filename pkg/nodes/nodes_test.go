package nodes

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/execution"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnv(t *testing.T, input any, vars ...models.VariableDeclaration) Env {
	t.Helper()

	flow := testutil.NewFlow("flow-1").Build()
	flow.Variables = vars

	return Env{
		Run:    execution.New(flow, "exec-1", input),
		Cancel: make(chan struct{}),
		Logger: slog.Default(),
	}
}

func node(id string, nodeType models.NodeType, config map[string]any) *models.Node {
	return testutil.CreateTestNode(id, nodeType, testutil.WithConfig(config))
}

func TestRegistry_CoversEveryNodeType(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(registry.NewRegistry(slog.Default()))

	for _, nodeType := range models.NodeTypes() {
		_, ok := reg.Lookup(nodeType)
		assert.True(t, ok, nodeType)
	}

	_, ok := reg.Lookup("trigger")
	assert.False(t, ok)
}

func TestStart_TransitionsToRunningAndEmitsInput(t *testing.T) {
	t.Parallel()

	input := map[string]any{"x": 1}
	env := newEnv(t, input)

	outcome := executeStart(t.Context(), node("start", models.NodeTypeStart, nil), nil, env)

	assert.True(t, outcome.Result.Success)
	assert.Equal(t, input, outcome.Result.OutputData)
	assert.Equal(t, models.ExecutionStatusRunning, env.Run.Status())
	assert.False(t, outcome.Terminal)
}

func TestEnd_CapturesOutput(t *testing.T) {
	t.Parallel()

	env := newEnv(t, nil)

	outcome := executeEnd(t.Context(), node("end", models.NodeTypeEnd, nil), "payload", env)

	assert.True(t, outcome.Terminal)
	assert.True(t, outcome.Result.Success)
	assert.Equal(t, "payload", env.Run.Output())
}

func TestCondition_SelectsBranch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      any
		config     map[string]any
		wantBranch string
		wantErr    bool
	}{
		{
			name:       "true branch",
			input:      map[string]any{"x": 5},
			config:     map[string]any{"rules": []any{map[string]any{"field": "input.x", "operator": "equals", "value": 5}}},
			wantBranch: models.HandleTrue,
		},
		{
			name:  "and with all rules false",
			input: map[string]any{"x": 1},
			config: map[string]any{
				"operator":    "AND",
				"defaultPath": "fallback",
				"rules": []any{
					map[string]any{"field": "input.x", "operator": "equals", "value": 5},
					map[string]any{"field": "input.x", "operator": "greater_than", "value": 3},
				},
			},
			wantBranch: models.HandleFalse,
		},
		{
			name:    "unknown operator fails",
			config:  map[string]any{"rules": []any{map[string]any{"field": "x", "operator": "regex"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newEnv(t, tt.input)
			outcome := executeCondition(t.Context(), node("cond", models.NodeTypeCondition, tt.config), "data", env)

			if tt.wantErr {
				assert.False(t, outcome.Result.Success)
				assert.NotEmpty(t, outcome.Result.Error)

				return
			}

			assert.True(t, outcome.Result.Success)
			assert.Equal(t, tt.wantBranch, outcome.Branch)
			assert.Equal(t, "data", outcome.Result.OutputData)
			assert.Equal(t, tt.config["defaultPath"], nilIfEmpty(outcome.Fallback))
		})
	}
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func TestVariable_Operations(t *testing.T) {
	t.Parallel()

	env := newEnv(t, map[string]any{"name": "ana"},
		models.VariableDeclaration{Name: "counter", DefaultValue: 10},
		models.VariableDeclaration{Name: "list", DefaultValue: []any{"a"}},
	)

	steps := []struct {
		config map[string]any
		check  func(t *testing.T, outcome Outcome)
	}{
		{
			config: map[string]any{"variableName": "counter", "operation": "increment"},
			check: func(t *testing.T, _ Outcome) {
				v, _ := env.Run.Variable("counter")
				assert.InDelta(t, 11, v, 0)
			},
		},
		{
			config: map[string]any{"variableName": "counter", "operation": "decrement", "value": 4},
			check: func(t *testing.T, _ Outcome) {
				v, _ := env.Run.Variable("counter")
				assert.InDelta(t, 7, v, 0)
			},
		},
		{
			config: map[string]any{"variableName": "list", "operation": "append", "value": "b"},
			check: func(t *testing.T, _ Outcome) {
				v, _ := env.Run.Variable("list")
				assert.Equal(t, []any{"a", "b"}, v)
			},
		},
		{
			config: map[string]any{"variableName": "greeting", "operation": "set", "value": "hi {{ .input.name }}", "scope": "global"},
			check: func(t *testing.T, outcome Outcome) {
				v, _ := env.Run.Variable("greeting")
				assert.Equal(t, "hi ana", v)
				assert.Equal(t, "current", outcome.Result.OutputData)
			},
		},
		{
			config: map[string]any{"variableName": "greeting", "operation": "get"},
			check: func(t *testing.T, outcome Outcome) {
				assert.Equal(t, "hi ana", outcome.Result.OutputData)
			},
		},
	}

	for _, s := range steps {
		outcome := executeVariable(t.Context(), node("var", models.NodeTypeVariable, s.config), "current", env)
		require.True(t, outcome.Result.Success, outcome.Result.Error)
		s.check(t, outcome)
	}
}

func TestVariable_Failures(t *testing.T) {
	t.Parallel()

	env := newEnv(t, nil, models.VariableDeclaration{Name: "text", DefaultValue: "abc"}, models.VariableDeclaration{Name: "obj", DefaultValue: map[string]any{}})

	tests := []struct {
		name   string
		config map[string]any
	}{
		{"missing name", map[string]any{"operation": "set"}},
		{"unknown operation", map[string]any{"variableName": "x", "operation": "multiply"}},
		{"increment non numeric", map[string]any{"variableName": "text", "operation": "increment"}},
		{"append to object", map[string]any{"variableName": "obj", "operation": "append", "value": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := executeVariable(t.Context(), node("var", models.NodeTypeVariable, tt.config), nil, env)
			assert.False(t, outcome.Result.Success)
			assert.NotEmpty(t, outcome.Result.Error)
		})
	}
}

func TestDelayMillis(t *testing.T) {
	t.Parallel()

	env := newEnv(t, nil, models.VariableDeclaration{Name: "wait", DefaultValue: 2})

	tests := []struct {
		name    string
		config  map[string]any
		want    int64
		wantErr error
	}{
		{"default unit", map[string]any{"duration": 250}, 250, nil},
		{"milliseconds", map[string]any{"duration": 5, "unit": "milliseconds"}, 5, nil},
		{"seconds", map[string]any{"duration": 1.5, "unit": "s"}, 1500, nil},
		{"minutes", map[string]any{"duration": 2, "unit": "minutes"}, 120000, nil},
		{"hours", map[string]any{"duration": 1, "unit": "h"}, 3600000, nil},
		{"variable", map[string]any{"durationType": "variable", "variableName": "wait", "unit": "seconds"}, 2000, nil},
		{"missing variable", map[string]any{"durationType": "variable", "variableName": "nope"}, 0, ErrInvalidDuration},
		{"negative", map[string]any{"duration": -1}, 0, ErrInvalidDuration},
		{"bad unit", map[string]any{"duration": 1, "unit": "days"}, 0, ErrUnknownUnit},
		{"overflowing hours", map[string]any{"duration": 1e13, "unit": "hours"}, 0, ErrInvalidDuration},
		{"overflowing milliseconds", map[string]any{"duration": math.MaxFloat64}, 0, ErrInvalidDuration},
		{"not a number", map[string]any{"duration": math.NaN()}, 0, ErrInvalidDuration},
		{"infinite", map[string]any{"duration": math.Inf(1)}, 0, ErrInvalidDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := DelayMillis(tt.config, env)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDelay_WakesOnCancel(t *testing.T) {
	t.Parallel()

	cancel := make(chan struct{})
	env := newEnv(t, nil)
	env.Cancel = cancel

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(cancel)
	}()

	start := time.Now()
	outcome := executeDelay(t.Context(), node("wait", models.NodeTypeDelay, map[string]any{"duration": 1, "unit": "hours"}), "data", env)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, outcome.Result.Success)
	assert.Equal(t, "data", outcome.Result.OutputData)
}

func TestDelay_WakesOnShutdown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	outcome := executeDelay(ctx, node("wait", models.NodeTypeDelay, map[string]any{"duration": 1, "unit": "h"}), nil, newEnv(t, nil))

	assert.True(t, outcome.Result.Success)
}

func TestDelay_OverflowFails(t *testing.T) {
	t.Parallel()

	outcome := executeDelay(t.Context(), node("wait", models.NodeTypeDelay, map[string]any{"duration": 1e13, "unit": "hours"}), nil, newEnv(t, nil))

	assert.False(t, outcome.Result.Success)
	assert.Contains(t, outcome.Result.Error, ErrInvalidDuration.Error())
}

type echoAction struct {
	config map[string]any
	err    error
}

func (a *echoAction) Execute(_ context.Context, input protocol.ActionInput, _ *slog.Logger) (any, error) {
	if a.err != nil {
		return nil, a.err
	}

	return map[string]any{"config": a.config, "data": input.Data, "node": input.NodeID, "execution": input.ExecutionID}, nil
}

type echoFactory struct {
	err error
}

func (f *echoFactory) ID() string { return "echo" }

func (f *echoFactory) Create(config map[string]any) (protocol.Action, error) {
	return &echoAction{config: config, err: f.err}, nil
}

func TestAction_Dispatch(t *testing.T) {
	t.Parallel()

	reg := registry.NewRegistry(slog.Default())
	reg.RegisterAction(&echoFactory{})

	executor := NewActionExecutor(reg)
	env := newEnv(t, nil)

	outcome := executor.Execute(t.Context(), node("act", models.NodeTypeAction, map[string]any{
		"actionType": "echo",
		"message":    "hi",
	}), "in", env)

	require.True(t, outcome.Result.Success, outcome.Result.Error)

	output, ok := outcome.Result.OutputData.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"message": "hi"}, output["config"])
	assert.Equal(t, "in", output["data"])
	assert.Equal(t, "act", output["node"])
	assert.Equal(t, "exec-1", output["execution"])

	nested := executor.Execute(t.Context(), node("act", models.NodeTypeAction, map[string]any{
		"actionType": "echo",
		"config":     map[string]any{"url": "x"},
	}), nil, env)
	require.True(t, nested.Result.Success)
	assert.Equal(t, map[string]any{"url": "x"}, nested.Result.OutputData.(map[string]any)["config"])
}

func TestAction_Failures(t *testing.T) {
	t.Parallel()

	reg := registry.NewRegistry(slog.Default())
	reg.RegisterAction(&echoFactory{err: errors.New("remote said no")})

	executor := NewActionExecutor(reg)
	env := newEnv(t, nil)

	missing := executor.Execute(t.Context(), node("a", models.NodeTypeAction, nil), nil, env)
	assert.False(t, missing.Result.Success)
	assert.Contains(t, missing.Result.Error, "actionType")

	unknown := executor.Execute(t.Context(), node("a", models.NodeTypeAction, map[string]any{"actionType": "nope"}), nil, env)
	assert.False(t, unknown.Result.Success)
	assert.Contains(t, unknown.Result.Error, "nope")

	failing := executor.Execute(t.Context(), node("a", models.NodeTypeAction, map[string]any{"actionType": "echo"}), nil, env)
	assert.False(t, failing.Result.Success)
	assert.Equal(t, "remote said no", failing.Result.Error)
}
