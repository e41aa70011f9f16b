package registry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAction struct {
	config map[string]any
}

func (m *mockAction) Execute(_ context.Context, _ protocol.ActionInput, _ *slog.Logger) (any, error) {
	return "success", nil
}

type mockFactory struct {
	id string
}

func (f *mockFactory) Create(config map[string]any) (protocol.Action, error) {
	return &mockAction{config: config}, nil
}

func (f *mockFactory) ID() string { return f.id }

type describedFactory struct {
	mockFactory
}

func (f *describedFactory) Name() string        { return "Described" }
func (f *describedFactory) Description() string { return "A described action" }
func (f *describedFactory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

func TestRegistry_RegisterAndCreateAction(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(slog.Default())
	reg.RegisterAction(&mockFactory{id: "test-action"})

	action, err := reg.CreateAction("test-action", map[string]any{"message": "hello"})
	require.NoError(t, err)

	mock, ok := action.(*mockAction)
	require.True(t, ok)
	assert.Equal(t, "hello", mock.config["message"])

	result, err := action.Execute(t.Context(), protocol.ActionInput{}, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "success", result)
}

func TestRegistry_CreateAction_NotRegistered(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(slog.Default())

	_, err := reg.CreateAction("nope", nil)
	require.ErrorIs(t, err, ErrActionNotRegistered)
	assert.Contains(t, err.Error(), "'nope'")
}

func TestRegistry_ActionTypesAndDescribe(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(slog.Default())
	reg.RegisterAction(&mockFactory{id: "zeta"})
	reg.RegisterAction(&describedFactory{mockFactory{id: "alpha"}})

	assert.Equal(t, []string{"alpha", "zeta"}, reg.ActionTypes())

	descriptions := reg.Describe()
	require.Len(t, descriptions, 2)
	assert.Equal(t, "Described", descriptions[0].Name)
	assert.Equal(t, map[string]any{"type": "object"}, descriptions[0].Schema)
	assert.Equal(t, "zeta", descriptions[1].Name)
	assert.Nil(t, descriptions[1].Schema)
}

func TestRegistry_LoadActionPlugins_MissingDirectory(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(slog.Default())

	factories, err := reg.LoadActionPlugins(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, factories)
}
