package httprequest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionFactory_ID(t *testing.T) {
	t.Parallel()

	factory := NewActionFactory()
	assert.Equal(t, "http_request", factory.ID())
	assert.Equal(t, "HTTP Request", factory.Name())
	assert.Contains(t, factory.Schema()["required"], "url")
}

func TestActionFactory_Create(t *testing.T) {
	t.Parallel()

	factory := NewActionFactory()

	action, err := factory.Create(map[string]any{
		"url":    "https://api.example.com/test",
		"method": "GET",
	})
	require.NoError(t, err)

	httpAction, ok := action.(*Action)
	require.True(t, ok)
	assert.Equal(t, "https://api.example.com/test", httpAction.URL)
	assert.Equal(t, "GET", httpAction.Method)
}

func TestActionFactory_Create_MissingURL(t *testing.T) {
	t.Parallel()

	factory := NewActionFactory()

	for _, config := range []map[string]any{{"method": "GET"}, {}} {
		_, err := factory.Create(config)
		require.ErrorIs(t, err, ErrHTTPRequestURLInvalid)
		assert.Contains(t, err.Error(), "missing or invalid 'url'")
	}
}
