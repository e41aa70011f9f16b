package memory

import (
	"testing"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistence_Contract(t *testing.T) {
	t.Parallel()

	persistencetest.Run(t, NewPersistence())
}

func TestExecutionRepository_SaveIsolatesCaller(t *testing.T) {
	t.Parallel()

	p := NewPersistence()
	record := &models.ExecutionRecord{ID: "exec-1", Variables: map[string]any{"a": "before"}}

	require.NoError(t, p.ExecutionRepository().Save(t.Context(), record))

	record.Variables["a"] = "after"

	got, err := p.ExecutionRepository().GetByID(t.Context(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "before", got.Variables["a"])
}
