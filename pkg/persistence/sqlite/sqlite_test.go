package sqlite

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPersistence(t *testing.T) (*Persistence, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "flowrun.db")

	p, err := NewPersistence(t.Context(), slog.Default(), "sqlite://"+path)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = p.Close(t.Context())
	})

	return p, path
}

func TestPersistence_Contract(t *testing.T) {
	t.Parallel()

	p, _ := newTestPersistence(t)

	persistencetest.Run(t, p)
}

func TestPersistence_ReopenKeepsRecords(t *testing.T) {
	t.Parallel()

	p, path := newTestPersistence(t)

	require.NoError(t, p.ExecutionRepository().Save(t.Context(), &models.ExecutionRecord{
		ID: "exec-1", FlowID: "flow-1", Status: models.ExecutionStatusCompleted,
	}))
	require.NoError(t, p.Close(t.Context()))

	reopened, err := NewPersistence(t.Context(), slog.Default(), path)
	require.NoError(t, err)

	defer func() { _ = reopened.Close(t.Context()) }()

	got, err := reopened.ExecutionRepository().GetByID(t.Context(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, got.Status)
}

func TestPersistence_Closed(t *testing.T) {
	t.Parallel()

	p, _ := newTestPersistence(t)

	require.NoError(t, p.Close(t.Context()))
	require.NoError(t, p.Close(t.Context()))

	require.ErrorIs(t, p.HealthCheck(t.Context()), ErrClosed)

	_, err := p.ExecutionRepository().GetByID(t.Context(), "exec-1")
	require.ErrorIs(t, err, ErrClosed)
}
