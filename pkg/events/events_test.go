package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents_GetType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		event    interface{ GetType() EventType }
		expected EventType
	}{
		{ExecutionStarted{}, ExecutionStartedEvent},
		{NodeEntered{}, NodeEnteredEvent},
		{NodeCompleted{}, NodeCompletedEvent},
		{ExecutionCompleted{}, ExecutionCompletedEvent},
		{ExecutionFailed{}, ExecutionFailedEvent},
		{ExecutionCancelled{}, ExecutionCancelledEvent},
		{Notification{}, NotificationEvent},
	}

	for _, tt := range tests {
		t.Run(string(tt.expected), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, tt.event.GetType())

			decoded, ok := New(tt.expected)
			require.True(t, ok)
			assert.NotNil(t, decoded)
		})
	}
}

func TestNew_UnknownType(t *testing.T) {
	t.Parallel()

	_, ok := New("flowrun.unknown")
	assert.False(t, ok)
}

func TestNewBaseEvent(t *testing.T) {
	t.Parallel()

	base := NewBaseEvent(NodeEnteredEvent, "exec-1", "flow-1")

	assert.NotEmpty(t, base.ID)
	assert.Equal(t, NodeEnteredEvent, base.Type)
	assert.Equal(t, "exec-1", base.Key())
	assert.Equal(t, "flow-1", base.FlowID)
	assert.False(t, base.Timestamp.IsZero())
}

func TestExecutionFailed_JSON(t *testing.T) {
	t.Parallel()

	original := ExecutionFailed{
		BaseEvent: NewBaseEvent(ExecutionFailedEvent, "exec-456", "flow-1"),
		Error: models.ExecutionError{
			Code:    models.ErrorCodeDeadEnd,
			Message: "node has no outgoing connection",
			NodeID:  "cond",
		},
		DurationMs:    12,
		NodesExecuted: 2,
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"type":"flowrun.execution.failed"`)
	assert.Contains(t, string(jsonData), `"execution_id":"exec-456"`)
	assert.Contains(t, string(jsonData), `"code":"DEAD_END"`)

	var decoded ExecutionFailed

	require.NoError(t, json.Unmarshal(jsonData, &decoded))
	assert.Equal(t, original.Error, decoded.Error)
	assert.Equal(t, 2, decoded.NodesExecuted)
}

func TestTopics(t *testing.T) {
	t.Parallel()

	topics := Topics()

	assert.Len(t, topics, 7)
	assert.Contains(t, topics, "flowrun.notifications")
}
