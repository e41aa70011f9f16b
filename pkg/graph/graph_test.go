package graph_test

import (
	"errors"
	"testing"

	"github.com/dukex/flowrun/pkg/graph"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func violationCodes(result graph.ValidationResult) []string {
	codes := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		codes = append(codes, v.Code)
	}

	return codes
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		flow          *models.Flow
		expectedValid bool
		expectedCodes []string
	}{
		{
			name:          "valid linear flow",
			flow:          testutil.LinearFlow("f1", testutil.CreateTestNode("a", models.NodeTypeAction)),
			expectedValid: true,
		},
		{
			name:          "nil flow",
			flow:          nil,
			expectedCodes: []string{graph.CodeNilFlow},
		},
		{
			name: "missing start node",
			flow: testutil.NewFlow("f2").
				Node("end", models.NodeTypeEnd).
				Build(),
			expectedCodes: []string{graph.CodeNoStartNode},
		},
		{
			name: "two start nodes",
			flow: testutil.NewFlow("f3").
				Node("s1", models.NodeTypeStart).
				Node("s2", models.NodeTypeStart).
				Node("end", models.NodeTypeEnd).
				Build(),
			expectedCodes: []string{graph.CodeMultipleStartNodes},
		},
		{
			name: "missing end node",
			flow: testutil.NewFlow("f4").
				Node("start", models.NodeTypeStart).
				Build(),
			expectedCodes: []string{graph.CodeNoEndNode},
		},
		{
			name: "duplicate node ids",
			flow: testutil.NewFlow("f5").
				Node("start", models.NodeTypeStart).
				Node("x", models.NodeTypeAction).
				Node("x", models.NodeTypeDelay).
				Node("end", models.NodeTypeEnd).
				Build(),
			expectedCodes: []string{graph.CodeDuplicateNodeID},
		},
		{
			name: "unknown node type",
			flow: testutil.NewFlow("f6").
				Node("start", models.NodeTypeStart).
				Node("weird", models.NodeType("teleport")).
				Node("end", models.NodeTypeEnd).
				Build(),
			expectedCodes: []string{graph.CodeInvalidNode},
		},
		{
			name: "dangling connection endpoints",
			flow: testutil.NewFlow("f7").
				Node("start", models.NodeTypeStart).
				Node("end", models.NodeTypeEnd).
				Connect("start", "ghost").
				Connect("phantom", "end").
				Build(),
			expectedCodes: []string{graph.CodeUnknownTarget, graph.CodeUnknownSource},
		},
		{
			name: "cycles are allowed",
			flow: testutil.NewFlow("f8").
				Node("start", models.NodeTypeStart).
				Node("a", models.NodeTypeVariable).
				Node("b", models.NodeTypeVariable).
				Node("end", models.NodeTypeEnd).
				Connect("start", "a").
				Connect("a", "b").
				Connect("b", "a").
				Build(),
			expectedValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := graph.Validate(tt.flow)

			assert.Equal(t, tt.expectedValid, result.Valid)
			assert.Equal(t, tt.expectedCodes, nilIfEmpty(violationCodes(result)))
		})
	}
}

func nilIfEmpty(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}

	return codes
}

func TestValidate_ReportsAllViolations(t *testing.T) {
	t.Parallel()

	flow := &models.Flow{
		ID: "broken",
		Nodes: []*models.Node{
			{ID: "a", Type: models.NodeTypeAction},
			{ID: "a", Type: models.NodeTypeAction},
		},
		Connections: []*models.Connection{
			{ID: "c1", SourceNodeID: "a", TargetNodeID: "missing"},
		},
	}

	result := graph.Validate(flow)

	require.False(t, result.Valid)
	assert.ElementsMatch(t, []string{
		graph.CodeDuplicateNodeID,
		graph.CodeNoStartNode,
		graph.CodeNoEndNode,
		graph.CodeUnknownTarget,
	}, violationCodes(result))

	err := result.Err(flow.ID)
	require.Error(t, err)
	assert.True(t, graph.IsValidationError(err))

	var validationErr *graph.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Len(t, validationErr.Violations, 4)
	assert.Contains(t, err.Error(), "duplicate node id")
}

func TestOutgoingConnections_DeclarationOrder(t *testing.T) {
	t.Parallel()

	flow := testutil.NewFlow("f").
		Node("start", models.NodeTypeStart).
		Node("b", models.NodeTypeEnd).
		Node("a", models.NodeTypeEnd).
		Connect("start", "b").
		Connect("start", "a").
		Build()

	outgoing := graph.OutgoingConnections(flow, "start")

	require.Len(t, outgoing, 2)
	assert.Equal(t, "b", outgoing[0].TargetNodeID)
	assert.Equal(t, "a", outgoing[1].TargetNodeID)
	assert.Empty(t, graph.OutgoingConnections(flow, "a"))
}

func TestConnectionsByHandle(t *testing.T) {
	t.Parallel()

	flow := testutil.NewFlow("f").
		Node("c", models.NodeTypeCondition).
		ConnectHandle("c", "x", models.HandleTrue).
		ConnectHandle("c", "y", models.HandleFalse).
		ConnectHandle("c", "z", models.HandleTrue).
		Build()

	matched := graph.ConnectionsByHandle(graph.OutgoingConnections(flow, "c"), models.HandleTrue)

	require.Len(t, matched, 2)
	assert.Equal(t, "x", matched[0].TargetNodeID)
	assert.Equal(t, "z", matched[1].TargetNodeID)
}

func TestFindNodeAndStartNode(t *testing.T) {
	t.Parallel()

	flow := testutil.LinearFlow("f", testutil.CreateTestNode("mid", models.NodeTypeDelay))

	node, ok := graph.FindNode(flow, "mid")
	require.True(t, ok)
	assert.Equal(t, models.NodeTypeDelay, node.Type)

	_, ok = graph.FindNode(flow, "nope")
	assert.False(t, ok)

	start, err := graph.StartNode(flow)
	require.NoError(t, err)
	assert.Equal(t, "start", start.ID)

	_, err = graph.StartNode(&models.Flow{})
	assert.ErrorIs(t, err, graph.ErrNoStartNode)
}
