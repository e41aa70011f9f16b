// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"fmt"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test Node with default values that can be overridden.
func CreateTestNode(id string, nodeType models.NodeType, overrides ...func(*models.Node)) *models.Node {
	if id == "" {
		id = uuid.New().String()
	}

	node := &models.Node{
		ID:        id,
		Type:      nodeType,
		Name:      "Test " + string(nodeType),
		Config:    map[string]any{},
		PositionX: 100,
		PositionY: 200,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Config = config
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.Node) {
	return func(n *models.Node) {
		n.Name = name
	}
}

// FlowBuilder assembles flows for tests.
type FlowBuilder struct {
	flow *models.Flow
}

// NewFlow starts a published flow with the given id.
func NewFlow(id string) *FlowBuilder {
	now := time.Now().UTC()

	return &FlowBuilder{
		flow: &models.Flow{
			ID:          id,
			Name:        "Test flow " + id,
			Status:      models.FlowStatusPublished,
			Nodes:       []*models.Node{},
			Connections: []*models.Connection{},
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}

// Node appends a node.
func (b *FlowBuilder) Node(id string, nodeType models.NodeType, overrides ...func(*models.Node)) *FlowBuilder {
	b.flow.Nodes = append(b.flow.Nodes, CreateTestNode(id, nodeType, overrides...))

	return b
}

// Connect appends an unconditioned connection.
func (b *FlowBuilder) Connect(source, target string) *FlowBuilder {
	return b.ConnectHandle(source, target, "")
}

// ConnectHandle appends a connection tagged with a branch handle.
func (b *FlowBuilder) ConnectHandle(source, target, handle string) *FlowBuilder {
	b.flow.Connections = append(b.flow.Connections, &models.Connection{
		ID:           fmt.Sprintf("conn-%d", len(b.flow.Connections)+1),
		SourceNodeID: source,
		TargetNodeID: target,
		SourceHandle: handle,
	})

	return b
}

// Variable declares a flow variable with a default value.
func (b *FlowBuilder) Variable(name string, defaultValue any) *FlowBuilder {
	b.flow.Variables = append(b.flow.Variables, models.VariableDeclaration{
		Name:         name,
		DefaultValue: defaultValue,
		Scope:        models.VariableScopeLocal,
	})

	return b
}

// Status overrides the publish state.
func (b *FlowBuilder) Status(status models.FlowStatus) *FlowBuilder {
	b.flow.Status = status

	return b
}

// InputSchema sets the JSON schema the run input must satisfy.
func (b *FlowBuilder) InputSchema(schema map[string]any) *FlowBuilder {
	b.flow.InputSchema = schema

	return b
}

// Build returns the assembled flow.
func (b *FlowBuilder) Build() *models.Flow {
	return b.flow
}

// LinearFlow builds start -> middle... -> end with the given middle nodes.
func LinearFlow(id string, middle ...*models.Node) *models.Flow {
	b := NewFlow(id).Node("start", models.NodeTypeStart)
	previous := "start"

	for _, node := range middle {
		b.flow.Nodes = append(b.flow.Nodes, node)
		b.Connect(previous, node.ID)
		previous = node.ID
	}

	return b.Node("end", models.NodeTypeEnd).Connect(previous, "end").Build()
}
