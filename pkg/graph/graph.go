// Package graph provides static validation and read-only queries over flow graphs.
package graph

import (
	"github.com/dukex/flowrun/pkg/models"
)

// FindNode returns the node with the given id.
func FindNode(flow *models.Flow, nodeID string) (*models.Node, bool) {
	for _, node := range flow.Nodes {
		if node != nil && node.ID == nodeID {
			return node, true
		}
	}

	return nil, false
}

// StartNode returns the flow's start node. When a flow declares more than one,
// the first in declaration order is returned; Validate rejects such flows.
func StartNode(flow *models.Flow) (*models.Node, error) {
	for _, node := range flow.Nodes {
		if node != nil && node.Type == models.NodeTypeStart {
			return node, nil
		}
	}

	return nil, ErrNoStartNode
}

// OutgoingConnections returns the connections leaving nodeID in declaration order.
// That order is the tie-break whenever more than one edge could be taken.
func OutgoingConnections(flow *models.Flow, nodeID string) []*models.Connection {
	var outgoing []*models.Connection

	for _, conn := range flow.Connections {
		if conn != nil && conn.SourceNodeID == nodeID {
			outgoing = append(outgoing, conn)
		}
	}

	return outgoing
}

// ConnectionsByHandle filters connections down to those tagged with handle.
func ConnectionsByHandle(connections []*models.Connection, handle string) []*models.Connection {
	var matched []*models.Connection

	for _, conn := range connections {
		if conn.SourceHandle == handle {
			matched = append(matched, conn)
		}
	}

	return matched
}
