package models

// NodeType is the kind of a node. The set is closed: the engine has exactly one
// executor per kind.
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeEnd       NodeType = "end"
	NodeTypeCondition NodeType = "condition"
	NodeTypeAction    NodeType = "action"
	NodeTypeDelay     NodeType = "delay"
	NodeTypeVariable  NodeType = "variable"
)

// NodeTypes lists every known node kind in a stable order.
func NodeTypes() []NodeType {
	return []NodeType{
		NodeTypeStart,
		NodeTypeEnd,
		NodeTypeCondition,
		NodeTypeAction,
		NodeTypeDelay,
		NodeTypeVariable,
	}
}

// Branch handles emitted by condition nodes.
const (
	HandleTrue  = "true"
	HandleFalse = "false"
)

// Node represents a node instance in a flow.
type Node struct {
	ID        string         `json:"id"         validate:"required"`
	Type      NodeType       `json:"type"       validate:"required,oneof=start end condition action delay variable"`
	Name      string         `json:"name,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// Connection is a directed edge between two nodes. SourceHandle selects the branch
// of a condition node the edge belongs to.
type Connection struct {
	ID           string `json:"id,omitempty"`
	SourceNodeID string `json:"source_node_id"          validate:"required"`
	TargetNodeID string `json:"target_node_id"          validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
}

// ConfigString returns a string config value, or "" when absent or not a string.
func (n *Node) ConfigString(key string) string {
	if n.Config == nil {
		return ""
	}

	s, _ := n.Config[key].(string)

	return s
}
