package graph

import (
	"errors"
	"fmt"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationResult lists every violation found in a flow.
type ValidationResult struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations"`
}

// Err returns nil for a valid result, otherwise a *ValidationError.
func (r ValidationResult) Err(flowID string) error {
	if r.Valid {
		return nil
	}

	return &ValidationError{FlowID: flowID, Violations: r.Violations}
}

// Validate checks the structural invariants a flow must satisfy before it can run:
// exactly one start node, at least one end node, unique node ids and connections
// between existing nodes. All violations are collected so a failing publish step
// can surface everything at once.
func Validate(flow *models.Flow) ValidationResult {
	if flow == nil {
		return ValidationResult{
			Violations: []Violation{{Code: CodeNilFlow, Message: "flow is nil"}},
		}
	}

	var violations []Violation

	add := func(v Violation) {
		violations = append(violations, v)
	}

	seen := make(map[string]bool, len(flow.Nodes))
	starts, ends := 0, 0

	for i, node := range flow.Nodes {
		if node == nil {
			add(Violation{Code: CodeInvalidNode, Message: fmt.Sprintf("node at index %d is nil", i)})

			continue
		}

		for _, v := range structViolations(node, CodeInvalidNode, fmt.Sprintf("node %q", node.ID)) {
			v.NodeID = node.ID
			add(v)
		}

		if node.ID != "" {
			if seen[node.ID] {
				add(Violation{
					Code:    CodeDuplicateNodeID,
					Message: fmt.Sprintf("duplicate node id %q", node.ID),
					NodeID:  node.ID,
				})
			}

			seen[node.ID] = true
		}

		switch node.Type {
		case models.NodeTypeStart:
			starts++
		case models.NodeTypeEnd:
			ends++
		}
	}

	switch {
	case starts == 0:
		add(Violation{Code: CodeNoStartNode, Message: "flow must have exactly one start node, found none"})
	case starts > 1:
		add(Violation{
			Code:    CodeMultipleStartNodes,
			Message: fmt.Sprintf("flow must have exactly one start node, found %d", starts),
		})
	}

	if ends == 0 {
		add(Violation{Code: CodeNoEndNode, Message: "flow must have at least one end node"})
	}

	for i, conn := range flow.Connections {
		if conn == nil {
			add(Violation{Code: CodeInvalidConnection, Message: fmt.Sprintf("connection at index %d is nil", i)})

			continue
		}

		label := conn.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}

		for _, v := range structViolations(conn, CodeInvalidConnection, "connection "+label) {
			v.ConnectionID = conn.ID
			add(v)
		}

		if conn.SourceNodeID != "" && !seen[conn.SourceNodeID] {
			add(Violation{
				Code:         CodeUnknownSource,
				Message:      fmt.Sprintf("connection %s references unknown source node %q", label, conn.SourceNodeID),
				ConnectionID: conn.ID,
			})
		}

		if conn.TargetNodeID != "" && !seen[conn.TargetNodeID] {
			add(Violation{
				Code:         CodeUnknownTarget,
				Message:      fmt.Sprintf("connection %s references unknown target node %q", label, conn.TargetNodeID),
				ConnectionID: conn.ID,
			})
		}
	}

	for i := range flow.Variables {
		decl := &flow.Variables[i]
		for _, v := range structViolations(decl, CodeInvalidVariable, fmt.Sprintf("variable #%d", i)) {
			add(v)
		}
	}

	return ValidationResult{
		Valid:      len(violations) == 0,
		Violations: violations,
	}
}

// structViolations runs tag-based validation on s and converts each failing field
// into a Violation.
func structViolations(s any, code, subject string) []Violation {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []Violation{{Code: code, Message: fmt.Sprintf("%s: %v", subject, err)}}
	}

	violations := make([]Violation, 0, len(fieldErrors))

	for _, fe := range fieldErrors {
		message := fmt.Sprintf("%s: field %s failed %q", subject, fe.Field(), fe.Tag())
		if fe.Param() != "" {
			message = fmt.Sprintf("%s: field %s must be one of [%s], got %q", subject, fe.Field(), fe.Param(), fe.Value())
		}

		violations = append(violations, Violation{Code: code, Message: message})
	}

	return violations
}
