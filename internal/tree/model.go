// internal/tree/model.go
package tree

import (
	"encoding/json"
	"fmt"
)

type NodeKind string

const (
	KindRoot      NodeKind = "root"
	KindQuestion  NodeKind = "question"
	KindCondition NodeKind = "condition"
	KindAction    NodeKind = "action"
	KindScore     NodeKind = "score"
	KindOutcome   NodeKind = "outcome"
)

type VariableType string

const (
	VariableNumeric     VariableType = "numeric"
	VariableBoolean     VariableType = "boolean"
	VariableCategorical VariableType = "categorical"
)

type Operator string

const (
	OpEq       Operator = "=="
	OpNe       Operator = "!="
	OpLt       Operator = "<"
	OpGt       Operator = ">"
	OpLe       Operator = "<="
	OpGe       Operator = ">="
	OpContains Operator = "contains"
	OpPresent  Operator = "present"
	OpAbsent   Operator = "absent"
)

type Urgency string

const (
	UrgencyEmergency Urgency = "emergency"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyRoutine   Urgency = "routine"
	UrgencyDeferred  Urgency = "deferred"
	UrgencyOther     Urgency = "other"
)

// ConditionSpec compares one declared variable against a threshold.
// Threshold holds a JSON scalar (float64, string, bool) or a []any of
// strings when the operator is "contains".
type ConditionSpec struct {
	Variable  string   `json:"variable"`
	Operator  Operator `json:"operator"`
	Threshold any      `json:"threshold,omitempty"`
	Unit      string   `json:"unit,omitempty"`
}

// ActionSpec is the terminal recommendation carried by action/outcome nodes.
type ActionSpec struct {
	Recommendation string  `json:"recommendation"`
	Urgency        Urgency `json:"urgency_level,omitempty"`
	Code           string  `json:"code,omitempty"`
}

// ScoreSpec evaluates Expression over the input values. When Threshold is
// set, the first child is taken iff the computed value exceeds it; without
// a threshold the first child is taken unconditionally.
type ScoreSpec struct {
	Expression string   `json:"expression"`
	Threshold  *float64 `json:"threshold,omitempty"`
}

// Node is a tagged variant: exactly the payload matching Kind may be set.
// Condition payloads are also allowed on root/question nodes so a branching
// entry point does not need a synthetic child. Children are ordered; for a
// branching node the list reads [true_branch, false_branch]. Extra children
// are not dispatched on (a multi-way categorical form would go here) and
// are flagged by the structural validator.
type Node struct {
	ID          string         `json:"id"`
	Kind        NodeKind       `json:"kind"`
	Label       string         `json:"label"`
	Description string         `json:"description,omitempty"`
	Condition   *ConditionSpec `json:"condition,omitempty"`
	Action      *ActionSpec    `json:"action,omitempty"`
	Score       *ScoreSpec     `json:"score,omitempty"`
	Children    []string       `json:"children,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// IsTerminal reports whether evaluation stops at this node.
func (n *Node) IsTerminal() bool {
	return n.Kind == KindAction || n.Kind == KindOutcome
}

// Variable declares a clinical input the tree's conditions refer to.
// TerminologyMapping values (SNOMED, LOINC codes) are opaque to the engine.
type Variable struct {
	Name               string         `json:"name"`
	Type               VariableType   `json:"type"`
	Units              string         `json:"units,omitempty"`
	TerminologyMapping map[string]any `json:"terminology_mapping,omitempty"`
	Source             string         `json:"source,omitempty"`
	Description        string         `json:"description,omitempty"`
}

type Tree struct {
	ID        string           `json:"id"`
	Version   string           `json:"version"`
	Name      string           `json:"name"`
	Domain    string           `json:"domain,omitempty"`
	RootID    string           `json:"root_id"`
	Nodes     map[string]*Node `json:"nodes"`
	Variables []Variable       `json:"variables,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
}

// Node returns the node for id, or nil.
func (t *Tree) Node(id string) *Node {
	return t.Nodes[id]
}

// VariableByName returns the declared variable, or nil.
func (t *Tree) VariableByName(name string) *Variable {
	for i := range t.Variables {
		if t.Variables[i].Name == name {
			return &t.Variables[i]
		}
	}
	return nil
}

// TestCase exercises one tree with a set of input values. Either
// expectation may be empty; supplied expectations must all hold.
type TestCase struct {
	ID              string         `json:"id"`
	TreeID          string         `json:"tree_id"`
	InputValues     map[string]any `json:"input_values"`
	ExpectedPath    []string       `json:"expected_path,omitempty"`
	ExpectedOutcome string         `json:"expected_outcome,omitempty"`
}

// Decode parses tree JSON and enforces the tagged-union payload rules at
// construction, so an action node carrying a condition can never reach the
// validators or the engine.
func Decode(data []byte) (*Tree, error) {
	var t Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse tree JSON: %w", err)
	}

	if t.RootID == "" {
		return nil, fmt.Errorf("tree %q: root_id is required", t.ID)
	}

	for id, n := range t.Nodes {
		if n == nil {
			return nil, fmt.Errorf("tree %q: node %q is null", t.ID, id)
		}
		if n.ID == "" {
			n.ID = id
		}
		if err := checkNodePayload(n); err != nil {
			return nil, fmt.Errorf("tree %q: %w", t.ID, err)
		}
	}

	seen := make(map[string]struct{}, len(t.Variables))
	for _, v := range t.Variables {
		if v.Name == "" {
			return nil, fmt.Errorf("tree %q: variable with empty name", t.ID)
		}
		if _, dup := seen[v.Name]; dup {
			return nil, fmt.Errorf("tree %q: duplicate variable %q", t.ID, v.Name)
		}
		seen[v.Name] = struct{}{}
		switch v.Type {
		case VariableNumeric, VariableBoolean, VariableCategorical:
		default:
			return nil, fmt.Errorf("tree %q: variable %q has unknown type %q", t.ID, v.Name, v.Type)
		}
	}

	return &t, nil
}

func checkNodePayload(n *Node) error {
	switch n.Kind {
	case KindCondition:
		if n.Condition == nil {
			return fmt.Errorf("node %q: condition node without condition payload", n.ID)
		}
		if n.Action != nil || n.Score != nil {
			return fmt.Errorf("node %q: condition node carries a non-condition payload", n.ID)
		}
	case KindAction, KindOutcome:
		if n.Condition != nil || n.Score != nil {
			return fmt.Errorf("node %q: %s node carries a branching payload", n.ID, n.Kind)
		}
	case KindScore:
		if n.Score == nil || n.Score.Expression == "" {
			return fmt.Errorf("node %q: score node without expression", n.ID)
		}
		if n.Condition != nil || n.Action != nil {
			return fmt.Errorf("node %q: score node carries a non-score payload", n.ID)
		}
	case KindRoot, KindQuestion:
		// May carry a condition (branching entry point), never action/score.
		if n.Action != nil || n.Score != nil {
			return fmt.Errorf("node %q: %s node carries a terminal or score payload", n.ID, n.Kind)
		}
	default:
		return fmt.Errorf("node %q: unknown kind %q", n.ID, n.Kind)
	}
	return nil
}

// NumberValue coerces the numeric shapes that appear in decoded JSON and
// in hand-built test inputs.
func NumberValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
