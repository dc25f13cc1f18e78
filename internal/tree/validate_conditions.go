// internal/tree/validate_conditions.go
package tree

import (
	"sort"

	"github.com/caire-health/triage-engine/internal/tree/eval"
)

var numericOps = map[Operator]bool{
	OpEq: true, OpNe: true, OpLt: true, OpGt: true, OpLe: true, OpGe: true,
}

var booleanOps = map[Operator]bool{
	OpEq: true, OpNe: true,
}

var categoricalOps = map[Operator]bool{
	OpEq: true, OpNe: true, OpContains: true,
}

// ValidateConditions proves type/operator compatibility between declared
// variables and node payloads. Same collection policy as ValidateStructure:
// every problem is reported, nothing is fatal to the call.
func ValidateConditions(t *Tree) []ValidationError {
	var diags []ValidationError

	ids := make([]string, 0, len(t.Nodes))
	for id := range t.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		n := t.Nodes[id]
		if n.Condition != nil {
			diags = append(diags, checkCondition(t, n)...)
		}
		if n.Score != nil {
			diags = append(diags, checkScore(t, n)...)
		}
	}

	return diags
}

func checkCondition(t *Tree, n *Node) []ValidationError {
	var diags []ValidationError
	c := n.Condition

	v := t.VariableByName(c.Variable)
	if v == nil {
		return append(diags, errorf(CodeMissingVariable, n.ID,
			"condition on node %q references undeclared variable %q", n.ID, c.Variable))
	}

	// present/absent only ask whether a value was supplied; they are valid
	// for every variable type and take no threshold.
	if c.Operator == OpPresent || c.Operator == OpAbsent {
		if c.Threshold != nil {
			diags = append(diags, errorf(CodeTypeMismatch, n.ID,
				"operator %q on node %q takes no threshold", c.Operator, n.ID))
		}
		return diags
	}

	switch v.Type {
	case VariableNumeric:
		if !numericOps[c.Operator] {
			diags = append(diags, errorf(CodeTypeMismatch, n.ID,
				"numeric variable %q used with operator %q", c.Variable, c.Operator))
		}
		if _, ok := NumberValue(c.Threshold); !ok {
			diags = append(diags, errorf(CodeTypeMismatch, n.ID,
				"numeric variable %q compared against non-numeric threshold %v", c.Variable, c.Threshold))
		}
	case VariableBoolean:
		if !booleanOps[c.Operator] {
			diags = append(diags, errorf(CodeTypeMismatch, n.ID,
				"boolean variable %q used with operator %q", c.Variable, c.Operator))
		}
		if _, ok := c.Threshold.(bool); !ok {
			diags = append(diags, errorf(CodeTypeMismatch, n.ID,
				"boolean variable %q compared against non-boolean threshold %v", c.Variable, c.Threshold))
		}
	case VariableCategorical:
		if !categoricalOps[c.Operator] {
			diags = append(diags, errorf(CodeTypeMismatch, n.ID,
				"categorical variable %q used with operator %q", c.Variable, c.Operator))
		}
		if !categoricalThresholdOK(c.Operator, c.Threshold) {
			diags = append(diags, errorf(CodeTypeMismatch, n.ID,
				"categorical variable %q needs a string threshold (or string list for contains)", c.Variable))
		}
	}

	if c.Unit != "" && v.Units != "" && c.Unit != v.Units {
		diags = append(diags, warnf(CodeUnitMismatch, n.ID,
			"node %q compares %q in %q but the variable declares %q", n.ID, c.Variable, c.Unit, v.Units))
	}

	return diags
}

func checkScore(t *Tree, n *Node) []ValidationError {
	var diags []ValidationError

	if err := eval.Validate(n.Score.Expression); err != nil {
		return append(diags, errorf(CodeUnknownIdentifier, n.ID,
			"score expression on node %q is invalid: %v", n.ID, err))
	}

	names, err := eval.Identifiers(n.Score.Expression)
	if err != nil {
		return append(diags, errorf(CodeUnknownIdentifier, n.ID,
			"score expression on node %q cannot be parsed: %v", n.ID, err))
	}

	for _, name := range names {
		if t.VariableByName(name) == nil {
			diags = append(diags, errorf(CodeUnknownIdentifier, n.ID,
				"score expression on node %q references undeclared variable %q", n.ID, name))
		}
	}

	return diags
}

func categoricalThresholdOK(op Operator, threshold any) bool {
	switch v := threshold.(type) {
	case string:
		return true
	case []any:
		if op != OpContains {
			return false
		}
		for _, item := range v {
			if _, ok := item.(string); !ok {
				return false
			}
		}
		return true
	case []string:
		return op == OpContains
	default:
		return false
	}
}
