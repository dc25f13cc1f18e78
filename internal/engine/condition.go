package engine

import (
	"fmt"
	"strings"

	"github.com/caire-health/triage-engine/internal/tree"
)

// evaluateCondition applies one typed comparison. known=false means the
// input value was absent or null, in which case the condition defaults to
// false: absent data must never route a patient down an escalation branch.
func evaluateCondition(value any, c *tree.ConditionSpec) (matched, known bool) {
	switch c.Operator {
	case tree.OpPresent:
		return value != nil && value != "", true
	case tree.OpAbsent:
		return value == nil || value == "", true
	}

	if value == nil {
		return false, false
	}

	switch c.Operator {
	case tree.OpEq:
		return equalValues(value, c.Threshold), true
	case tree.OpNe:
		return !equalValues(value, c.Threshold), true
	case tree.OpLt, tree.OpGt, tree.OpLe, tree.OpGe:
		v, okV := tree.NumberValue(value)
		t, okT := tree.NumberValue(c.Threshold)
		if !okV || !okT {
			return false, true
		}
		switch c.Operator {
		case tree.OpLt:
			return v < t, true
		case tree.OpGt:
			return v > t, true
		case tree.OpLe:
			return v <= t, true
		default:
			return v >= t, true
		}
	case tree.OpContains:
		return containsMatch(value, c.Threshold), true
	default:
		return false, true
	}
}

func equalValues(a, b any) bool {
	if av, ok := tree.NumberValue(a); ok {
		if bv, ok := tree.NumberValue(b); ok {
			return av == bv
		}
		return false
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

// containsMatch handles both threshold shapes: a list threshold matches by
// membership, a string threshold matches by substring in either direction
// (a symptom list input may contain the threshold term, or vice versa).
func containsMatch(value, threshold any) bool {
	switch t := threshold.(type) {
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == fmt.Sprint(value) {
				return true
			}
		}
		return false
	case []string:
		for _, s := range t {
			if s == fmt.Sprint(value) {
				return true
			}
		}
		return false
	case string:
		v := fmt.Sprint(value)
		return strings.Contains(v, t) || strings.Contains(t, v)
	default:
		return false
	}
}
