// internal/tree/eval/expr.go
//
// Score expression grammar: arithmetic, and/or/not, comparisons, variable
// references and literals, delegated to expr-lang. Identifiers collects
// variable references without evaluating, for static name-checking.
package eval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// Validate rejects expressions outside the score grammar before they are
// parsed: no member access, no function calls, no collection literals.
func Validate(expression string) error {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return fmt.Errorf("expression is empty")
	}

	for _, ch := range []rune{'{', '}', '[', ']', ';', '?', '@', '#', '$', '\\'} {
		if strings.ContainsRune(expression, ch) {
			return fmt.Errorf("illegal character %q", ch)
		}
	}
	if strings.Contains(expression, ".") && !containsOnlyNumericDots(expression) {
		return fmt.Errorf("member access is not allowed")
	}

	root, err := parse(expression)
	if err != nil {
		return err
	}

	v := &grammarVisitor{}
	ast.Walk(&root, v)
	return v.err
}

// Identifiers returns the sorted, de-duplicated variable names referenced
// by the expression.
func Identifiers(expression string) ([]string, error) {
	root, err := parse(expression)
	if err != nil {
		return nil, err
	}

	v := &identifierVisitor{seen: map[string]struct{}{}}
	ast.Walk(&root, v)

	names := make([]string, 0, len(v.seen))
	for name := range v.seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// EvalNumber evaluates the expression over vars to a float64. Booleans
// coerce to 0/1 so "spo2 < 92 and hr > 100" style sub-scores sum cleanly.
func EvalNumber(expression string, vars map[string]any) (float64, error) {
	if err := Validate(expression); err != nil {
		return 0, err
	}

	out, err := expr.Eval(expression, vars)
	if err != nil {
		return 0, err
	}

	switch v := out.(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("expression must evaluate to a number (got %T)", out)
	}
}

func parse(expression string) (ast.Node, error) {
	tree, err := parser.Parse(strings.TrimSpace(expression))
	if err != nil {
		return nil, fmt.Errorf("failed to parse expression: %w", err)
	}
	return tree.Node, nil
}

type identifierVisitor struct {
	seen map[string]struct{}
}

func (v *identifierVisitor) Visit(node *ast.Node) {
	if id, ok := (*node).(*ast.IdentifierNode); ok {
		v.seen[id.Value] = struct{}{}
	}
}

type grammarVisitor struct {
	err error
}

func (v *grammarVisitor) Visit(node *ast.Node) {
	if v.err != nil {
		return
	}
	switch n := (*node).(type) {
	case *ast.CallNode:
		v.err = fmt.Errorf("function calls are not allowed")
	case *ast.MemberNode:
		v.err = fmt.Errorf("member access is not allowed")
	case *ast.BinaryNode:
		switch n.Operator {
		case "+", "-", "*", "/", "and", "or", "&&", "||",
			"==", "!=", "<", ">", "<=", ">=":
		default:
			v.err = fmt.Errorf("operator %q is not allowed", n.Operator)
		}
	case *ast.UnaryNode:
		switch n.Operator {
		case "-", "+", "not", "!":
		default:
			v.err = fmt.Errorf("operator %q is not allowed", n.Operator)
		}
	}
}

// containsOnlyNumericDots allows "." inside float literals while still
// rejecting member access, which the parser would otherwise accept.
func containsOnlyNumericDots(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '.' {
			continue
		}
		prevDigit := i > 0 && s[i-1] >= '0' && s[i-1] <= '9'
		nextDigit := i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9'
		if !prevDigit && !nextDigit {
			return false
		}
	}
	return true
}
