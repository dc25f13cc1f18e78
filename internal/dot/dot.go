// internal/dot/dot.go
//
// Graphviz DOT as a tree interchange format: Compile turns an authored DOT
// sketch into a DecisionTree, Marshal renders a tree back out for
// reviewing and diffing. Edge order in the DOT *text* becomes the ordered
// children list, so the author's first edge is the true branch.
package dot

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"

	"github.com/caire-health/triage-engine/internal/tree"
)

const defaultRootID = "root"

// Compile parses a DOT sketch into a DecisionTree. Node attributes carry
// the payload (kind, label, variable/op/threshold, recommendation/urgency,
// expression). Variables are inferred from conditions, typed by their
// threshold literal.
func Compile(source string) (*tree.Tree, error) {
	ast, err := gographviz.ParseString(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DOT: %w", err)
	}

	g := gographviz.NewGraph()
	if err := gographviz.Analyse(ast, g); err != nil {
		return nil, fmt.Errorf("failed to analyze DOT: %w", err)
	}

	t := &tree.Tree{
		ID:      getAttr(g.Attrs, "id"),
		Name:    g.Name,
		Version: getAttr(g.Attrs, "version"),
		RootID:  getAttr(g.Attrs, "root"),
		Nodes:   map[string]*tree.Node{},
	}
	if t.ID == "" {
		t.ID = g.Name
	}
	if t.Version == "" {
		t.Version = "1.0.0"
	}
	if t.RootID == "" {
		t.RootID = defaultRootID
	}

	for _, n := range g.Nodes.Nodes {
		if _, dup := t.Nodes[n.Name]; dup {
			return nil, fmt.Errorf("duplicate node %q", n.Name)
		}
		node, err := compileNode(n)
		if err != nil {
			return nil, err
		}
		t.Nodes[n.Name] = node
	}

	if _, ok := t.Nodes[t.RootID]; !ok {
		return nil, fmt.Errorf("missing root node %q", t.RootID)
	}

	// gographviz does not preserve edge statement order, and children
	// order is load-bearing, so edges are re-extracted from the text.
	edges, err := extractEdgesInTextOrder(source)
	if err != nil {
		return nil, fmt.Errorf("failed to extract edge order: %w", err)
	}
	for _, e := range edges {
		from, ok := t.Nodes[e.From]
		if !ok {
			return nil, fmt.Errorf("edge references unknown source node %q", e.From)
		}
		if _, ok := t.Nodes[e.To]; !ok {
			return nil, fmt.Errorf("edge references unknown destination node %q", e.To)
		}
		from.Children = append(from.Children, e.To)
	}

	inferVariables(t)
	return t, nil
}

func compileNode(n *gographviz.Node) (*tree.Node, error) {
	kind := tree.NodeKind(getAttr(n.Attrs, "kind"))
	if kind == "" {
		kind = tree.KindQuestion
	}

	node := &tree.Node{
		ID:          n.Name,
		Kind:        kind,
		Label:       getAttr(n.Attrs, "label"),
		Description: getAttr(n.Attrs, "description"),
	}
	if node.Label == "" {
		node.Label = n.Name
	}

	switch kind {
	case tree.KindCondition, tree.KindRoot, tree.KindQuestion:
		variable := getAttr(n.Attrs, "variable")
		if variable == "" && kind == tree.KindCondition {
			return nil, fmt.Errorf("condition node %q has no variable attribute", n.Name)
		}
		if variable != "" {
			node.Condition = &tree.ConditionSpec{
				Variable:  variable,
				Operator:  tree.Operator(getAttr(n.Attrs, "op")),
				Threshold: parseLiteral(getAttr(n.Attrs, "threshold")),
				Unit:      getAttr(n.Attrs, "unit"),
			}
		}
	case tree.KindAction, tree.KindOutcome:
		rec := getAttr(n.Attrs, "recommendation")
		if rec != "" || getAttr(n.Attrs, "urgency") != "" {
			node.Action = &tree.ActionSpec{
				Recommendation: rec,
				Urgency:        tree.Urgency(getAttr(n.Attrs, "urgency")),
			}
		}
	case tree.KindScore:
		expression := getAttr(n.Attrs, "expression")
		if expression == "" {
			return nil, fmt.Errorf("score node %q has no expression attribute", n.Name)
		}
		node.Score = &tree.ScoreSpec{Expression: expression}
		if raw := getAttr(n.Attrs, "threshold"); raw != "" {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("score node %q has non-numeric threshold %q", n.Name, raw)
			}
			node.Score.Threshold = &f
		}
	default:
		return nil, fmt.Errorf("node %q has unknown kind %q", n.Name, kind)
	}

	return node, nil
}

// inferVariables declares every condition variable the sketch refers to,
// typed by its threshold literal. An authored JSON tree would declare
// these explicitly; a DOT sketch keeps authoring light.
func inferVariables(t *tree.Tree) {
	ids := make([]string, 0, len(t.Nodes))
	for id := range t.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	seen := map[string]struct{}{}
	for _, id := range ids {
		c := t.Nodes[id].Condition
		if c == nil {
			continue
		}
		if _, ok := seen[c.Variable]; ok {
			continue
		}
		seen[c.Variable] = struct{}{}

		varType := tree.VariableCategorical
		switch c.Threshold.(type) {
		case float64, int:
			varType = tree.VariableNumeric
		case bool:
			varType = tree.VariableBoolean
		}
		t.Variables = append(t.Variables, tree.Variable{
			Name:   c.Variable,
			Type:   varType,
			Units:  c.Unit,
			Source: "inferred",
		})
	}
}

// Marshal renders the tree as DOT: diamonds for branch points, boxes for
// terminals, yes/no edge labels on the positional branches.
func Marshal(t *tree.Tree) (string, error) {
	g := gographviz.NewGraph()
	name := strconv.Quote(t.Name)
	if t.Name == "" {
		name = strconv.Quote(t.ID)
	}
	if err := g.SetName(name); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}

	ids := make([]string, 0, len(t.Nodes))
	for id := range t.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		n := t.Nodes[id]
		attrs := map[string]string{
			"label": strconv.Quote(nodeCaption(n)),
			"shape": shapeFor(n.Kind),
		}
		if err := g.AddNode(name, strconv.Quote(id), attrs); err != nil {
			return "", err
		}
	}

	for _, id := range ids {
		n := t.Nodes[id]
		branching := n.Condition != nil || (n.Score != nil && n.Score.Threshold != nil)
		for i, childID := range n.Children {
			attrs := map[string]string{}
			if branching && i < 2 {
				if i == 0 {
					attrs["label"] = strconv.Quote("yes")
				} else {
					attrs["label"] = strconv.Quote("no")
				}
			}
			if err := g.AddEdge(strconv.Quote(id), strconv.Quote(childID), true, attrs); err != nil {
				return "", err
			}
		}
	}

	return g.String(), nil
}

func nodeCaption(n *tree.Node) string {
	switch {
	case n.Condition != nil:
		return fmt.Sprintf("%s %s %v", n.Condition.Variable, n.Condition.Operator, n.Condition.Threshold)
	case n.Score != nil:
		return n.Score.Expression
	case n.Action != nil && n.Action.Recommendation != "":
		return n.Action.Recommendation
	default:
		return n.Label
	}
}

func shapeFor(kind tree.NodeKind) string {
	switch kind {
	case tree.KindCondition, tree.KindScore:
		return "diamond"
	case tree.KindAction, tree.KindOutcome:
		return "box"
	default:
		return "ellipse"
	}
}

// getAttr reads a Graphviz attribute, stripping the quotes the parser
// keeps around string values.
func getAttr(attrs gographviz.Attrs, key string) string {
	val, ok := attrs[gographviz.Attr(key)]
	if !ok {
		return ""
	}
	val = strings.TrimSpace(val)
	if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
		val = val[1 : len(val)-1]
	}
	return val
}

// parseLiteral types a threshold attribute: bool, number, or string.
func parseLiteral(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if s == "true" {
		return true
	}
	if s == "false" {
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if len(s) >= 2 && ((s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'')) {
		return s[1 : len(s)-1]
	}
	return s
}
