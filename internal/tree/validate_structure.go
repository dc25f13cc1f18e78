// internal/tree/validate_structure.go
package tree

import "sort"

// dfs colors for cycle detection.
type color uint8

const (
	white color = iota // unvisited
	gray               // on the current DFS stack
	black              // fully explored
)

// ValidateStructure proves graph well-formedness: every reported problem is
// appended, never returned early, so the author sees the complete picture
// in one round trip. It never fails; an empty slice means well-formed.
func ValidateStructure(t *Tree) []ValidationError {
	var diags []ValidationError

	for id, n := range t.Nodes {
		if n.ID != id {
			diags = append(diags, errorf(CodeDuplicateID, id,
				"node keyed %q declares id %q; ids must be unique and match their key", id, n.ID))
		}
	}

	root, ok := t.Nodes[t.RootID]
	if !ok {
		diags = append(diags, errorf(CodeMissingRoot, t.RootID,
			"root node %q is not present in nodes", t.RootID))
	}

	// One DFS from the root covers dangling children, cycles (back-edge
	// into a gray node) and the reachable set used for orphan detection.
	colors := make(map[string]color, len(t.Nodes))
	if ok {
		var walk func(n *Node)
		walk = func(n *Node) {
			colors[n.ID] = gray
			for _, childID := range n.Children {
				child, exists := t.Nodes[childID]
				if !exists {
					diags = append(diags, errorf(CodeDanglingChild, n.ID,
						"node %q references missing child %q", n.ID, childID))
					continue
				}
				switch colors[childID] {
				case gray:
					diags = append(diags, errorf(CodeCycle, childID,
						"cycle detected: edge %q -> %q closes a loop", n.ID, childID))
				case white:
					walk(child)
				}
			}
			colors[n.ID] = black
		}
		walk(root)
	}

	// Deterministic order for the per-node checks below.
	ids := make([]string, 0, len(t.Nodes))
	for id := range t.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		n := t.Nodes[id]

		if ok && colors[id] == white {
			diags = append(diags, errorf(CodeOrphan, id,
				"node %q is not reachable from root %q", id, t.RootID))
		}

		switch n.Kind {
		case KindAction, KindOutcome:
			if len(n.Children) > 0 {
				diags = append(diags, warnf(CodeDeadBranch, id,
					"%s node %q has children; they can never be reached", n.Kind, id))
			}
		default:
			if len(n.Children) == 0 {
				diags = append(diags, errorf(CodeInvalidTerminal, id,
					"%s node %q has no children; only action/outcome nodes may terminate", n.Kind, id))
			}
		}

		// A branching node dispatches on [true, false] only.
		if (n.Condition != nil || n.Score != nil) && len(n.Children) > 2 {
			diags = append(diags, warnf(CodeDeadBranch, id,
				"node %q has %d children; branches beyond the first two are ignored", id, len(n.Children)))
		}
	}

	return diags
}
