package engine

import (
	"time"

	"github.com/caire-health/triage-engine/internal/tree"
	"github.com/caire-health/triage-engine/internal/tree/eval"
)

// Engine interprets a validated decision tree against one input map. It
// assumes both validators have passed; the visited-set guard below turns a
// latent structural bug into a reported cycle_at_runtime instead of an
// infinite loop. Evaluate is a pure function of (tree, inputs) and is safe
// to call concurrently.
type Engine struct {
	latencyObserver NodeLatencyObserver
}

type Option func(*Engine)

func WithNodeLatencyObserver(observer NodeLatencyObserver) Option {
	return func(e *Engine) {
		e.latencyObserver = observer
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate walks t from its root. On failure the returned Evaluation still
// carries the partial path and trace, and err is an *ExecutionError.
func (e *Engine) Evaluate(t *tree.Tree, inputs map[string]any) (*Evaluation, error) {
	ev := &Evaluation{Path: []string{}, Trace: []TraceEntry{}}
	visited := make(map[string]struct{}, len(t.Nodes))

	current := t.RootID
	for {
		stepStart := time.Now()

		node := t.Node(current)
		if node == nil {
			return ev, execErrf(ErrCodeUnknownNode, current, "node %q does not exist", current)
		}
		if _, seen := visited[current]; seen {
			return ev, execErrf(ErrCodeCycleAtRuntime, current, "node %q visited twice in one evaluation", current)
		}
		visited[current] = struct{}{}
		ev.Path = append(ev.Path, current)

		entry := TraceEntry{NodeID: current, Label: node.Label, Kind: node.Kind}

		if node.IsTerminal() {
			outcome := node.Label
			if node.Action != nil && node.Action.Recommendation != "" {
				outcome = node.Action.Recommendation
				ev.Urgency = node.Action.Urgency
			}
			ev.Outcome = outcome
			e.record(&ev.Trace, entry, stepStart)
			e.observe(current, time.Since(stepStart))
			return ev, nil
		}

		next, execErr := e.step(node, inputs, &entry)
		entry.NextNodeID = next
		e.record(&ev.Trace, entry, stepStart)
		e.observe(current, time.Since(stepStart))
		if execErr != nil {
			return ev, execErr
		}
		current = next
	}
}

// step picks the next node id for a non-terminal node and fills the
// entry's condition/score fields.
func (e *Engine) step(node *tree.Node, inputs map[string]any, entry *TraceEntry) (string, *ExecutionError) {
	switch {
	case node.Condition != nil:
		matched, known := evaluateCondition(inputs[node.Condition.Variable], node.Condition)
		entry.Condition = &ConditionTrace{
			Variable:   node.Condition.Variable,
			Operator:   node.Condition.Operator,
			Threshold:  node.Condition.Threshold,
			InputValue: inputs[node.Condition.Variable],
			Result:     branchResult(matched, known),
		}
		return pickBranch(node, matched)

	case node.Score != nil:
		value, err := eval.EvalNumber(node.Score.Expression, inputs)
		if err != nil {
			return "", execErrf(ErrCodeScore, node.ID, "score expression failed: %v", err)
		}
		if node.Score.Threshold == nil {
			// No threshold: the score is informational, the walk
			// continues down the first child.
			entry.Score = &ScoreTrace{Expression: node.Score.Expression, Value: value, Result: ResultTrue}
			if len(node.Children) == 0 {
				return "", execErrf(ErrCodeAmbiguousBranch, node.ID, "score node has no child to continue to")
			}
			return node.Children[0], nil
		}
		matched := value > *node.Score.Threshold
		entry.Score = &ScoreTrace{
			Expression: node.Score.Expression,
			Value:      value,
			Threshold:  node.Score.Threshold,
			Result:     branchResult(matched, true),
		}
		return pickBranch(node, matched)

	default:
		// root/question without an explicit condition: pass-through only.
		if len(node.Children) == 1 {
			return node.Children[0], nil
		}
		return "", execErrf(ErrCodeAmbiguousBranch, node.ID,
			"%s node has %d children and no condition to choose between them", node.Kind, len(node.Children))
	}
}

// pickBranch applies the positional [true_branch, false_branch] rule.
// Children beyond the second are ignored.
func pickBranch(node *tree.Node, matched bool) (string, *ExecutionError) {
	if len(node.Children) == 0 {
		return "", execErrf(ErrCodeAmbiguousBranch, node.ID, "branching node has no children")
	}
	if matched {
		return node.Children[0], nil
	}
	if len(node.Children) < 2 {
		return "", execErrf(ErrCodeNoFalseBranch, node.ID,
			"condition is false and node %q has no false branch", node.ID)
	}
	return node.Children[1], nil
}

func (e *Engine) record(steps *[]TraceEntry, entry TraceEntry, start time.Time) {
	entry.DurationMicros = time.Since(start).Microseconds()
	*steps = append(*steps, entry)
}

func (e *Engine) observe(nodeID string, d time.Duration) {
	if e.latencyObserver != nil {
		e.latencyObserver.ObserveNodeLatency(nodeID, d)
	}
}

func branchResult(matched, known bool) string {
	switch {
	case !known:
		return ResultUnknown
	case matched:
		return ResultTrue
	default:
		return ResultFalse
	}
}
