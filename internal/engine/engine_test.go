package engine

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/caire-health/triage-engine/internal/tree"
)

type spyLatencyObserver struct {
	nodes []string
	durs  []time.Duration
}

func (s *spyLatencyObserver) ObserveNodeLatency(nodeID string, duration time.Duration) {
	s.nodes = append(s.nodes, nodeID)
	s.durs = append(s.durs, duration)
}

// triageTree is the three-branch spo2/hr tree used throughout:
//
//	spo2_check (spo2 < 92) -> [urgent, hr_check]
//	hr_check   (hr > 100)  -> [tachy, routine]
func triageTree() *tree.Tree {
	return &tree.Tree{
		ID: "triage", Version: "1.0.0", Name: "Triage", RootID: "spo2_check",
		Nodes: map[string]*tree.Node{
			"spo2_check": {
				ID: "spo2_check", Kind: tree.KindCondition, Label: "SpO2 below 92?",
				Condition: &tree.ConditionSpec{Variable: "spo2", Operator: tree.OpLt, Threshold: float64(92)},
				Children:  []string{"urgent", "hr_check"},
			},
			"hr_check": {
				ID: "hr_check", Kind: tree.KindCondition, Label: "HR above 100?",
				Condition: &tree.ConditionSpec{Variable: "hr", Operator: tree.OpGt, Threshold: float64(100)},
				Children:  []string{"tachy", "routine"},
			},
			"urgent": {
				ID: "urgent", Kind: tree.KindAction, Label: "Urgent",
				Action: &tree.ActionSpec{Recommendation: "urgent", Urgency: tree.UrgencyUrgent},
			},
			"tachy": {
				ID: "tachy", Kind: tree.KindAction, Label: "Tachycardic",
				Action: &tree.ActionSpec{Recommendation: "tachycardic", Urgency: tree.UrgencyUrgent},
			},
			"routine": {
				ID: "routine", Kind: tree.KindAction, Label: "Routine",
				Action: &tree.ActionSpec{Recommendation: "routine", Urgency: tree.UrgencyRoutine},
			},
		},
		Variables: []tree.Variable{
			{Name: "spo2", Type: tree.VariableNumeric, Units: "%"},
			{Name: "hr", Type: tree.VariableNumeric, Units: "bpm"},
		},
	}
}

func pathOf(ev *Evaluation) []string { return ev.Path }

func samePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEvaluate_TrueBranch(t *testing.T) {
	ev, err := New().Evaluate(triageTree(), map[string]any{"spo2": 90.0})
	if err != nil {
		t.Fatal(err)
	}
	if !samePath(pathOf(ev), []string{"spo2_check", "urgent"}) {
		t.Fatalf("unexpected path: %#v", ev.Path)
	}
	if ev.Outcome != "urgent" || ev.Urgency != tree.UrgencyUrgent {
		t.Fatalf("unexpected outcome: %q / %q", ev.Outcome, ev.Urgency)
	}
}

func TestEvaluate_FalseBranchEndToEnd(t *testing.T) {
	ev, err := New().Evaluate(triageTree(), map[string]any{"spo2": 95.0, "hr": 110.0})
	if err != nil {
		t.Fatal(err)
	}
	if !samePath(pathOf(ev), []string{"spo2_check", "hr_check", "tachy"}) {
		t.Fatalf("unexpected path: %#v", ev.Path)
	}
	if ev.Outcome != "tachycardic" {
		t.Fatalf("unexpected outcome: %q", ev.Outcome)
	}
}

func TestEvaluate_MissingVariableIsUnknownAndFalse(t *testing.T) {
	// spo2 absent: the condition must not escalate; the walk takes the
	// false branch and the trace marks the evaluation unknown.
	ev, err := New().Evaluate(triageTree(), map[string]any{"hr": 80.0})
	if err != nil {
		t.Fatal(err)
	}
	if !samePath(pathOf(ev), []string{"spo2_check", "hr_check", "routine"}) {
		t.Fatalf("unexpected path: %#v", ev.Path)
	}

	step := ev.Trace[0]
	if step.Condition == nil || step.Condition.Result != ResultUnknown {
		t.Fatalf("expected unknown condition result, got %#v", step.Condition)
	}
}

func TestEvaluate_IsDeterministic(t *testing.T) {
	inputs := map[string]any{"spo2": 95.0, "hr": 110.0}
	first, err := New().Evaluate(triageTree(), inputs)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		next, err := New().Evaluate(triageTree(), inputs)
		if err != nil {
			t.Fatal(err)
		}
		if !samePath(first.Path, next.Path) || first.Outcome != next.Outcome {
			t.Fatalf("run %d diverged: %#v vs %#v", i, first, next)
		}
		for j := range next.Trace {
			if next.Trace[j].NodeID != first.Trace[j].NodeID ||
				next.Trace[j].NextNodeID != first.Trace[j].NextNodeID {
				t.Fatalf("trace step %d diverged", j)
			}
		}
	}
}

func TestEvaluate_TraceIsBoundedByNodeCount(t *testing.T) {
	tr := triageTree()
	ev, err := New().Evaluate(tr, map[string]any{"spo2": 95.0, "hr": 110.0})
	if err != nil {
		t.Fatal(err)
	}
	if len(ev.Trace) > len(tr.Nodes) {
		t.Fatalf("trace longer than node count: %d > %d", len(ev.Trace), len(tr.Nodes))
	}
}

func TestEvaluate_RuntimeCycleGuard(t *testing.T) {
	// A corrupted tree the validators never saw: a -> b -> a.
	tr := &tree.Tree{
		ID: "bad", Version: "1", Name: "bad", RootID: "a",
		Nodes: map[string]*tree.Node{
			"a": {ID: "a", Kind: tree.KindQuestion, Label: "a", Children: []string{"b"}},
			"b": {ID: "b", Kind: tree.KindQuestion, Label: "b", Children: []string{"a"}},
		},
	}

	ev, err := New().Evaluate(tr, nil)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Code != ErrCodeCycleAtRuntime {
		t.Fatalf("expected cycle_at_runtime, got %v", err)
	}
	if len(ev.Path) != 2 {
		t.Fatalf("expected partial path before abort, got %#v", ev.Path)
	}
}

func TestEvaluate_NoFalseBranch(t *testing.T) {
	tr := triageTree()
	tr.Nodes["spo2_check"].Children = []string{"urgent"}

	_, err := New().Evaluate(tr, map[string]any{"spo2": 99.0})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Code != ErrCodeNoFalseBranch {
		t.Fatalf("expected no_false_branch, got %v", err)
	}
	if execErr.NodeID != "spo2_check" {
		t.Fatalf("expected error at spo2_check, got %q", execErr.NodeID)
	}

	// With the condition true the single child is fine.
	ev, err := New().Evaluate(tr, map[string]any{"spo2": 85.0})
	if err != nil {
		t.Fatal(err)
	}
	if ev.Outcome != "urgent" {
		t.Fatalf("unexpected outcome: %q", ev.Outcome)
	}
}

func TestEvaluate_ExtraChildrenIgnored(t *testing.T) {
	tr := triageTree()
	tr.Nodes["spo2_check"].Children = []string{"urgent", "hr_check", "routine"}

	ev, err := New().Evaluate(tr, map[string]any{"spo2": 95.0, "hr": 50.0})
	if err != nil {
		t.Fatal(err)
	}
	if !samePath(pathOf(ev), []string{"spo2_check", "hr_check", "routine"}) {
		t.Fatalf("third child must not affect dispatch: %#v", ev.Path)
	}
}

func TestEvaluate_QuestionPassThroughAndAmbiguous(t *testing.T) {
	tr := &tree.Tree{
		ID: "q", Version: "1", Name: "q", RootID: "entry",
		Nodes: map[string]*tree.Node{
			"entry": {ID: "entry", Kind: tree.KindRoot, Label: "entry", Children: []string{"done"}},
			"done":  {ID: "done", Kind: tree.KindOutcome, Label: "all good"},
		},
	}

	ev, err := New().Evaluate(tr, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Outcome nodes without an action payload fall back to the label.
	if ev.Outcome != "all good" {
		t.Fatalf("unexpected outcome: %q", ev.Outcome)
	}

	tr.Nodes["entry"].Children = []string{"done", "done2"}
	tr.Nodes["done2"] = &tree.Node{ID: "done2", Kind: tree.KindOutcome, Label: "other"}

	_, err = New().Evaluate(tr, nil)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Code != ErrCodeAmbiguousBranch {
		t.Fatalf("expected ambiguous_branch, got %v", err)
	}
}

func TestEvaluate_ScoreBranching(t *testing.T) {
	threshold := 4.0
	tr := &tree.Tree{
		ID: "news", Version: "1", Name: "news", RootID: "score",
		Nodes: map[string]*tree.Node{
			"score": {
				ID: "score", Kind: tree.KindScore, Label: "early warning score",
				Score:    &tree.ScoreSpec{Expression: "resp_points + spo2_points", Threshold: &threshold},
				Children: []string{"escalate", "ward"},
			},
			"escalate": {ID: "escalate", Kind: tree.KindAction, Label: "escalate",
				Action: &tree.ActionSpec{Recommendation: "escalate to ICU", Urgency: tree.UrgencyEmergency}},
			"ward": {ID: "ward", Kind: tree.KindAction, Label: "ward",
				Action: &tree.ActionSpec{Recommendation: "ward observation", Urgency: tree.UrgencyRoutine}},
		},
		Variables: []tree.Variable{
			{Name: "resp_points", Type: tree.VariableNumeric},
			{Name: "spo2_points", Type: tree.VariableNumeric},
		},
	}

	ev, err := New().Evaluate(tr, map[string]any{"resp_points": 3.0, "spo2_points": 2.0})
	if err != nil {
		t.Fatal(err)
	}
	if ev.Outcome != "escalate to ICU" {
		t.Fatalf("expected escalation at score 5 > 4, got %q", ev.Outcome)
	}
	if ev.Trace[0].Score == nil || ev.Trace[0].Score.Value != 5 || ev.Trace[0].Score.Result != ResultTrue {
		t.Fatalf("unexpected score trace: %#v", ev.Trace[0].Score)
	}

	// Exactly at the threshold is not an exceedance.
	ev, err = New().Evaluate(tr, map[string]any{"resp_points": 2.0, "spo2_points": 2.0})
	if err != nil {
		t.Fatal(err)
	}
	if ev.Outcome != "ward observation" {
		t.Fatalf("expected ward at score 4, got %q", ev.Outcome)
	}
}

func TestEvaluate_ScoreWithoutThresholdPassesThrough(t *testing.T) {
	tr := &tree.Tree{
		ID: "s", Version: "1", Name: "s", RootID: "score",
		Nodes: map[string]*tree.Node{
			"score": {ID: "score", Kind: tree.KindScore, Label: "informational",
				Score:    &tree.ScoreSpec{Expression: "a + b"},
				Children: []string{"done"}},
			"done": {ID: "done", Kind: tree.KindOutcome, Label: "done"},
		},
		Variables: []tree.Variable{
			{Name: "a", Type: tree.VariableNumeric},
			{Name: "b", Type: tree.VariableNumeric},
		},
	}

	ev, err := New().Evaluate(tr, map[string]any{"a": 1.0, "b": 2.0})
	if err != nil {
		t.Fatal(err)
	}
	if !samePath(pathOf(ev), []string{"score", "done"}) {
		t.Fatalf("unexpected path: %#v", ev.Path)
	}
	if ev.Trace[0].Score == nil || ev.Trace[0].Score.Value != 3 {
		t.Fatalf("score value must still be traced: %#v", ev.Trace[0].Score)
	}
}

func TestEvaluate_ScoreErrorOnMissingInput(t *testing.T) {
	threshold := 1.0
	tr := &tree.Tree{
		ID: "s", Version: "1", Name: "s", RootID: "score",
		Nodes: map[string]*tree.Node{
			"score": {ID: "score", Kind: tree.KindScore, Label: "s",
				Score:    &tree.ScoreSpec{Expression: "a + b", Threshold: &threshold},
				Children: []string{"x", "y"}},
			"x": {ID: "x", Kind: tree.KindOutcome, Label: "x"},
			"y": {ID: "y", Kind: tree.KindOutcome, Label: "y"},
		},
	}

	_, err := New().Evaluate(tr, map[string]any{"a": 1.0})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Code != ErrCodeScore {
		t.Fatalf("expected score_error, got %v", err)
	}
}

func TestEvaluate_ObservesLatencyPerVisitedNode(t *testing.T) {
	observer := &spyLatencyObserver{}
	eng := New(WithNodeLatencyObserver(observer))

	if _, err := eng.Evaluate(triageTree(), map[string]any{"spo2": 90.0}); err != nil {
		t.Fatal(err)
	}

	if len(observer.nodes) != 2 {
		t.Fatalf("expected 2 observed nodes, got %d", len(observer.nodes))
	}
	if observer.nodes[0] != "spo2_check" || observer.nodes[1] != "urgent" {
		t.Fatalf("unexpected nodes observed: %#v", observer.nodes)
	}
	for i, d := range observer.durs {
		if d < 0 {
			t.Fatalf("duration at %d is negative: %v", i, d)
		}
	}
}

func TestEvaluate_IntInputsCoerce(t *testing.T) {
	// Hand-built inputs use ints where decoded JSON would carry float64.
	ev, err := New().Evaluate(triageTree(), map[string]any{"spo2": 90})
	if err != nil {
		t.Fatal(err)
	}
	if ev.Outcome != "urgent" {
		t.Fatalf("unexpected outcome: %q", ev.Outcome)
	}
}

func TestEvaluate_TraceSerializesWithSnakeCaseFields(t *testing.T) {
	ev, err := New().Evaluate(triageTree(), map[string]any{"hr": 80.0})
	if err != nil {
		t.Fatal(err)
	}

	b, err := json.Marshal(ev.Trace)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"node_id"`, `"condition_evaluated"`, `"next_node_id"`, `"result":"unknown"`} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("serialized trace missing %s: %s", want, b)
		}
	}
}
