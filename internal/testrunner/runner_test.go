package testrunner

import (
	"context"
	"testing"

	"github.com/caire-health/triage-engine/internal/engine"
	"github.com/caire-health/triage-engine/internal/tree"
)

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
			"urgent": {ID: "urgent", Kind: tree.KindAction, Label: "Urgent",
				Action: &tree.ActionSpec{Recommendation: "ESI Level 2 – Emergent", Urgency: tree.UrgencyEmergency}},
			"tachy": {ID: "tachy", Kind: tree.KindAction, Label: "Tachycardic",
				Action: &tree.ActionSpec{Recommendation: "tachycardic", Urgency: tree.UrgencyUrgent}},
			"routine": {ID: "routine", Kind: tree.KindAction, Label: "Routine",
				Action: &tree.ActionSpec{Recommendation: "routine follow-up", Urgency: tree.UrgencyRoutine}},
		},
		Variables: []tree.Variable{
			{Name: "spo2", Type: tree.VariableNumeric},
			{Name: "hr", Type: tree.VariableNumeric},
		},
	}
}

func newRunner() *Runner {
	return New(engine.New())
}

func TestRunCase_OutcomeSubstringIsCaseInsensitive(t *testing.T) {
	res := newRunner().RunCase(triageTree(), tree.TestCase{
		ID:              "c1",
		InputValues:     map[string]any{"spo2": 85.0},
		ExpectedOutcome: "emergent",
	})
	if !res.Passed {
		t.Fatalf("expected pass, got %#v", res)
	}
	if res.ActualOutcome != "ESI Level 2 – Emergent" {
		t.Fatalf("unexpected outcome: %q", res.ActualOutcome)
	}

	res = newRunner().RunCase(triageTree(), tree.TestCase{
		ID:              "c2",
		InputValues:     map[string]any{"spo2": 85.0},
		ExpectedOutcome: "routine",
	})
	if res.Passed {
		t.Fatalf("expected failure for outcome mismatch")
	}
}

func TestRunCase_PathMustMatchExactly(t *testing.T) {
	res := newRunner().RunCase(triageTree(), tree.TestCase{
		ID:           "c1",
		InputValues:  map[string]any{"spo2": 95.0, "hr": 110.0},
		ExpectedPath: []string{"spo2_check", "hr_check", "tachy"},
	})
	if !res.Passed {
		t.Fatalf("expected pass, got %#v", res)
	}

	res = newRunner().RunCase(triageTree(), tree.TestCase{
		ID:           "c2",
		InputValues:  map[string]any{"spo2": 95.0, "hr": 110.0},
		ExpectedPath: []string{"spo2_check", "tachy"},
	})
	if res.Passed {
		t.Fatalf("expected failure for path mismatch")
	}
}

func TestRunCase_BothExpectationsMustHold(t *testing.T) {
	res := newRunner().RunCase(triageTree(), tree.TestCase{
		ID:              "c1",
		InputValues:     map[string]any{"spo2": 85.0},
		ExpectedPath:    []string{"spo2_check", "urgent"},
		ExpectedOutcome: "routine", // wrong outcome, right path
	})
	if res.Passed {
		t.Fatalf("expected failure when one expectation fails")
	}
}

func TestRunCase_NoExpectationsTriviallyPasses(t *testing.T) {
	res := newRunner().RunCase(triageTree(), tree.TestCase{
		ID:          "c1",
		InputValues: map[string]any{"spo2": 85.0},
	})
	if !res.Passed {
		t.Fatalf("expected trivial pass, got %#v", res)
	}
}

func TestRunCase_ExecutionErrorIsDataNotPanic(t *testing.T) {
	broken := triageTree()
	broken.Nodes["spo2_check"].Children = []string{"urgent"} // no false branch

	res := newRunner().RunCase(broken, tree.TestCase{
		ID:          "c1",
		InputValues: map[string]any{"spo2": 99.0},
	})
	if res.Passed {
		t.Fatalf("expected failure")
	}
	if res.ErrorMessage == "" {
		t.Fatalf("expected error message")
	}
	if len(res.ActualPath) == 0 {
		t.Fatalf("partial path must be preserved")
	}
}

func TestRunCase_GeneratesIDWhenMissing(t *testing.T) {
	res := newRunner().RunCase(triageTree(), tree.TestCase{InputValues: map[string]any{"spo2": 85.0}})
	if res.TestCaseID == "" {
		t.Fatalf("expected generated case id")
	}
}

func suiteCases() []tree.TestCase {
	return []tree.TestCase{
		{ID: "c1", InputValues: map[string]any{"spo2": 85.0}, ExpectedOutcome: "emergent"},
		{ID: "c2", InputValues: map[string]any{"spo2": 95.0, "hr": 110.0}, ExpectedPath: []string{"spo2_check", "hr_check", "tachy"}},
		{ID: "c3", InputValues: map[string]any{"spo2": 95.0, "hr": 80.0}, ExpectedOutcome: "routine"},
	}
}

func TestRunSuite_AggregatesDeterministically(t *testing.T) {
	r := New(engine.New(), WithWorkers(8))

	first := r.RunSuite(context.Background(), triageTree(), suiteCases(), nil)
	if first.Total != 3 || first.Passed != 3 || first.Failed != 0 {
		t.Fatalf("unexpected aggregate: %+v", first)
	}
	for i, want := range []string{"c1", "c2", "c3"} {
		if first.Results[i].TestCaseID != want {
			t.Fatalf("results not sorted by case id: %#v", first.Results)
		}
	}
	if first.RunID == "" || first.RunAt.IsZero() {
		t.Fatalf("run identity missing: %+v", first)
	}

	// Same cases, different worker count, same ordering.
	second := New(engine.New(), WithWorkers(1)).RunSuite(context.Background(), triageTree(), suiteCases(), nil)
	for i := range first.Results {
		if first.Results[i].TestCaseID != second.Results[i].TestCaseID ||
			first.Results[i].Passed != second.Results[i].Passed {
			t.Fatalf("suite results diverged at %d", i)
		}
	}
}

func TestRunSuite_BreakingChanges(t *testing.T) {
	r := newRunner()
	previous := r.RunSuite(context.Background(), triageTree(), suiteCases(), nil)
	if previous.Passed != 3 {
		t.Fatalf("setup: expected all passing, got %+v", previous)
	}

	// The tree changes so c1 now lands on a different recommendation.
	changed := triageTree()
	changed.Nodes["urgent"].Action.Recommendation = "ESI Level 1 – Resuscitation"

	current := r.RunSuite(context.Background(), changed, suiteCases(), previous)
	if current.Failed != 1 {
		t.Fatalf("expected one failure, got %+v", current)
	}
	if len(current.BreakingChanges) != 1 || current.BreakingChanges[0] != "c1" {
		t.Fatalf("expected breaking change c1, got %#v", current.BreakingChanges)
	}

	// A case that was already failing is not a breaking change.
	again := r.RunSuite(context.Background(), changed, suiteCases(), current)
	if len(again.BreakingChanges) != 0 {
		t.Fatalf("already-failing case must not re-report: %#v", again.BreakingChanges)
	}
}

func TestRunSuite_NoPreviousMeansNoBreakingChanges(t *testing.T) {
	suite := newRunner().RunSuite(context.Background(), triageTree(), suiteCases(), nil)
	if len(suite.BreakingChanges) != 0 {
		t.Fatalf("expected none, got %#v", suite.BreakingChanges)
	}
}

func TestRunSuite_Coverage(t *testing.T) {
	// Only the urgent branch is exercised; hr_check/tachy/routine stay
	// unvisited.
	suite := newRunner().RunSuite(context.Background(), triageTree(), []tree.TestCase{
		{ID: "c1", InputValues: map[string]any{"spo2": 85.0}},
	}, nil)

	cov := suite.Coverage
	if cov.TotalNodes != 5 || cov.VisitedNodes != 2 {
		t.Fatalf("unexpected coverage: %+v", cov)
	}
	if len(cov.UncoveredNodes) != 3 || cov.UncoveredNodes[0] != "hr_check" {
		t.Fatalf("unexpected uncovered set: %#v", cov.UncoveredNodes)
	}
	if cov.Ratio != 0.4 {
		t.Fatalf("unexpected ratio: %v", cov.Ratio)
	}
}

func TestRunSuite_CancellationAbandonsOutstandingCases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	suite := New(engine.New(), WithWorkers(1)).RunSuite(ctx, triageTree(), suiteCases(), nil)
	if suite.Total != 3 {
		t.Fatalf("canceled cases must still be counted: %+v", suite)
	}
	if suite.Failed == 0 {
		t.Fatalf("expected abandoned cases to fail, got %+v", suite)
	}
}

func TestRunSuite_EmptyCases(t *testing.T) {
	suite := newRunner().RunSuite(context.Background(), triageTree(), nil, nil)
	if suite.Total != 0 || suite.Passed != 0 || suite.Failed != 0 {
		t.Fatalf("unexpected aggregate for empty suite: %+v", suite)
	}
	if suite.Coverage.VisitedNodes != 0 || suite.Coverage.TotalNodes != 5 {
		t.Fatalf("unexpected coverage: %+v", suite.Coverage)
	}
}
