// internal/testrunner/runner.go
package testrunner

import (
	"context"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caire-health/triage-engine/internal/engine"
	"github.com/caire-health/triage-engine/internal/tree"
)

// TestResult is the outcome of one case. Evaluation failures are data
// here, never errors: a bad case must not abort a suite run.
type TestResult struct {
	TestCaseID      string              `json:"test_case_id"`
	Passed          bool                `json:"passed"`
	ActualPath      []string            `json:"actual_path"`
	ExpectedPath    []string            `json:"expected_path,omitempty"`
	ActualOutcome   string              `json:"actual_outcome,omitempty"`
	ExpectedOutcome string              `json:"expected_outcome,omitempty"`
	Trace           []engine.TraceEntry `json:"execution_trace"`
	ExecutionTimeMS float64             `json:"execution_time_ms"`
	ErrorMessage    string              `json:"error_message,omitempty"`
}

// Coverage reports which nodes the suite's passing and failing walks
// actually visited.
type Coverage struct {
	VisitedNodes   int      `json:"visited_nodes"`
	TotalNodes     int      `json:"total_nodes"`
	Ratio          float64  `json:"ratio"`
	UncoveredNodes []string `json:"uncovered_nodes,omitempty"`
}

type TestSuiteResult struct {
	RunID           string       `json:"run_id"`
	TreeID          string       `json:"tree_id"`
	Total           int          `json:"total"`
	Passed          int          `json:"passed"`
	Failed          int          `json:"failed"`
	BreakingChanges []string     `json:"breaking_changes,omitempty"`
	Coverage        Coverage     `json:"coverage"`
	Results         []TestResult `json:"results"`
	RunAt           time.Time    `json:"run_at"`
}

type Runner struct {
	engine  *engine.Engine
	workers int
}

type Option func(*Runner)

// WithWorkers bounds the suite fan-out. Defaults to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

func New(eng *engine.Engine, opts ...Option) *Runner {
	r := &Runner{engine: eng, workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunCase evaluates one case and checks every expectation that was
// actually supplied. A case with neither expectation trivially passes.
func (r *Runner) RunCase(t *tree.Tree, tc tree.TestCase) TestResult {
	start := time.Now()

	caseID := tc.ID
	if caseID == "" {
		caseID = uuid.NewString()
	}

	ev, err := r.engine.Evaluate(t, tc.InputValues)

	res := TestResult{
		TestCaseID:      caseID,
		ActualPath:      ev.Path,
		ExpectedPath:    tc.ExpectedPath,
		ActualOutcome:   ev.Outcome,
		ExpectedOutcome: tc.ExpectedOutcome,
		Trace:           ev.Trace,
		ExecutionTimeMS: float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if err != nil {
		res.ErrorMessage = err.Error()
		return res
	}

	pathOK := len(tc.ExpectedPath) == 0 || equalPaths(ev.Path, tc.ExpectedPath)
	outcomeOK := tc.ExpectedOutcome == "" || outcomeMatches(ev.Outcome, tc.ExpectedOutcome)
	res.Passed = pathOK && outcomeOK
	return res
}

// RunSuite fans the cases out over a bounded worker pool and merges the
// results sequentially, sorted by case id, so the output is deterministic
// regardless of scheduling. previous (the last recorded run, supplied by
// the caller) enables breaking-change detection.
func (r *Runner) RunSuite(ctx context.Context, t *tree.Tree, cases []tree.TestCase, previous *TestSuiteResult) *TestSuiteResult {
	results := make([]TestResult, len(cases))

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := r.workers
	if workers > len(cases) {
		workers = len(cases)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = r.RunCase(t, cases[i])
			}
		}()
	}

dispatch:
	for i := range cases {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	// Cases abandoned by cancellation are reported as failed, not dropped,
	// so total always equals len(cases).
	for i := range results {
		if results[i].TestCaseID == "" {
			results[i] = TestResult{
				TestCaseID:      cases[i].ID,
				ExpectedPath:    cases[i].ExpectedPath,
				ExpectedOutcome: cases[i].ExpectedOutcome,
				ErrorMessage:    "suite run canceled before this case was evaluated",
			}
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].TestCaseID < results[j].TestCaseID })

	suite := &TestSuiteResult{
		RunID:   uuid.NewString(),
		TreeID:  t.ID,
		Total:   len(results),
		Results: results,
		RunAt:   time.Now().UTC(),
	}
	for _, res := range results {
		if res.Passed {
			suite.Passed++
		} else {
			suite.Failed++
		}
	}
	suite.BreakingChanges = breakingChanges(previous, results)
	suite.Coverage = coverage(t, results)
	return suite
}

// breakingChanges returns case ids that passed in the previous run and
// fail now, sorted.
func breakingChanges(previous *TestSuiteResult, current []TestResult) []string {
	if previous == nil {
		return nil
	}
	passedBefore := make(map[string]bool, len(previous.Results))
	for _, res := range previous.Results {
		if res.Passed {
			passedBefore[res.TestCaseID] = true
		}
	}

	var broken []string
	for _, res := range current {
		if !res.Passed && passedBefore[res.TestCaseID] {
			broken = append(broken, res.TestCaseID)
		}
	}
	sort.Strings(broken)
	return broken
}

func coverage(t *tree.Tree, results []TestResult) Coverage {
	visited := make(map[string]struct{})
	for _, res := range results {
		for _, id := range res.ActualPath {
			visited[id] = struct{}{}
		}
	}

	cov := Coverage{VisitedNodes: len(visited), TotalNodes: len(t.Nodes)}
	for id := range t.Nodes {
		if _, ok := visited[id]; !ok {
			cov.UncoveredNodes = append(cov.UncoveredNodes, id)
		}
	}
	sort.Strings(cov.UncoveredNodes)
	if cov.TotalNodes > 0 {
		cov.Ratio = float64(cov.VisitedNodes) / float64(cov.TotalNodes)
	}
	return cov
}

func equalPaths(a, b []string) bool {
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

// outcomeMatches is a case-insensitive substring check: the recorded
// expectation "emergent" accepts "ESI Level 2 – Emergent".
func outcomeMatches(actual, expected string) bool {
	if actual == "" {
		return false
	}
	return strings.Contains(
		strings.ToLower(strings.TrimSpace(actual)),
		strings.ToLower(strings.TrimSpace(expected)),
	)
}
