// internal/app/service.go
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/caire-health/triage-engine/internal/testrunner"
	"github.com/caire-health/triage-engine/internal/tree"
)

// ErrInvalidTree is wrapped by EvaluateCase/RunSuite when the tree fails
// validation; the transport maps it to a 4xx with the diagnostics.
var ErrInvalidTree = errors.New("tree failed validation")

// Cache memoizes decode+validate results keyed by the raw JSON.
type Cache interface {
	GetOrCompute(source string, fn func() (*tree.Tree, error)) (*tree.Tree, error)
}

// Runner drives the evaluator over cases.
type Runner interface {
	RunCase(t *tree.Tree, tc tree.TestCase) testrunner.TestResult
	RunSuite(ctx context.Context, t *tree.Tree, cases []tree.TestCase, previous *testrunner.TestSuiteResult) *testrunner.TestSuiteResult
}

// ValidationReport is the union of structural and condition diagnostics.
// Valid ignores warning-severity entries.
type ValidationReport struct {
	Valid  bool                   `json:"valid"`
	Errors []tree.ValidationError `json:"errors"`
}

// TreeInfo is a small summary echoed back so callers can confirm which
// tree version a result belongs to.
type TreeInfo struct {
	ID        string `json:"id"`
	Version   string `json:"version"`
	Name      string `json:"name"`
	NodeCount int    `json:"node_count"`
}

// CaseSpec is an inline, non-persisted test case.
type CaseSpec struct {
	InputValues     map[string]any `json:"input_values"`
	ExpectedPath    []string       `json:"expected_path,omitempty"`
	ExpectedOutcome string         `json:"expected_outcome,omitempty"`
}

type Service struct {
	runner Runner
	cache  Cache
}

func NewService(runner Runner, cache Cache) *Service {
	return &Service{runner: runner, cache: cache}
}

// Validate decodes the tree and reports every structural and condition
// diagnostic in one pass. A JSON-level decode failure (malformed payload
// combinations included) is returned as err, not as diagnostics.
func (s *Service) Validate(treeJSON string) (*ValidationReport, *TreeInfo, error) {
	if treeJSON == "" {
		return nil, nil, fmt.Errorf("tree JSON is required")
	}

	t, err := tree.Decode([]byte(treeJSON))
	if err != nil {
		return nil, nil, err
	}

	diags := append(tree.ValidateStructure(t), tree.ValidateConditions(t)...)
	report := &ValidationReport{
		Valid:  !tree.HasErrors(diags),
		Errors: diags,
	}
	return report, infoFor(t), nil
}

// EvaluateCase runs one inline case against a validated tree.
func (s *Service) EvaluateCase(treeJSON string, spec CaseSpec) (*testrunner.TestResult, *TreeInfo, error) {
	t, err := s.validatedTree(treeJSON)
	if err != nil {
		return nil, nil, err
	}

	res := s.runner.RunCase(t, tree.TestCase{
		TreeID:          t.ID,
		InputValues:     spec.InputValues,
		ExpectedPath:    spec.ExpectedPath,
		ExpectedOutcome: spec.ExpectedOutcome,
	})
	return &res, infoFor(t), nil
}

// RunSuite runs the stored cases against a validated tree. previous is the
// last recorded suite result, supplied by the caller's persistence layer;
// the engine holds no state between runs.
func (s *Service) RunSuite(ctx context.Context, treeJSON string, cases []tree.TestCase, previous *testrunner.TestSuiteResult) (*testrunner.TestSuiteResult, *TreeInfo, error) {
	t, err := s.validatedTree(treeJSON)
	if err != nil {
		return nil, nil, err
	}
	return s.runner.RunSuite(ctx, t, cases, previous), infoFor(t), nil
}

// validatedTree decodes and fully validates, through the cache so repeated
// evaluations of the same tree JSON skip the graph walks.
func (s *Service) validatedTree(treeJSON string) (*tree.Tree, error) {
	if treeJSON == "" {
		return nil, fmt.Errorf("tree JSON is required")
	}
	return s.cache.GetOrCompute(treeJSON, func() (*tree.Tree, error) {
		t, err := tree.Decode([]byte(treeJSON))
		if err != nil {
			return nil, err
		}
		diags := append(tree.ValidateStructure(t), tree.ValidateConditions(t)...)
		if tree.HasErrors(diags) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidTree, summarize(diags))
		}
		return t, nil
	})
}

func infoFor(t *tree.Tree) *TreeInfo {
	return &TreeInfo{ID: t.ID, Version: t.Version, Name: t.Name, NodeCount: len(t.Nodes)}
}

func summarize(diags []tree.ValidationError) string {
	out := ""
	for _, d := range diags {
		if d.Severity != tree.SeverityError {
			continue
		}
		if out != "" {
			out += "; "
		}
		out += d.Code + ": " + d.Message
	}
	return out
}
