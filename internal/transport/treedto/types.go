package treedto

import (
	"encoding/json"

	"github.com/caire-health/triage-engine/internal/app"
	"github.com/caire-health/triage-engine/internal/testrunner"
	"github.com/caire-health/triage-engine/internal/tree"
)

// Trees travel as raw JSON so the service layer owns decoding and the
// cache can key on the exact bytes.

type ValidateRequest struct {
	Tree json.RawMessage `json:"tree"`
}

type ValidateResponse struct {
	Valid  bool                   `json:"valid"`
	Errors []tree.ValidationError `json:"errors"`
	Tree   *app.TreeInfo          `json:"tree,omitempty"`
}

type EvaluateRequest struct {
	Tree            json.RawMessage `json:"tree"`
	InputValues     map[string]any  `json:"input_values"`
	ExpectedPath    []string        `json:"expected_path,omitempty"`
	ExpectedOutcome string          `json:"expected_outcome,omitempty"`
}

func (r EvaluateRequest) CaseSpec() app.CaseSpec {
	return app.CaseSpec{
		InputValues:     r.InputValues,
		ExpectedPath:    r.ExpectedPath,
		ExpectedOutcome: r.ExpectedOutcome,
	}
}

type EvaluateResponse struct {
	Result *testrunner.TestResult `json:"result"`
	Tree   *app.TreeInfo          `json:"tree,omitempty"`
}

type RunSuiteRequest struct {
	Tree           json.RawMessage             `json:"tree"`
	Cases          []tree.TestCase             `json:"cases"`
	PreviousResult *testrunner.TestSuiteResult `json:"previous_result,omitempty"`
}

type RunSuiteResponse struct {
	Suite *testrunner.TestSuiteResult `json:"suite"`
	Tree  *app.TreeInfo               `json:"tree,omitempty"`
}
