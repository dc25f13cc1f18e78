package app

import (
	"context"

	"github.com/caire-health/triage-engine/internal/testrunner"
	"github.com/caire-health/triage-engine/internal/tree"
)

// TreeService is what the transports program against.
type TreeService interface {
	Validate(treeJSON string) (*ValidationReport, *TreeInfo, error)
	EvaluateCase(treeJSON string, spec CaseSpec) (*testrunner.TestResult, *TreeInfo, error)
	RunSuite(ctx context.Context, treeJSON string, cases []tree.TestCase, previous *testrunner.TestSuiteResult) (*testrunner.TestSuiteResult, *TreeInfo, error)
}
