package engine

import "fmt"

// Execution error codes. All are scoped to a single evaluation; the test
// runner records them as case failures, never as suite aborts.
const (
	ErrCodeCycleAtRuntime  = "cycle_at_runtime"
	ErrCodeNoFalseBranch   = "no_false_branch"
	ErrCodeAmbiguousBranch = "ambiguous_branch"
	ErrCodeUnknownNode     = "unknown_node"
	ErrCodeScore           = "score_error"
)

type ExecutionError struct {
	Code    string `json:"code"`
	NodeID  string `json:"node_id,omitempty"`
	Message string `json:"message"`
}

func (e *ExecutionError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s at node %q: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func execErrf(code, nodeID, format string, args ...any) *ExecutionError {
	return &ExecutionError{Code: code, NodeID: nodeID, Message: fmt.Sprintf(format, args...)}
}
