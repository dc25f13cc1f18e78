package tree

import "fmt"

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic codes. Structural first, then condition-level.
const (
	CodeDuplicateID     = "duplicate_id"
	CodeMissingRoot     = "missing_root"
	CodeDanglingChild   = "dangling_child"
	CodeCycle           = "cycle"
	CodeOrphan          = "orphan"
	CodeInvalidTerminal = "invalid_terminal"
	CodeDeadBranch      = "dead_branch"

	CodeMissingVariable   = "missing_variable"
	CodeTypeMismatch      = "type_mismatch"
	CodeUnitMismatch      = "unit_mismatch"
	CodeUnknownIdentifier = "unknown_identifier"
)

type ValidationError struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	NodeID   string   `json:"node_id,omitempty"`
	Severity Severity `json:"severity"`
}

func errorf(code, nodeID, format string, args ...any) ValidationError {
	return ValidationError{Code: code, Message: fmt.Sprintf(format, args...), NodeID: nodeID, Severity: SeverityError}
}

func warnf(code, nodeID, format string, args ...any) ValidationError {
	return ValidationError{Code: code, Message: fmt.Sprintf(format, args...), NodeID: nodeID, Severity: SeverityWarning}
}

// HasErrors reports whether any diagnostic is error-severity. Warnings
// (unit_mismatch, dead_branch) do not make a tree invalid.
func HasErrors(diags []ValidationError) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
