package engine

import "github.com/caire-health/triage-engine/internal/tree"

// Branch outcomes recorded per trace step. "unknown" means the condition's
// variable was absent from the input and the walk defaulted to false.
const (
	ResultTrue    = "true"
	ResultFalse   = "false"
	ResultUnknown = "unknown"
)

type TraceEntry struct {
	NodeID         string          `json:"node_id"`
	Label          string          `json:"label"`
	Kind           tree.NodeKind   `json:"kind"`
	Condition      *ConditionTrace `json:"condition_evaluated,omitempty"`
	Score          *ScoreTrace     `json:"score_evaluated,omitempty"`
	NextNodeID     string          `json:"next_node_id,omitempty"`
	DurationMicros int64           `json:"duration_micros"`
}

type ConditionTrace struct {
	Variable   string        `json:"variable"`
	Operator   tree.Operator `json:"operator"`
	Threshold  any           `json:"threshold,omitempty"`
	InputValue any           `json:"input_value,omitempty"`
	Result     string        `json:"result"`
}

type ScoreTrace struct {
	Expression string   `json:"expression"`
	Value      float64  `json:"value"`
	Threshold  *float64 `json:"threshold,omitempty"`
	Result     string   `json:"result"`
}

// Evaluation is the full record of one walk: the node ids visited in
// order, the terminal recommendation (empty when the walk failed), and a
// step-by-step trace. Identical (tree, inputs) always produce an
// identical Evaluation.
type Evaluation struct {
	Path    []string     `json:"path"`
	Outcome string       `json:"outcome,omitempty"`
	Urgency tree.Urgency `json:"urgency,omitempty"`
	Trace   []TraceEntry `json:"trace"`
}
