package model

import "time"

// Event stages.
const (
	StageCleaning   = "cleaning"
	StageResolution = "resolution"
	StageQuality    = "quality"
	StagePipeline   = "pipeline"
)

// Run-level event record ID. Stage summaries and run markers are not tied
// to any one input row.
const RunLevelRecordID int64 = -1

// Event is a single entry in the provenance ledger. Sequence is a logical
// counter issued by the ledger, never wall-clock time, so that two runs
// over the same input and configuration produce an identical event
// sequence. WallClock is reserved for display and excluded from the
// equality contract.
type Event struct {
	Sequence      int64     `json:"sequence"`
	RecordID      int64     `json:"record_id"`
	Stage         string    `json:"stage"`
	InputSummary  string    `json:"input_summary,omitempty"`
	Decision      string    `json:"decision"`
	Strategy      Strategy  `json:"strategy,omitempty"`
	CanonicalCode string    `json:"canonical_code,omitempty"`
	Confidence    float64   `json:"confidence,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	RuleVersion   string    `json:"rule_version,omitempty"`
	Count         int64     `json:"count,omitempty"`
	Score         float64   `json:"score,omitempty"`
	WallClock     time.Time `json:"wall_clock,omitempty"`
}

// Decisions written by the resolution policy, one per state transition.
const (
	DecisionResolved       = "resolved"
	DecisionMiss           = "miss"
	DecisionBelowThreshold = "below_threshold"
	DecisionEscalated      = "escalated"
	DecisionSkipped        = "skipped"
)

// Run-level decisions written by the orchestrator and assessor.
const (
	DecisionRunComplete    = "run_complete"
	DecisionIncompleteRun  = "incomplete_run"
	DecisionRunAborted     = "run_aborted"
	DecisionCheckPassed    = "check_passed"
	DecisionCheckFailed    = "check_failed"
	DecisionCompositeScore = "composite_score"
	DecisionRuleApplied    = "rule_applied"
)

// Equal compares two events under the reproducibility contract: every
// field participates except WallClock.
func (e Event) Equal(other Event) bool {
	e.WallClock = time.Time{}
	other.WallClock = time.Time{}
	return e == other
}

// EventDraft is an event minus its sequence number and wall clock, as
// produced by pipeline stages. The ledger assigns the rest at append time.
type EventDraft struct {
	RecordID      int64
	Stage         string
	InputSummary  string
	Decision      string
	Strategy      Strategy
	CanonicalCode string
	Confidence    float64
	Reason        string
	RuleVersion   string
	Count         int64
	Score         float64
}
