package model

// OutcomeKind is the terminal state of resolution for one record.
type OutcomeKind string

const (
	OutcomeResolved  OutcomeKind = "resolved"
	OutcomeEscalated OutcomeKind = "escalated"
)

// EscalationReason explains why a record was routed to human review.
type EscalationReason string

const (
	ReasonBelowThreshold EscalationReason = "below_threshold"
	ReasonNoCandidate    EscalationReason = "no_candidate"
	ReasonRunCancelled   EscalationReason = "run_cancelled"
)

// Outcome is the write-once result of resolving a single record.
// Exactly one of Winner (resolved) or Best (best candidate seen before
// escalation, possibly nil) is meaningful depending on Kind.
type Outcome struct {
	RecordID int64            `json:"record_id"`
	Kind     OutcomeKind      `json:"kind"`
	Winner   *Candidate       `json:"winner,omitempty"`
	Best     *Candidate       `json:"best,omitempty"`
	Reason   EscalationReason `json:"reason,omitempty"`
}

// Resolved reports whether the record auto-applied a mapping.
func (o Outcome) Resolved() bool {
	return o.Kind == OutcomeResolved
}

// ResolvedRecord pairs a record with its resolution outcome. The target
// column carries the winner's canonical code for resolved records and is
// empty for escalated ones.
type ResolvedRecord struct {
	Record  Record  `json:"record"`
	Outcome Outcome `json:"outcome"`
}

// ResolvedDataset is the downstream system of record: input order is
// preserved regardless of how records were scheduled across workers.
type ResolvedDataset struct {
	Columns      []string         `json:"columns"`
	TargetColumn string           `json:"target_column"`
	Records      []ResolvedRecord `json:"records"`
}

// HasColumn reports whether the dataset declares the given column.
func (d *ResolvedDataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// MappedCount returns the number of resolved (auto-applied) records.
func (d *ResolvedDataset) MappedCount() int {
	var n int
	for _, r := range d.Records {
		if r.Outcome.Resolved() {
			n++
		}
	}
	return n
}

// Escalations returns the outcomes routed to human review, in record order.
func (d *ResolvedDataset) Escalations() []Outcome {
	var out []Outcome
	for _, r := range d.Records {
		if !r.Outcome.Resolved() {
			out = append(out, r.Outcome)
		}
	}
	return out
}
