package model

// Severity classifies how bad a failed quality check is.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityFatal   Severity = "fatal"
)

// CheckResult is the write-once outcome of a single quality check
// execution over the resolved dataset.
type CheckResult struct {
	CheckName          string   `json:"check_name"`
	Passed             bool     `json:"passed"`
	ViolationCount     int64    `json:"violation_count"`
	ViolatingRecordIDs []int64  `json:"violating_record_ids,omitempty"`
	Severity           Severity `json:"severity"`
	SeverityWeight     float64  `json:"severity_weight"`
	Message            string   `json:"message,omitempty"`
}

// QualityReport is the assessor's output: the composite score plus
// per-check diagnostics in the configured check order.
type QualityReport struct {
	Score        float64       `json:"score"`
	TotalRecords int64         `json:"total_records"`
	Checks       []CheckResult `json:"checks"`
}

// Failed returns the results of checks that did not pass, in order.
func (r *QualityReport) Failed() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}
