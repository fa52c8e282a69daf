package model

// ReviewItem is one row of the human-review export: an escalated source
// code with a ranked suggestion for a reviewer to accept or correct.
// HumanMapping is left empty on export and filled in by the reviewer.
type ReviewItem struct {
	SourceCode     string  `json:"source_code"`
	SuggestionRank int     `json:"suggestion_rank"`
	SuggestedCode  string  `json:"suggested_code"`
	Confidence     float64 `json:"confidence"`
	HumanMapping   string  `json:"human_mapping"`
}

// ReviewSet collects the review rows for a run, keyed by record IDs that
// escalated. Rows are grouped per unique source code, ranked suggestions
// first.
type ReviewSet struct {
	RecordIDs []int64      `json:"record_ids"`
	Items     []ReviewItem `json:"items"`
}

// Empty reports whether there is nothing to review.
func (s *ReviewSet) Empty() bool {
	return len(s.Items) == 0
}
