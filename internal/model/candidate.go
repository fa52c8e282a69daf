package model

// Strategy identifies which mapping strategy produced a candidate.
type Strategy string

const (
	StrategyDirect    Strategy = "direct"
	StrategyFuzzy     Strategy = "fuzzy"
	StrategySuggested Strategy = "suggested"

	// StrategyHuman marks mappings applied from a reviewed export, not
	// produced by the resolver itself.
	StrategyHuman Strategy = "human"
)

// Candidate is a proposed canonical-code mapping with a confidence score.
// Direct hits always carry confidence 1.0: an exact dictionary lookup is
// a definition, not a probabilistic judgment.
type Candidate struct {
	CanonicalCode string   `json:"canonical_code"`
	Confidence    float64  `json:"confidence"`
	Strategy      Strategy `json:"strategy"`
}

// Better reports whether c ranks ahead of other: higher confidence wins,
// ties break on lexicographic canonical-code order so that candidate
// ranking is reproducible across runs.
func (c Candidate) Better(other Candidate) bool {
	if c.Confidence != other.Confidence {
		return c.Confidence > other.Confidence
	}
	return c.CanonicalCode < other.CanonicalCode
}
