// Package fuzzy implements approximate string matching of source tokens
// against canonical-code display labels.
package fuzzy

import (
	"sort"

	"github.com/agext/levenshtein"

	"github.com/gbd-tools/harmonize-cli/internal/reftable"
)

// DefaultTopK bounds query results when the caller does not.
const DefaultTopK = 5

// Candidate is one ranked match from the index.
type Candidate struct {
	CanonicalCode string  `json:"canonical_code"`
	Similarity    float64 `json:"similarity"`
}

type indexEntry struct {
	code      string
	projected string
}

// Index is a searchable projection of canonical-code labels. It is built
// once per run and read-only afterwards, so concurrent queries need no
// locking.
type Index struct {
	entries []indexEntry
}

// NewIndex builds the index over canonical labels. Entries are kept in
// code order so equal-similarity results always rank the same way.
func NewIndex(canonicals []reftable.Canonical) *Index {
	entries := make([]indexEntry, 0, len(canonicals))
	for _, c := range canonicals {
		label := c.Label
		if label == "" {
			label = c.Code
		}
		entries = append(entries, indexEntry{code: c.Code, projected: Project(label)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].code < entries[j].code })
	return &Index{entries: entries}
}

// Size returns the number of indexed labels.
func (ix *Index) Size() int {
	return len(ix.entries)
}

// Query returns the topK closest canonical codes for text, ordered by
// similarity descending with lexicographic code order breaking ties.
// Similarity is a normalized edit-distance measure in [0, 1].
func (ix *Index) Query(text string, topK int) []Candidate {
	if topK <= 0 {
		topK = DefaultTopK
	}

	projected := Project(text)
	if projected == "" || len(ix.entries) == 0 {
		return nil
	}

	out := make([]Candidate, 0, len(ix.entries))
	for _, e := range ix.entries {
		sim := levenshtein.Similarity(projected, e.projected, nil)
		out = append(out, Candidate{CanonicalCode: e.code, Similarity: sim})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].CanonicalCode < out[j].CanonicalCode
	})

	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
