package fuzzy

import (
	"strings"

	"golang.org/x/text/cases"
)

var foldCaser = cases.Fold()

// Project returns the comparison form of a string: Unicode case-folded
// with runs of whitespace collapsed to single spaces. Both queries and
// index labels go through the same projection so similarity is symmetric.
func Project(s string) string {
	folded := foldCaser.String(strings.TrimSpace(s))
	return strings.Join(strings.Fields(folded), " ")
}
