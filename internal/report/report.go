// Package report renders a run's results as a markdown summary for
// humans: mapping totals per strategy, escalations, check results and
// the composite quality score.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/gbd-tools/harmonize-cli/internal/model"
)

// Input carries everything the report needs.
type Input struct {
	RunID        string
	TableVersion string
	ModelVersion string
	SourceColumn string
	Dataset      *model.ResolvedDataset
	Quality      *model.QualityReport
}

// Write renders the markdown report to w.
func Write(w io.Writer, in Input) error {
	var b strings.Builder

	b.WriteString("# Harmonization Report\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", in.RunID)
	fmt.Fprintf(&b, "- Reference table: `%s`\n", in.TableVersion)
	if in.ModelVersion != "" {
		fmt.Fprintf(&b, "- Suggestion model: `%s`\n", in.ModelVersion)
	}
	b.WriteString("\n")

	writeMappingSection(&b, in)
	writeEscalationSection(&b, in)
	writeQualitySection(&b, in.Quality)

	_, err := io.WriteString(w, b.String())
	return eris.Wrap(err, "report: write")
}

// WriteFile renders the markdown report to path.
func WriteFile(path string, in Input) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	if err := Write(f, in); err != nil {
		f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "report: close %s", path)
}

func writeMappingSection(b *strings.Builder, in Input) {
	ds := in.Dataset
	total := len(ds.Records)
	mapped := ds.MappedCount()

	b.WriteString("## Mapping\n\n")
	fmt.Fprintf(b, "%d of %d records mapped", mapped, total)
	if total > 0 {
		fmt.Fprintf(b, " (%.1f%%)", 100*float64(mapped)/float64(total))
	}
	b.WriteString("\n\n")

	byStrategy := make(map[model.Strategy]int)
	for _, r := range ds.Records {
		if r.Outcome.Resolved() {
			byStrategy[r.Outcome.Winner.Strategy]++
		}
	}

	b.WriteString("| Strategy | Records |\n|---|---|\n")
	for _, s := range []model.Strategy{model.StrategyDirect, model.StrategyFuzzy, model.StrategySuggested, model.StrategyHuman} {
		if n, ok := byStrategy[s]; ok {
			fmt.Fprintf(b, "| %s | %d |\n", s, n)
		}
	}
	b.WriteString("\n")
}

func writeEscalationSection(b *strings.Builder, in Input) {
	escalations := in.Dataset.Escalations()
	b.WriteString("## Escalations\n\n")
	if len(escalations) == 0 {
		b.WriteString("None.\n\n")
		return
	}

	byReason := make(map[model.EscalationReason]int)
	for _, o := range escalations {
		byReason[o.Reason]++
	}
	reasons := make([]string, 0, len(byReason))
	for r := range byReason {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)

	fmt.Fprintf(b, "%d records need review.\n\n", len(escalations))
	b.WriteString("| Reason | Records |\n|---|---|\n")
	for _, r := range reasons {
		fmt.Fprintf(b, "| %s | %d |\n", r, byReason[model.EscalationReason(r)])
	}
	b.WriteString("\n")
}

func writeQualitySection(b *strings.Builder, q *model.QualityReport) {
	b.WriteString("## Quality\n\n")
	if q == nil {
		b.WriteString("Quality assessment was not run.\n")
		return
	}

	fmt.Fprintf(b, "Composite score: **%.1f** / 100\n\n", q.Score)
	if len(q.Checks) == 0 {
		return
	}

	b.WriteString("| Check | Result | Severity | Violations |\n|---|---|---|---|\n")
	for _, c := range q.Checks {
		result := "pass"
		if !c.Passed {
			result = "fail"
		}
		fmt.Fprintf(b, "| %s | %s | %s | %d |\n", c.CheckName, result, c.Severity, c.ViolationCount)
	}
}
