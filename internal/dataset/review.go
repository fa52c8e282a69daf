package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/gbd-tools/harmonize-cli/internal/model"
)

var reviewHeader = []string{"source_code", "suggestion_rank", "suggested_code", "confidence", "human_mapping"}

// BuildReviewSet collects the escalated records of a run into review
// rows, one row per distinct source code, best candidate attached when
// the resolver saw one. Source codes are sorted so the export is stable.
func BuildReviewSet(ds *model.ResolvedDataset, sourceColumn string) *model.ReviewSet {
	set := &model.ReviewSet{}
	byCode := make(map[string]*model.ReviewItem)

	for _, r := range ds.Records {
		if r.Outcome.Resolved() {
			continue
		}
		set.RecordIDs = append(set.RecordIDs, r.Record.ID)

		code, _ := r.Record.Get(sourceColumn)
		code = strings.TrimSpace(code)
		if _, ok := byCode[code]; ok {
			continue
		}

		item := &model.ReviewItem{SourceCode: code}
		if best := r.Outcome.Best; best != nil {
			item.SuggestionRank = 1
			item.SuggestedCode = best.CanonicalCode
			item.Confidence = best.Confidence
		}
		byCode[code] = item
	}

	codes := make([]string, 0, len(byCode))
	for code := range byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		set.Items = append(set.Items, *byCode[code])
	}
	return set
}

// ExportReviewCSV writes the review rows with an empty human_mapping
// column for reviewers to fill in.
func ExportReviewCSV(w io.Writer, set *model.ReviewSet) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(reviewHeader); err != nil {
		return eris.Wrap(err, "dataset: write review header")
	}
	for _, item := range set.Items {
		rank := ""
		confidence := ""
		if item.SuggestionRank > 0 {
			rank = strconv.Itoa(item.SuggestionRank)
			confidence = formatConfidence(item.Confidence)
		}
		row := []string{item.SourceCode, rank, item.SuggestedCode, confidence, item.HumanMapping}
		if err := writer.Write(row); err != nil {
			return eris.Wrap(err, "dataset: write review row")
		}
	}
	writer.Flush()
	return eris.Wrap(writer.Error(), "dataset: flush review csv")
}

// ExportReviewFile writes the review CSV to path.
func ExportReviewFile(path string, set *model.ReviewSet) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "dataset: create %s", path)
	}
	if err := ExportReviewCSV(f, set); err != nil {
		f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "dataset: close %s", path)
}

// ImportReviewCSV reads a filled-in review file and returns the
// non-empty human mappings keyed by source code.
func ImportReviewCSV(r io.Reader) (map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "dataset: parse review file")
	}
	if len(rows) == 0 {
		return nil, eris.Wrap(ErrFormat, "dataset: review file is empty")
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[strings.TrimSpace(name)] = i
	}
	srcIdx, ok := col["source_code"]
	if !ok {
		return nil, eris.Wrap(ErrFormat, "dataset: review file lacks source_code column")
	}
	mapIdx, ok := col["human_mapping"]
	if !ok {
		return nil, eris.Wrap(ErrFormat, "dataset: review file lacks human_mapping column")
	}

	mappings := make(map[string]string)
	for _, row := range rows[1:] {
		if srcIdx >= len(row) || mapIdx >= len(row) {
			continue
		}
		code := strings.TrimSpace(row[srcIdx])
		mapping := strings.TrimSpace(row[mapIdx])
		if code == "" || mapping == "" {
			continue
		}
		mappings[code] = mapping
	}
	return mappings, nil
}

// ImportReviewFile reads a filled-in review file from path.
func ImportReviewFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close()
	return ImportReviewCSV(f)
}

// ApplyReview resolves escalated records whose source code has a human
// mapping. Returns the number of records the review settled.
func ApplyReview(ds *model.ResolvedDataset, sourceColumn string, mappings map[string]string) int {
	var applied int
	for i := range ds.Records {
		r := &ds.Records[i]
		if r.Outcome.Resolved() {
			continue
		}
		code, _ := r.Record.Get(sourceColumn)
		mapping, ok := mappings[strings.TrimSpace(code)]
		if !ok {
			continue
		}
		r.Outcome = model.Outcome{
			RecordID: r.Record.ID,
			Kind:     model.OutcomeResolved,
			Winner: &model.Candidate{
				CanonicalCode: mapping,
				Confidence:    1.0,
				Strategy:      model.StrategyHuman,
			},
		}
		applied++
	}
	return applied
}
