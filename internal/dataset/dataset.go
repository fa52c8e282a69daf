// Package dataset reads and writes record tables in the formats the
// pipeline consumes and produces: CSV and XLSX input, CSV and XLSX
// harmonized output, plus the human-review round-trip file.
package dataset

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/gbd-tools/harmonize-cli/internal/model"
)

// ErrFormat marks files the reader cannot interpret: unsupported
// extensions, missing headers, ragged rows.
var ErrFormat = eris.New("unsupported dataset format")

// Read loads a dataset from path, dispatching on the file extension.
// Record IDs are assigned from the input row order, starting at 1.
func Read(path string) (*model.Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSVFile(path)
	case ".xlsx":
		return ReadXLSXFile(path)
	}
	return nil, eris.Wrapf(ErrFormat, "dataset: read %s", path)
}

// Write stores a resolved dataset at path, dispatching on the extension.
func Write(path string, ds *model.ResolvedDataset) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return WriteCSVFile(path, ds)
	case ".xlsx":
		return WriteXLSXFile(path, ds)
	}
	return eris.Wrapf(ErrFormat, "dataset: write %s", path)
}

// fromRows builds a dataset from a header row plus data rows. Shared by
// both readers so CSV and XLSX inputs behave identically.
func fromRows(header []string, rows [][]string, origin string) (*model.Dataset, error) {
	if len(header) == 0 {
		return nil, eris.Wrapf(ErrFormat, "dataset: %s has no header row", origin)
	}

	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			return nil, eris.Wrapf(ErrFormat, "dataset: %s header column %d is empty", origin, i+1)
		}
		if seen[name] {
			return nil, eris.Wrapf(ErrFormat, "dataset: %s header column %q appears twice", origin, name)
		}
		seen[name] = true
		columns[i] = name
	}

	ds := &model.Dataset{Columns: columns, Records: make([]model.Record, 0, len(rows))}
	for i, row := range rows {
		if len(row) > len(columns) {
			return nil, eris.Wrapf(ErrFormat, "dataset: %s row %d has %d cells for %d columns", origin, i+2, len(row), len(columns))
		}
		values := make(map[string]string, len(columns))
		for j, col := range columns {
			if j < len(row) {
				values[col] = row[j]
			} else {
				values[col] = ""
			}
		}
		ds.Records = append(ds.Records, model.Record{ID: int64(i + 1), Values: values})
	}
	return ds, nil
}

// outputRows flattens a resolved dataset into a header plus data rows.
// The target column is appended after the input columns, followed by the
// review columns that tell resolved and escalated records apart.
func outputRows(ds *model.ResolvedDataset) ([]string, [][]string) {
	header := append([]string(nil), ds.Columns...)
	header = append(header, ds.TargetColumn, "mapping_strategy", "mapping_confidence", "escalation_reason")

	rows := make([][]string, 0, len(ds.Records))
	for _, r := range ds.Records {
		row := make([]string, 0, len(header))
		for _, col := range ds.Columns {
			v, _ := r.Record.Get(col)
			row = append(row, v)
		}

		if r.Outcome.Resolved() {
			w := r.Outcome.Winner
			row = append(row, w.CanonicalCode, string(w.Strategy), formatConfidence(w.Confidence), "")
		} else {
			row = append(row, "", "", "", string(r.Outcome.Reason))
		}
		rows = append(rows, row)
	}
	return header, rows
}

// formatConfidence renders a confidence with four decimals, trailing
// zeros trimmed, so output files stay stable across runs.
func formatConfidence(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
