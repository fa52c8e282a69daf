package reftable

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// CSV column names. source_code and target_code are required; the label
// and version columns are optional. Files without a version column are
// treated as belonging entirely to the pinned version.
const (
	colSource  = "source_code"
	colTarget  = "target_code"
	colLabel   = "target_label"
	colVersion = "version"
)

// LoadCSVFile reads a reference-table CSV from disk and builds the table
// for the pinned version.
func LoadCSVFile(path, version string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(ErrLoad, "reftable: open %s: %v", path, err)
	}
	defer f.Close()

	return LoadCSV(f, version)
}

// LoadCSV reads reference entries from r and builds the table.
func LoadCSV(r io.Reader, version string) (*Table, error) {
	entries, err := ParseCSV(r)
	if err != nil {
		return nil, err
	}
	return Build(version, entries)
}

// ParseCSV reads raw reference entries without version filtering.
func ParseCSV(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrapf(ErrLoad, "reftable: read header: %v", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	srcIdx, srcOK := idx[colSource]
	tgtIdx, tgtOK := idx[colTarget]
	if !srcOK || !tgtOK {
		return nil, eris.Wrapf(ErrLoad, "reftable: header must contain %q and %q columns", colSource, colTarget)
	}
	labelIdx, hasLabel := idx[colLabel]
	verIdx, hasVersion := idx[colVersion]

	var entries []Entry
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(ErrLoad, "reftable: read row: %v", err)
		}

		e := Entry{
			SourceCode:    strings.TrimSpace(row[srcIdx]),
			CanonicalCode: strings.TrimSpace(row[tgtIdx]),
		}
		if hasLabel && labelIdx < len(row) {
			e.CanonicalLabel = strings.TrimSpace(row[labelIdx])
		}
		if hasVersion && verIdx < len(row) {
			e.TableVersion = strings.TrimSpace(row[verIdx])
		}
		entries = append(entries, e)
	}

	return entries, nil
}
