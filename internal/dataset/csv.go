package dataset

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/gbd-tools/harmonize-cli/internal/model"
)

// ReadCSVFile loads a CSV dataset from path.
func ReadCSVFile(path string) (*model.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close()
	return ReadCSV(f, path)
}

// ReadCSV parses a CSV dataset from r. origin names the source in
// errors.
func ReadCSV(r io.Reader, origin string) (*model.Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: parse %s", origin)
	}
	if len(rows) == 0 {
		return nil, eris.Wrapf(ErrFormat, "dataset: %s is empty", origin)
	}
	return fromRows(rows[0], rows[1:], origin)
}

// WriteCSVFile stores a resolved dataset as CSV at path.
func WriteCSVFile(path string, ds *model.ResolvedDataset) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "dataset: create %s", path)
	}
	if err := WriteCSV(f, ds); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "dataset: close %s", path)
	}
	return nil
}

// WriteTableCSV stores a plain dataset (no outcome columns) as CSV.
// Used when rewriting an already-harmonized file after review.
func WriteTableCSV(path string, ds *model.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "dataset: create %s", path)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(ds.Columns); err != nil {
		f.Close()
		return eris.Wrap(err, "dataset: write header")
	}
	for _, rec := range ds.Records {
		row := make([]string, len(ds.Columns))
		for i, col := range ds.Columns {
			row[i] = rec.Values[col]
		}
		if err := writer.Write(row); err != nil {
			f.Close()
			return eris.Wrap(err, "dataset: write row")
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return eris.Wrap(err, "dataset: flush csv")
	}
	return eris.Wrapf(f.Close(), "dataset: close %s", path)
}

// WriteCSV writes a resolved dataset to w.
func WriteCSV(w io.Writer, ds *model.ResolvedDataset) error {
	writer := csv.NewWriter(w)

	header, rows := outputRows(ds)
	if err := writer.Write(header); err != nil {
		return eris.Wrap(err, "dataset: write header")
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return eris.Wrap(err, "dataset: write row")
		}
	}

	writer.Flush()
	return eris.Wrap(writer.Error(), "dataset: flush csv")
}
