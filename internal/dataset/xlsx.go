package dataset

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/gbd-tools/harmonize-cli/internal/model"
)

// ReadXLSXFile loads a dataset from the first sheet of an XLSX workbook.
// The first row is the header.
func ReadXLSXFile(path string) (*model.Dataset, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Wrapf(ErrFormat, "dataset: %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.Wrapf(ErrFormat, "dataset: %s is empty", path)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowToStrings(row))
	}
	return fromRows(rows[0], rows[1:], path)
}

// WriteXLSXFile stores a resolved dataset as a one-sheet XLSX workbook.
func WriteXLSXFile(path string, ds *model.ResolvedDataset) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("harmonized")
	if err != nil {
		return eris.Wrap(err, "dataset: add sheet")
	}

	header, rows := outputRows(ds)
	writeRow(sheet, header)
	for _, row := range rows {
		writeRow(sheet, row)
	}

	return eris.Wrapf(f.Save(path), "dataset: save %s", path)
}

func writeRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().Value = c
	}
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}
