package table

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures the XLSX parser.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadXLSX reads one sheet of a workbook. Numeric cells become float64,
// booleans bool and everything else a string.
func ReadXLSX(r io.ReaderAt, size int64, opts XLSXOptions) ([][]any, error) {
	f, err := xlsx.OpenReaderAt(r, size)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	rows := make([][]any, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		rows = append(rows, rowToValues(row))
	}
	return rows, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToValues(row *xlsx.Row) []any {
	values := make([]any, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		switch cell.Type() {
		case xlsx.CellTypeNumeric:
			if v, err := cell.Float(); err == nil {
				values[j] = v
				continue
			}
		case xlsx.CellTypeBool:
			values[j] = cell.Bool()
			continue
		}
		values[j] = cell.String()
	}
	return values
}
