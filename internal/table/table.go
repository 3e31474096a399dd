// Package table reads uploaded parts lists (CSV or XLSX) into raw rows.
package table

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bom-cli/internal/model"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
	ErrUnsupportedFormat = eris.New("table: unsupported file format")
	// ErrLegacyExcel is returned for .xls workbooks.
	ErrLegacyExcel = eris.New("table: legacy .xls workbooks are not supported, save as .xlsx")
	// ErrEmpty is returned when the file has no header row.
	ErrEmpty = eris.New("table: file is empty")
)

// Table is a parsed parts list. Rows are in file order with 1-based positions
// counted from the first data row.
type Table struct {
	Header []string
	Rows   []model.RawRow
}

// Head returns up to the first n rows.
func (t *Table) Head(n int) []model.RawRow {
	if n < 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

// Open reads the file at path.
func Open(ctx context.Context, path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "table: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Parse(ctx, filepath.Base(path), f)
}

// Parse reads r, choosing the format from the extension of name.
func Parse(ctx context.Context, name string, r io.Reader) (*Table, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv":
		records, err := ReadCSV(ctx, r, CSVOptions{TrimSpace: true, LazyQuotes: true})
		if err != nil {
			return nil, err
		}
		values := make([][]any, len(records))
		for i, rec := range records {
			values[i] = make([]any, len(rec))
			for j, v := range rec {
				values[i][j] = v
			}
		}
		return build(values)
	case ".xlsx":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, eris.Wrapf(err, "table: read %s", name)
		}
		values, err := ReadXLSX(bytes.NewReader(data), int64(len(data)), XLSXOptions{})
		if err != nil {
			return nil, err
		}
		return build(values)
	case ".xls":
		return nil, ErrLegacyExcel
	default:
		return nil, eris.Wrapf(ErrUnsupportedFormat, "extension %q", ext)
	}
}

// build turns the first record into the header and the rest into rows,
// skipping blank lines.
func build(records [][]any) (*Table, error) {
	if len(records) == 0 {
		return nil, ErrEmpty
	}
	header := headerNames(records[0])
	t := &Table{Header: header}
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		t.Rows = append(t.Rows, model.NewRawRow(len(t.Rows)+1, header, rec))
	}
	return t, nil
}

// headerNames names blank columns "Unnamed: i" and suffixes duplicates.
func headerNames(rec []any) []string {
	out := make([]string, len(rec))
	seen := make(map[string]int, len(rec))
	for i, v := range rec {
		name := strings.TrimSpace(fmt.Sprint(v))
		if v == nil || name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n)
		} else {
			seen[name] = 1
		}
		out[i] = name
	}
	return out
}

func blank(rec []any) bool {
	for _, v := range rec {
		switch x := v.(type) {
		case nil:
		case string:
			if strings.TrimSpace(x) != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}
