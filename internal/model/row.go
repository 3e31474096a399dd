package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Cell is one column value of a source row. Value is a string, a float64 or
// nil for an empty cell.
type Cell struct {
	Column string `json:"column"`
	Value  any    `json:"value"`
}

// RawRow is a single row of the uploaded parts list, in source column order.
// Position is 1-based.
type RawRow struct {
	Position int    `json:"position"`
	Cells    []Cell `json:"cells"`
}

// NewRawRow builds a row from parallel header and value slices. Empty values
// become nil.
func NewRawRow(position int, header []string, values []any) RawRow {
	cells := make([]Cell, 0, len(header))
	for i, col := range header {
		var v any
		if i < len(values) {
			v = values[i]
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			v = nil
		}
		cells = append(cells, Cell{Column: col, Value: v})
	}
	return RawRow{Position: position, Cells: cells}
}

// Get returns the value stored under column and whether the column exists.
func (r RawRow) Get(column string) (any, bool) {
	for _, c := range r.Cells {
		if c.Column == column {
			return c.Value, true
		}
	}
	return nil, false
}

// Text returns the value under column rendered as a trimmed string. Missing
// columns and nil values render as "".
func (r RawRow) Text(column string) string {
	v, ok := r.Get(column)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Columns returns the column names in source order.
func (r RawRow) Columns() []string {
	cols := make([]string, len(r.Cells))
	for i, c := range r.Cells {
		cols[i] = c.Column
	}
	return cols
}

// DataJSON renders the row as a JSON object with keys in source column order.
// This is the audit text stored on ParsedItem.OriginalRowText.
func (r RawRow) DataJSON() string {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, c := range r.Cells {
		if i > 0 {
			b.WriteString(", ")
		}
		key, _ := json.Marshal(c.Column)
		val, err := json.Marshal(c.Value)
		if err != nil {
			val = []byte("null")
		}
		b.Write(key)
		b.WriteString(": ")
		b.Write(val)
	}
	b.WriteByte('}')
	return b.String()
}

// ColumnMapping records which source column holds each semantic field. A nil
// field means no column could be matched with confidence.
type ColumnMapping struct {
	ManufacturerPartNumber *string `json:"manufacturer_part_number"`
	Designators            *string `json:"designators"`
	Quantity               *string `json:"quantity"`
	Description            *string `json:"description"`
}

// Column returns the mapped column name or "" when unresolved.
func Column(c *string) string {
	if c == nil {
		return ""
	}
	return *c
}

// String formats the mapping the way it is presented to the row parser.
func (m ColumnMapping) String() string {
	return fmt.Sprintf("MPN=%q, Designators=%q, Qty=%q, Desc=%q",
		Column(m.ManufacturerPartNumber),
		Column(m.Designators),
		Column(m.Quantity),
		Column(m.Description),
	)
}
