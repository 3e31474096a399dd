package model

import "time"

// Parameters are technical values pulled out of a row's description or
// other columns. All fields are optional.
type Parameters struct {
	ElectricalValue  *string `json:"electrical_value"`
	Tolerance        *string `json:"tolerance"`
	Voltage          *string `json:"voltage"`
	PackageFootprint *string `json:"package_footprint"`
}

// ParsedItem is the canonical record produced for one successfully parsed row.
type ParsedItem struct {
	OriginalRowText        string        `json:"original_row_text"`
	ManufacturerPartNumber *string       `json:"manufacturer_part_number,omitempty"`
	Designators            []string      `json:"designators"`
	Quantity               int           `json:"quantity"`
	Parameters             Parameters    `json:"parameters"`
	ParsingNotes           *string       `json:"parsing_notes,omitempty"`
	Catalog                *CatalogEntry `json:"catalog,omitempty"`
}

// MPN returns the extracted part number or "".
func (p *ParsedItem) MPN() string {
	if p == nil || p.ManufacturerPartNumber == nil {
		return ""
	}
	return *p.ManufacturerPartNumber
}

// RowError records a row that could not be parsed.
type RowError struct {
	Error   string `json:"error"`
	Details string `json:"details"`
	Row     RawRow `json:"row_data"`
}

// RowResult holds exactly one of Item or Error for the row at Position.
type RowResult struct {
	Position int         `json:"position"`
	Item     *ParsedItem `json:"item,omitempty"`
	Error    *RowError   `json:"error,omitempty"`
}

// Failed reports whether the row produced a RowError.
func (r RowResult) Failed() bool {
	return r.Error != nil
}

// enrichFailureMessage is reported when rows failed and nothing was enriched.
const enrichFailureMessage = "Failed to enrich some parts. API limits may have been reached."

// BatchSummary is derived from a batch's results; it is not an error channel.
type BatchSummary struct {
	Total           int    `json:"total"`
	Parsed          int    `json:"parsed"`
	RowErrors       int    `json:"row_errors"`
	Enriched        int    `json:"enriched"`
	ProcessingError string `json:"processing_error,omitempty"`
}

// Summarize counts parsed, failed and enriched rows.
func Summarize(results []RowResult) BatchSummary {
	s := BatchSummary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Error != nil:
			s.RowErrors++
		case r.Item != nil:
			s.Parsed++
			if r.Item.Catalog != nil {
				s.Enriched++
			}
		}
	}
	if s.RowErrors > 0 && s.Enriched == 0 {
		s.ProcessingError = enrichFailureMessage
	}
	return s
}

// Job is the stored outcome of one batch, addressed by an opaque ID.
type Job struct {
	ID        string        `json:"id"`
	Mapping   ColumnMapping `json:"column_mapping"`
	Results   []RowResult   `json:"results"`
	CreatedAt time.Time     `json:"created_at"`
}

// Summary is a convenience wrapper around Summarize.
func (j *Job) Summary() BatchSummary {
	return Summarize(j.Results)
}

// FindItem returns the first parsed item whose MPN equals mpn.
func (j *Job) FindItem(mpn string) (*ParsedItem, bool) {
	if j == nil {
		return nil, false
	}
	for _, r := range j.Results {
		if r.Item != nil && r.Item.MPN() != "" && equalMPN(r.Item.MPN(), mpn) {
			return r.Item, true
		}
	}
	return nil, false
}

// Clone deep-copies the job so readers never observe later writes.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.Results != nil {
		out.Results = make([]RowResult, len(j.Results))
		for i, r := range j.Results {
			if r.Item != nil {
				item := *r.Item
				item.Designators = append([]string(nil), r.Item.Designators...)
				item.Catalog = r.Item.Catalog.Clone()
				r.Item = &item
			}
			if r.Error != nil {
				e := *r.Error
				e.Row.Cells = append([]Cell(nil), r.Error.Row.Cells...)
				r.Error = &e
			}
			out.Results[i] = r
		}
	}
	return &out
}
