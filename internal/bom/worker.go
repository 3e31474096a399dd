// Package bom enriches parsed bill-of-materials rows with catalog data and
// evaluates alternative parts.
package bom

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/bom-cli/internal/catalog"
	"github.com/sells-group/bom-cli/internal/metrics"
	"github.com/sells-group/bom-cli/internal/model"
)

// Parser extracts a ParsedItem skeleton from a raw row.
type Parser interface {
	ParseRow(ctx context.Context, row model.RawRow, mapping model.ColumnMapping) (*model.ParsedItem, error)
}

// Catalog resolves a part number to catalog data. *catalog.Client satisfies it.
type Catalog interface {
	Lookup(ctx context.Context, mpn string, limiter catalog.Limiter) catalog.Result
}

// Worker runs the per-row pipeline: parse, then look the part up.
type Worker struct {
	parser  Parser
	catalog Catalog
}

// NewWorker creates a Worker.
func NewWorker(parser Parser, cat Catalog) *Worker {
	return &Worker{parser: parser, catalog: cat}
}

// Enrich returns exactly one of an item or a row error for row. A catalog
// miss leaves the item without catalog data.
func (w *Worker) Enrich(ctx context.Context, row model.RawRow, mapping model.ColumnMapping, limiter catalog.Limiter) model.RowResult {
	log := zap.L().With(zap.Int("row", row.Position))

	item, err := w.parser.ParseRow(ctx, row, mapping)
	if err != nil {
		log.Error("bom: row parse failed", zap.Error(err))
		metrics.RowResults.WithLabelValues("error").Inc()
		return rowFailure(row, err.Error())
	}

	item.OriginalRowText = row.DataJSON()
	if quantityMissing(row, mapping) {
		item.Quantity = len(item.Designators)
	}

	if mpn := item.MPN(); mpn != "" {
		res := w.catalog.Lookup(ctx, mpn, limiter)
		if res.Found() {
			item.Catalog = res.Entry
		} else {
			log.Info("bom: no catalog data", zap.String("mpn", mpn), zap.String("outcome", string(res.Outcome)))
		}
	}

	if item.Catalog != nil {
		metrics.RowResults.WithLabelValues("enriched").Inc()
	} else {
		metrics.RowResults.WithLabelValues("parsed").Inc()
	}
	return model.RowResult{Position: row.Position, Item: item}
}

// quantityMissing reports whether the source row has no usable quantity.
func quantityMissing(row model.RawRow, mapping model.ColumnMapping) bool {
	if mapping.Quantity == nil {
		return true
	}
	return row.Text(*mapping.Quantity) == ""
}

func rowFailure(row model.RawRow, details string) model.RowResult {
	return model.RowResult{
		Position: row.Position,
		Error: &model.RowError{
			Error:   fmt.Sprintf("Failed to process row %d", row.Position),
			Details: details,
			Row:     row,
		},
	}
}
