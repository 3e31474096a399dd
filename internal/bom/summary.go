package bom

import (
	"slices"
	"strings"

	"github.com/sells-group/bom-cli/internal/model"
)

// maxKeySpecs caps the attributes sent for judgement.
const maxKeySpecs = 15

// SummarizeItem reduces an enriched item to the attributes used for
// judgement. Items without catalog data fall back to their parsed parameters.
func SummarizeItem(item *model.ParsedItem) model.PartSummary {
	if item.Catalog != nil {
		return SummarizeEntry(item.Catalog)
	}
	s := model.PartSummary{MPN: item.MPN()}
	p := item.Parameters
	for _, kv := range []struct {
		name string
		val  *string
	}{
		{"Value", p.ElectricalValue},
		{"Tolerance", p.Tolerance},
		{"Voltage", p.Voltage},
		{"Package", p.PackageFootprint},
	} {
		if kv.val != nil && *kv.val != "" {
			s.KeySpecs = append(s.KeySpecs, model.Spec{Name: kv.name, Value: *kv.val})
		}
	}
	return s
}

// SummarizeEntry reduces a catalog entry.
func SummarizeEntry(e *model.CatalogEntry) model.PartSummary {
	return summarize(e.MPN, e.ManufacturerName, e.ShortDescription, "", e.Specs, e.Sellers)
}

// SummarizeSimilar reduces a similar-part record.
func SummarizeSimilar(sp model.SimilarPart) model.PartSummary {
	return summarize(sp.MPN, sp.Manufacturer, sp.Description, sp.Category, sp.Specs, sp.Sellers)
}

func summarize(mpn, mfr, desc, category string, specs []model.Spec, sellers []model.Seller) model.PartSummary {
	s := model.PartSummary{
		MPN:          mpn,
		Manufacturer: mfr,
		Description:  desc,
		Category:     category,
		KeySpecs:     keySpecs(specs),
		SellerNames:  sellerNames(sellers),
	}
	if offer, ok := model.BestOffer(sellers); ok {
		s.BestOffer = &offer
	}
	return s
}

func keySpecs(specs []model.Spec) []model.Spec {
	var out []model.Spec
	for _, sp := range specs {
		if strings.TrimSpace(sp.Value) == "" {
			continue
		}
		out = append(out, sp)
		if len(out) == maxKeySpecs {
			break
		}
	}
	return out
}

func sellerNames(sellers []model.Seller) []string {
	var out []string
	for _, s := range sellers {
		if s.Name != "" && !slices.Contains(out, s.Name) {
			out = append(out, s.Name)
		}
	}
	return out
}
