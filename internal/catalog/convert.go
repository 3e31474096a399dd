package catalog

import (
	"github.com/sells-group/bom-cli/internal/model"
	"github.com/sells-group/bom-cli/pkg/nexar"
)

// ToEntry converts a directory record into a CatalogEntry. Every call builds
// fresh slices, so the result shares nothing with p.
func ToEntry(p nexar.Part) *model.CatalogEntry {
	entry := &model.CatalogEntry{
		MPN:              p.MPN,
		ManufacturerName: p.Manufacturer.Name,
		ShortDescription: p.Description(),
		URL:              p.OctopartURL,
		Specs:            toSpecs(p.Specs),
		Sellers:          toSellers(p.Sellers),
		SimilarParts:     make([]model.SimilarPart, 0, len(p.SimilarParts)),
	}
	for _, sp := range p.SimilarParts {
		entry.SimilarParts = append(entry.SimilarParts, model.SimilarPart{
			MPN:          sp.MPN,
			Name:         sp.Name,
			Manufacturer: sp.Manufacturer.Name,
			Description:  sp.Description(),
			Category:     categoryName(sp.Category),
			Specs:        toSpecs(sp.Specs),
			Sellers:      toSellers(sp.Sellers),
		})
	}
	return entry
}

func categoryName(c *nexar.Category) string {
	if c == nil {
		return ""
	}
	return c.Name
}

func toSpecs(in []nexar.PartSpec) []model.Spec {
	out := make([]model.Spec, 0, len(in))
	for _, s := range in {
		out = append(out, model.Spec{
			Name:  s.Attribute.Name,
			Value: s.Value,
			Units: s.Units,
		})
	}
	return out
}

// toSellers flattens every offer of a seller into one price break list.
// Native prices win over converted ones.
func toSellers(in []nexar.PartSeller) []model.Seller {
	out := make([]model.Seller, 0, len(in))
	for _, s := range in {
		seller := model.Seller{
			Name:        s.Company.Name,
			Country:     s.Country,
			PriceBreaks: []model.PriceBreak{},
		}
		for _, o := range s.Offers {
			seller.InventoryLevel += o.InventoryLevel
			for _, pr := range o.Prices {
				pb := model.PriceBreak{Quantity: pr.Quantity, Price: pr.Price, Currency: pr.Currency}
				if pb.Price <= 0 {
					pb.Price = pr.ConvertedPrice
					pb.Currency = pr.ConvertedCurrency
				}
				seller.PriceBreaks = append(seller.PriceBreaks, pb)
			}
		}
		out = append(out, seller)
	}
	return out
}
