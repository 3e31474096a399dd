package model

import "strings"

// Spec is a single technical attribute reported by the parts directory.
type Spec struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Units string `json:"units,omitempty"`
}

// PriceBreak is a unit price valid from Quantity pieces upwards.
type PriceBreak struct {
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// Seller is a distributor offering the part.
type Seller struct {
	Name           string       `json:"name"`
	Country        string       `json:"country,omitempty"`
	InventoryLevel int          `json:"inventory_level,omitempty"`
	PriceBreaks    []PriceBreak `json:"price_breaks"`
}

// SimilarPart is a lightweight catalog record for a candidate substitute.
type SimilarPart struct {
	MPN          string   `json:"mpn"`
	Name         string   `json:"name,omitempty"`
	Manufacturer string   `json:"manufacturer"`
	Description  string   `json:"description"`
	Category     string   `json:"category,omitempty"`
	Specs        []Spec   `json:"specs"`
	Sellers      []Seller `json:"sellers"`
}

// CatalogEntry is the enriched per-part record sourced from the parts directory.
type CatalogEntry struct {
	MPN              string        `json:"mpn"`
	ManufacturerName string        `json:"manufacturer_name"`
	ShortDescription string        `json:"short_description"`
	URL              string        `json:"url,omitempty"`
	Specs            []Spec        `json:"specs"`
	Sellers          []Seller      `json:"sellers"`
	SimilarParts     []SimilarPart `json:"similar_parts"`
}

// Clone returns a deep copy so an item and the cache never share slices.
func (e *CatalogEntry) Clone() *CatalogEntry {
	if e == nil {
		return nil
	}
	out := *e
	out.Specs = cloneSpecs(e.Specs)
	out.Sellers = cloneSellers(e.Sellers)
	if e.SimilarParts != nil {
		out.SimilarParts = make([]SimilarPart, len(e.SimilarParts))
		for i, sp := range e.SimilarParts {
			sp.Specs = cloneSpecs(sp.Specs)
			sp.Sellers = cloneSellers(sp.Sellers)
			out.SimilarParts[i] = sp
		}
	}
	return &out
}

// FindSimilar returns the similar part whose MPN matches (case-insensitive).
func (e *CatalogEntry) FindSimilar(mpn string) (SimilarPart, bool) {
	if e == nil {
		return SimilarPart{}, false
	}
	for _, sp := range e.SimilarParts {
		if equalMPN(sp.MPN, mpn) {
			return sp, true
		}
	}
	return SimilarPart{}, false
}

func equalMPN(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Offer is the cheapest price break found across a set of sellers.
type Offer struct {
	Seller      string  `json:"seller"`
	Country     string  `json:"country,omitempty"`
	UnitPrice   float64 `json:"unit_price"`
	Currency    string  `json:"currency"`
	MinQuantity int     `json:"min_quantity"`
}

// BestOffer picks the lowest unit price across all sellers and price breaks.
// It returns false when no seller lists a positive price.
func BestOffer(sellers []Seller) (Offer, bool) {
	var best Offer
	found := false
	for _, s := range sellers {
		for _, pb := range s.PriceBreaks {
			if pb.Price <= 0 {
				continue
			}
			if !found || pb.Price < best.UnitPrice {
				best = Offer{
					Seller:      s.Name,
					Country:     s.Country,
					UnitPrice:   pb.Price,
					Currency:    pb.Currency,
					MinQuantity: pb.Quantity,
				}
				found = true
			}
		}
	}
	return best, found
}

func cloneSpecs(in []Spec) []Spec {
	if in == nil {
		return nil
	}
	out := make([]Spec, len(in))
	copy(out, in)
	return out
}

func cloneSellers(in []Seller) []Seller {
	if in == nil {
		return nil
	}
	out := make([]Seller, len(in))
	for i, s := range in {
		if s.PriceBreaks != nil {
			pbs := make([]PriceBreak, len(s.PriceBreaks))
			copy(pbs, s.PriceBreaks)
			s.PriceBreaks = pbs
		}
		out[i] = s
	}
	return out
}
