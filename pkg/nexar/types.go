package nexar

// Part is a part record as returned by supSearchMpn.
type Part struct {
	MPN                      string        `json:"mpn"`
	Name                     string        `json:"name,omitempty"`
	Manufacturer             Manufacturer  `json:"manufacturer"`
	ShortDescription         string        `json:"shortDescription,omitempty"`
	Descriptions             []Description `json:"descriptions,omitempty"`
	OctopartURL              string        `json:"octopartUrl,omitempty"`
	Category                 *Category     `json:"category,omitempty"`
	Specs                    []PartSpec    `json:"specs,omitempty"`
	Sellers                  []PartSeller  `json:"sellers,omitempty"`
	EstimatedFactoryLeadDays *int          `json:"estimatedFactoryLeadDays,omitempty"`
	SimilarParts             []Part        `json:"similarParts,omitempty"`
}

// Description returns the short description, falling back to the first
// long description.
func (p Part) Description() string {
	if p.ShortDescription != "" {
		return p.ShortDescription
	}
	for _, d := range p.Descriptions {
		if d.Text != "" {
			return d.Text
		}
	}
	return ""
}

// Manufacturer identifies the part's maker.
type Manufacturer struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Description is one of the free-text descriptions attached to a part.
type Description struct {
	Text string `json:"text"`
}

// Category is the part's taxonomy node.
type Category struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// PartSpec is a single attribute/value pair.
type PartSpec struct {
	Attribute Attribute `json:"attribute"`
	Value     string    `json:"value"`
	Units     string    `json:"units,omitempty"`
	UnitsName string    `json:"unitsName,omitempty"`
}

// Attribute names a spec.
type Attribute struct {
	Name      string `json:"name"`
	Shortname string `json:"shortname,omitempty"`
}

// PartSeller is a distributor with its offers.
type PartSeller struct {
	Country string  `json:"country,omitempty"`
	Company Company `json:"company"`
	Offers  []Offer `json:"offers,omitempty"`
}

// Company is a seller's identity.
type Company struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Offer is one stock listing of a seller.
type Offer struct {
	InventoryLevel int     `json:"inventoryLevel,omitempty"`
	Prices         []Price `json:"prices,omitempty"`
}

// Price is a quantity price break. ConvertedPrice is in ConvertedCurrency
// (USD unless the account is configured otherwise).
type Price struct {
	Quantity          int     `json:"quantity"`
	Price             float64 `json:"price,omitempty"`
	Currency          string  `json:"currency,omitempty"`
	ConvertedPrice    float64 `json:"convertedPrice,omitempty"`
	ConvertedCurrency string  `json:"convertedCurrency,omitempty"`
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type searchResponse struct {
	Data *struct {
		SupSearchMpn *struct {
			Hits    int `json:"hits"`
			Results []struct {
				Part Part `json:"part"`
			} `json:"results"`
		} `json:"supSearchMpn"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

const partFields = `
      mpn
      name
      manufacturer { id name }
      shortDescription
      descriptions { text }
      octopartUrl
      category { id name }
      specs { attribute { name shortname } value units unitsName }
      sellers {
        country
        company { id name }
        offers {
          inventoryLevel
          prices { quantity price currency convertedPrice convertedCurrency }
        }
      }
      estimatedFactoryLeadDays`

// searchMPNQuery asks for the single best match and its similar parts.
const searchMPNQuery = `query SearchMPN($mpn: String!) {
  supSearchMpn(q: $mpn, limit: 1) {
    hits
    results {
      part {` + partFields + `
        similarParts {` + partFields + `
        }
      }
    }
  }
}`
