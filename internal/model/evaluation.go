package model

// Assumptions are free-form project constraints supplied by the user, such as
// industry, target quantity or preferred regions.
type Assumptions map[string]any

// EvaluationVerdict is the judgement for one (original, candidate) pair.
type EvaluationVerdict struct {
	OriginalMPN  string `json:"original_mpn"`
	CandidateMPN string `json:"candidate_mpn,omitempty"`
	IsValid      bool   `json:"is_valid"`
	Reasoning    string `json:"reasoning"`
}

// PartSummary is the reduced attribute set sent to the judgement capability.
type PartSummary struct {
	MPN          string   `json:"mpn"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Description  string   `json:"description,omitempty"`
	Category     string   `json:"category,omitempty"`
	KeySpecs     []Spec   `json:"key_specs,omitempty"`
	SellerNames  []string `json:"seller_names,omitempty"`
	BestOffer    *Offer   `json:"best_offer,omitempty"`
}
