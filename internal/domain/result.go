package domain

import (
	"encoding/json"
)

// Fallbacks used when the backend omits a field
const (
	FallbackUnknown        = "Unknown"
	FallbackNotAvailable   = "N/A"
	FallbackNote           = "Analysis complete"
	FallbackRecommendation = "See full report"
	FallbackConfidence     = 0.85
)

// RiskResult is the flat view-model rendered for one analysed drug
type RiskResult struct {
	Drug             Drug              `json:"drug"`
	DrugClass        string            `json:"drug_class"`
	CatalogGene      string            `json:"catalog_gene"`
	Gene             string            `json:"gene"`
	RiskCategory     RiskCategory      `json:"risk_category"`
	Label            string            `json:"label"`
	Severity         string            `json:"severity"`
	Diplotype        string            `json:"diplotype"`
	Phenotype        string            `json:"phenotype"`
	EvidenceLevel    string            `json:"evidence_level"`
	Recommendation   string            `json:"recommendation"`
	Note             string            `json:"note"`
	Confidence       float64           `json:"confidence"`
	Citations        []Citation        `json:"citations,omitempty"`
	DetectedVariants []DetectedVariant `json:"detected_variants,omitempty"`
	Raw              json.RawMessage   `json:"raw,omitempty"`
}

// ResultSummary counts results per risk category
type ResultSummary struct {
	Total      int          `json:"total"`
	Safe       int          `json:"safe"`
	DoseAdjust int          `json:"dose_adjust"`
	Toxic      int          `json:"toxic"`
	Highest    RiskCategory `json:"highest"`
}

// Summarize tallies results. Highest is SAFE for an empty list.
func Summarize(results []RiskResult) ResultSummary {
	s := ResultSummary{Total: len(results), Highest: SAFE}
	for _, r := range results {
		switch r.RiskCategory {
		case TOXIC:
			s.Toxic++
		case DOSE_ADJUST:
			s.DoseAdjust++
		default:
			s.Safe++
		}
		if r.RiskCategory.Rank() > s.Highest.Rank() {
			s.Highest = r.RiskCategory
		}
	}
	return s
}
