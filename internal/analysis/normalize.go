package analysis

import (
	"strings"

	"github.com/pharmaguard-wizard/internal/catalog"
	"github.com/pharmaguard-wizard/internal/domain"
)

// Normalize flattens a backend response into the RiskResult view-model.
// It never fails: absent, empty or malformed fields take their fallbacks.
// The result is always attributed to drug, whatever the response says.
func Normalize(drug domain.Drug, resp *domain.AnalysisResponse, cat *catalog.Catalog) domain.RiskResult {
	if cat == nil {
		cat = catalog.Default()
	}
	if resp == nil {
		resp = &domain.AnalysisResponse{}
	}
	sections := findingsFor(drug, resp)

	label, _ := firstString(sections, func(f domain.DrugFindings) domain.Opt[string] {
		return f.RiskAssessment.Value.RiskLabel
	})

	result := domain.RiskResult{
		Drug:         drug,
		DrugClass:    cat.Class(drug),
		CatalogGene:  cat.Gene(drug),
		RiskCategory: domain.ClassifyRiskLabel(label),
		Label:        orFallback(label, domain.FallbackUnknown),
		Gene: stringOr(sections, domain.FallbackUnknown,
			func(f domain.DrugFindings) domain.Opt[string] { return f.Profile.Value.PrimaryGene },
			func(f domain.DrugFindings) domain.Opt[string] { return f.PrimaryGene },
		),
		Severity: stringOr(sections, domain.FallbackUnknown,
			func(f domain.DrugFindings) domain.Opt[string] { return f.RiskAssessment.Value.Severity },
		),
		Diplotype: stringOr(sections, domain.FallbackNotAvailable,
			func(f domain.DrugFindings) domain.Opt[string] { return f.Profile.Value.Diplotype },
			func(f domain.DrugFindings) domain.Opt[string] { return f.Diplotype },
		),
		Phenotype: stringOr(sections, domain.FallbackUnknown,
			func(f domain.DrugFindings) domain.Opt[string] { return f.Profile.Value.Phenotype },
			func(f domain.DrugFindings) domain.Opt[string] { return f.Phenotype },
		),
		EvidenceLevel: stringOr(sections, domain.FallbackNotAvailable,
			func(f domain.DrugFindings) domain.Opt[string] { return f.ClinicalRecommendation.Value.EvidenceLevel },
		),
		Recommendation: stringOr(sections, domain.FallbackRecommendation,
			func(f domain.DrugFindings) domain.Opt[string] { return f.ClinicalRecommendation.Value.Recommendation },
		),
		Note: stringOr(sections, domain.FallbackNote,
			func(f domain.DrugFindings) domain.Opt[string] { return f.Explanation.Value.Summary },
		),
		Confidence: domain.FallbackConfidence,
		Raw:        resp.Raw,
	}

	for _, f := range sections {
		if score := f.RiskAssessment.Value.ConfidenceScore; score.Set {
			result.Confidence = clamp(score.Value)
			break
		}
	}
	for _, f := range sections {
		if citations := f.Explanation.Value.VariantCitations; citations.Set && len(citations.Value) > 0 {
			result.Citations = citations.Value
			break
		}
	}
	for _, f := range sections {
		if detected := f.Profile.Value.DetectedVariants; detected.Set && len(detected.Value) > 0 {
			result.DetectedVariants = detected.Value
			break
		}
	}

	return result
}

// findingsFor returns the per-drug sections to read, top level first, then the
// drug_results entry for drug if there is one
func findingsFor(drug domain.Drug, resp *domain.AnalysisResponse) []domain.DrugFindings {
	sections := []domain.DrugFindings{resp.DrugFindings}
	if !resp.DrugResults.Set {
		return sections
	}
	if f, ok := resp.DrugResults.Value[string(drug)]; ok {
		return append(sections, f)
	}
	for key, f := range resp.DrugResults.Value {
		if strings.EqualFold(strings.TrimSpace(key), string(drug)) {
			return append(sections, f)
		}
	}
	return sections
}

func firstString(sections []domain.DrugFindings, pickers ...func(domain.DrugFindings) domain.Opt[string]) (string, bool) {
	for _, pick := range pickers {
		for _, f := range sections {
			if v := pick(f); v.Set && strings.TrimSpace(v.Value) != "" {
				return v.Value, true
			}
		}
	}
	return "", false
}

func stringOr(sections []domain.DrugFindings, fallback string, pickers ...func(domain.DrugFindings) domain.Opt[string]) string {
	v, ok := firstString(sections, pickers...)
	if !ok {
		return fallback
	}
	return v
}

func orFallback(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}
