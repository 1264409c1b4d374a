package domain

import (
	"bytes"
	"encoding/json"
)

// Opt is a JSON field that may be absent, null, or of the wrong shape.
// Decoding never fails: anything that does not fit T leaves the field unset.
type Opt[T any] struct {
	Value T
	Set   bool
}

// Some returns a set Opt holding v
func Some[T any](v T) Opt[T] {
	return Opt[T]{Value: v, Set: true}
}

// UnmarshalJSON implements json.Unmarshaler
func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	*o = Opt[T]{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	o.Value, o.Set = v, true
	return nil
}

// MarshalJSON implements json.Marshaler
func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Or returns the value when set, otherwise fallback
func (o Opt[T]) Or(fallback T) T {
	if o.Set {
		return o.Value
	}
	return fallback
}

// Backend response schema. Every field is optional.

// PharmacogenomicProfile describes the genotype findings for the drug's primary gene
type PharmacogenomicProfile struct {
	PrimaryGene      Opt[string]            `json:"primary_gene"`
	Diplotype        Opt[string]            `json:"diplotype"`
	Phenotype        Opt[string]            `json:"phenotype"`
	DetectedVariants Opt[[]DetectedVariant] `json:"detected_variants"`
}

// DetectedVariant is a variant the backend matched in the uploaded file
type DetectedVariant struct {
	RSID     string `json:"rsid"`
	Gene     string `json:"gene,omitempty"`
	Genotype string `json:"genotype,omitempty"`
	Ref      string `json:"ref,omitempty"`
	Alt      string `json:"alt,omitempty"`
	Filter   string `json:"filter,omitempty"`
}

// RiskAssessment is the backend's risk verdict
type RiskAssessment struct {
	RiskLabel       Opt[string]  `json:"risk_label"`
	ConfidenceScore Opt[float64] `json:"confidence_score"`
	Severity        Opt[string]  `json:"severity"`
}

// ClinicalRecommendation carries the CPIC-derived dosing advice
type ClinicalRecommendation struct {
	Recommendation Opt[string] `json:"recommendation"`
	EvidenceLevel  Opt[string] `json:"evidence_level"`
}

// Explanation is the generated narrative for a result
type Explanation struct {
	Summary          Opt[string]     `json:"summary"`
	VariantCitations Opt[[]Citation] `json:"variant_citations"`
}

// Citation links the narrative to a specific variant
type Citation struct {
	RSID     string `json:"rsid"`
	Allele   string `json:"allele,omitempty"`
	Genotype string `json:"genotype,omitempty"`
}

// QualityMetrics reports how well the backend could read the file
type QualityMetrics struct {
	VCFParsingSuccess    Opt[bool]    `json:"vcf_parsing_success"`
	TotalVariantsScanned Opt[int]     `json:"total_variants_scanned"`
	NonPGxVariantsCount  Opt[int]     `json:"non_pgx_variants_count"`
	ConfidenceScore      Opt[float64] `json:"confidence_score"`
}

// DrugFindings groups the per-drug sections. They appear either at the top level
// of the response or nested under drug_results keyed by drug name.
type DrugFindings struct {
	PrimaryGene            Opt[string]                 `json:"primary_gene"`
	Diplotype              Opt[string]                 `json:"diplotype"`
	Phenotype              Opt[string]                 `json:"phenotype"`
	Profile                Opt[PharmacogenomicProfile] `json:"pharmacogenomic_profile"`
	RiskAssessment         Opt[RiskAssessment]         `json:"risk_assessment"`
	ClinicalRecommendation Opt[ClinicalRecommendation] `json:"clinical_recommendation"`
	Explanation            Opt[Explanation]            `json:"llm_generated_explanation"`
}

// AnalysisResponse is the decoded body of a successful /analyze call
type AnalysisResponse struct {
	DrugFindings
	PatientID      Opt[string]                  `json:"patient_id"`
	Drug           Opt[string]                  `json:"drug"`
	Timestamp      Opt[string]                  `json:"timestamp"`
	QualityMetrics Opt[QualityMetrics]          `json:"quality_metrics"`
	DrugResults    Opt[map[string]DrugFindings] `json:"drug_results"`

	// Raw is the body exactly as received
	Raw json.RawMessage `json:"-"`
}

// DecodeAnalysisResponse parses a response body. Only a body that is not a JSON
// object is an error; missing or malformed sections are left unset.
func DecodeAnalysisResponse(body []byte) (*AnalysisResponse, error) {
	var resp AnalysisResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	resp.Raw = append(json.RawMessage(nil), body...)
	return &resp, nil
}
