package domain

import (
	"fmt"
	"strings"
)

// Core Enums and Types

// Drug identifies one of the supported medications
type Drug string

const (
	CODEINE      Drug = "CODEINE"
	WARFARIN     Drug = "WARFARIN"
	CLOPIDOGREL  Drug = "CLOPIDOGREL"
	SIMVASTATIN  Drug = "SIMVASTATIN"
	AZATHIOPRINE Drug = "AZATHIOPRINE"
	FLUOROURACIL Drug = "FLUOROURACIL"
)

// SupportedDrugs lists the drugs in display order
var SupportedDrugs = []Drug{CODEINE, WARFARIN, CLOPIDOGREL, SIMVASTATIN, AZATHIOPRINE, FLUOROURACIL}

// ParseDrug converts user input into a supported Drug, ignoring case and surrounding space
func ParseDrug(input string) (Drug, error) {
	candidate := Drug(strings.ToUpper(strings.TrimSpace(input)))
	for _, d := range SupportedDrugs {
		if d == candidate {
			return d, nil
		}
	}
	return "", NewValidationError("drug", fmt.Sprintf("unsupported drug %q", input), input)
}

// IsSupported reports whether d is one of SupportedDrugs
func (d Drug) IsSupported() bool {
	_, err := ParseDrug(string(d))
	return err == nil
}

func (d Drug) String() string { return string(d) }

// InputMode selects how the patient's variants are supplied
type InputMode string

const (
	UPLOAD_FILE  InputMode = "upload"
	MANUAL_ENTRY InputMode = "manual"
)

// ParseInputMode accepts the wire names of InputMode
func ParseInputMode(input string) (InputMode, error) {
	switch InputMode(strings.ToLower(strings.TrimSpace(input))) {
	case UPLOAD_FILE:
		return UPLOAD_FILE, nil
	case MANUAL_ENTRY:
		return MANUAL_ENTRY, nil
	}
	return "", NewValidationError("mode", "mode must be 'upload' or 'manual'", input)
}

// RiskCategory is the three-way risk bucket shown for a drug
type RiskCategory string

const (
	SAFE        RiskCategory = "safe"
	DOSE_ADJUST RiskCategory = "warn"
	TOXIC       RiskCategory = "toxic"
)

// ParseRiskCategory accepts the wire names of RiskCategory
func ParseRiskCategory(input string) (RiskCategory, error) {
	switch RiskCategory(strings.ToLower(strings.TrimSpace(input))) {
	case SAFE:
		return SAFE, nil
	case DOSE_ADJUST:
		return DOSE_ADJUST, nil
	case TOXIC:
		return TOXIC, nil
	}
	return "", NewValidationError("risk", "risk must be one of safe, warn, toxic", input)
}

// Rank orders categories from least to most severe
func (r RiskCategory) Rank() int {
	switch r {
	case DOSE_ADJUST:
		return 1
	case TOXIC:
		return 2
	default:
		return 0
	}
}

// ClassifyRiskLabel maps a free-text backend risk label onto a RiskCategory.
// Matching is a case-insensitive substring test and the first rule to match wins.
func ClassifyRiskLabel(label string) RiskCategory {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "high"), strings.Contains(l, "toxic"):
		return TOXIC
	case strings.Contains(l, "warn"), strings.Contains(l, "adjust"):
		return DOSE_ADJUST
	default:
		return SAFE
	}
}
