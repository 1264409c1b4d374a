package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskCategoryConstants(t *testing.T) {
	tests := []struct {
		name     string
		value    RiskCategory
		expected string
	}{
		{"Safe", SAFE, "safe"},
		{"Dose adjust", DOSE_ADJUST, "warn"},
		{"Toxic", TOXIC, "toxic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.value) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, string(tt.value))
			}
		})
	}
}

func TestClassifyRiskLabel(t *testing.T) {
	tests := []struct {
		label    string
		expected RiskCategory
	}{
		{"High Risk", TOXIC},
		{"TOXIC", TOXIC},
		{"Toxicity likely", TOXIC},
		{"Warning", DOSE_ADJUST},
		{"Adjust Dosage", DOSE_ADJUST},
		{"Dose ADJUSTMENT recommended", DOSE_ADJUST},
		{"Safe", SAFE},
		{"Normal", SAFE},
		{"Ineffective", SAFE},
		{"", SAFE},
		{"Unknown", SAFE},
		// first rule wins when a label matches both
		{"High - adjust dose", TOXIC},
		{"warn: possibly toxic", TOXIC},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyRiskLabel(tt.label))
		})
	}
}

func TestParseDrug(t *testing.T) {
	t.Run("accepts every supported drug in any case", func(t *testing.T) {
		for _, d := range SupportedDrugs {
			got, err := ParseDrug("  " + string(d) + " ")
			require.NoError(t, err)
			assert.Equal(t, d, got)
		}
		got, err := ParseDrug("warfarin")
		require.NoError(t, err)
		assert.Equal(t, WARFARIN, got)
	})

	t.Run("rejects unknown drugs", func(t *testing.T) {
		_, err := ParseDrug("ASPIRIN")
		require.Error(t, err)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "drug", verr.Field)
	})

	assert.Len(t, SupportedDrugs, 6)
	assert.True(t, CODEINE.IsSupported())
	assert.False(t, Drug("IBUPROFEN").IsSupported())
}

func TestParseInputModeAndRisk(t *testing.T) {
	mode, err := ParseInputMode("Manual")
	require.NoError(t, err)
	assert.Equal(t, MANUAL_ENTRY, mode)

	_, err = ParseInputMode("paste")
	assert.Error(t, err)

	risk, err := ParseRiskCategory("WARN")
	require.NoError(t, err)
	assert.Equal(t, DOSE_ADJUST, risk)

	_, err = ParseRiskCategory("danger")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	t.Run("empty list", func(t *testing.T) {
		s := Summarize(nil)
		assert.Equal(t, 0, s.Total)
		assert.Equal(t, SAFE, s.Highest)
	})

	t.Run("counts and highest", func(t *testing.T) {
		s := Summarize([]RiskResult{
			{Drug: CODEINE, RiskCategory: SAFE},
			{Drug: WARFARIN, RiskCategory: DOSE_ADJUST},
			{Drug: SIMVASTATIN, RiskCategory: DOSE_ADJUST},
		})
		assert.Equal(t, ResultSummary{Total: 3, Safe: 1, DoseAdjust: 2, Highest: DOSE_ADJUST}, s)

		s = Summarize([]RiskResult{{RiskCategory: TOXIC}, {RiskCategory: SAFE}})
		assert.Equal(t, TOXIC, s.Highest)
		assert.Equal(t, 1, s.Toxic)
	})
}
