package wizard

import (
	"strings"

	"github.com/pharmaguard-wizard/internal/domain"
)

// Step is the wizard screen currently shown
type Step string

const (
	StepInput         Step = "input"
	StepTransitioning Step = "transitioning"
	StepDrugSelection Step = "drug_selection"
	StepResults       Step = "results"
)

// User-facing messages
const (
	MsgSelectDrug     = "Please select at least one drug."
	MsgManualNeedsVCF = "Full analysis currently requires VCF file. Please upload a VCF file."
	MsgNeedInput      = "Please select a VCF file or enter variants manually."
	msgAnalysisFailed = "Analysis failed: "
)

// VariantRow is one manually entered variant. In the manual form the first
// column takes a chromosome or gene and the second a position or diplotype.
type VariantRow struct {
	ID                  int    `json:"id"`
	ChromosomeOrGene    string `json:"chromosome"`
	PositionOrDiplotype string `json:"position"`
	RefAllele           string `json:"ref_allele"`
	AltAllele           string `json:"alt_allele"`
}

// complete reports whether the row has enough to count as input
func (r VariantRow) complete() bool {
	return strings.TrimSpace(r.ChromosomeOrGene) != "" && strings.TrimSpace(r.PositionOrDiplotype) != ""
}

// VariantRowInput carries the editable fields of a VariantRow
type VariantRowInput struct {
	ChromosomeOrGene    string `json:"chromosome"`
	PositionOrDiplotype string `json:"position"`
	RefAllele           string `json:"ref_allele"`
	AltAllele           string `json:"alt_allele"`
}

// FileInfo describes the selected file without its content
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// State is a point-in-time copy of the wizard
type State struct {
	Version        uint64                `json:"version"`
	Step           Step                  `json:"step"`
	Mode           domain.InputMode      `json:"mode"`
	File           *FileInfo             `json:"file,omitempty"`
	ManualVariants []VariantRow          `json:"manual_variants"`
	SelectedDrugs  []domain.Drug         `json:"selected_drugs"`
	PatientID      string                `json:"patient_id,omitempty"`
	Results        []domain.RiskResult   `json:"results,omitempty"`
	Summary        *domain.ResultSummary `json:"summary,omitempty"`
	Error          string                `json:"error,omitempty"`
	Loading        bool                  `json:"loading"`
	Step1Done      bool                  `json:"step1_done"`
	CanAnalyze     bool                  `json:"can_analyze"`
}

// Completion describes a finished analysis
type Completion struct {
	PatientID string
	FileName  string
	Drugs     []domain.Drug
	Results   []domain.RiskResult
	Summary   domain.ResultSummary
}

// state is the controller's private, mutable form of State
type state struct {
	step           Step
	mode           domain.InputMode
	file           *domain.VariantFile
	manualVariants []VariantRow
	selectedDrugs  []domain.Drug
	patientID      string
	results        []domain.RiskResult
	err            string
	loading        bool
}

func freshState() state {
	return state{
		step:           StepInput,
		mode:           domain.UPLOAD_FILE,
		manualVariants: []VariantRow{{ID: 1}},
		selectedDrugs:  []domain.Drug{},
	}
}

func (s *state) step1Done() bool {
	if s.mode == domain.MANUAL_ENTRY {
		for _, r := range s.manualVariants {
			if r.complete() {
				return true
			}
		}
		return false
	}
	return s.file != nil
}

func (s *state) canAnalyze() bool {
	return len(s.selectedDrugs) > 0
}

func (s *state) hasDrug(d domain.Drug) bool {
	for _, sel := range s.selectedDrugs {
		if sel == d {
			return true
		}
	}
	return false
}

func (s *state) snapshot(version uint64) State {
	out := State{
		Version:        version,
		Step:           s.step,
		Mode:           s.mode,
		ManualVariants: append([]VariantRow(nil), s.manualVariants...),
		SelectedDrugs:  append([]domain.Drug{}, s.selectedDrugs...),
		PatientID:      s.patientID,
		Error:          s.err,
		Loading:        s.loading,
		Step1Done:      s.step1Done(),
		CanAnalyze:     s.canAnalyze(),
	}
	if s.file != nil {
		out.File = &FileInfo{Name: s.file.Name, Size: s.file.Size}
	}
	if s.results != nil {
		out.Results = append([]domain.RiskResult(nil), s.results...)
		summary := domain.Summarize(s.results)
		out.Summary = &summary
	}
	return out
}
