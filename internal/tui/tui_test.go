package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaguard-wizard/internal/catalog"
	"github.com/pharmaguard-wizard/internal/domain"
	"github.com/pharmaguard-wizard/internal/wizard"
)

type stubAnalyzer struct {
	err error
}

func (s *stubAnalyzer) Analyze(_ context.Context, _ *domain.VariantFile, drugs []domain.Drug, _ string) ([]domain.RiskResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	results := make([]domain.RiskResult, len(drugs))
	for i, d := range drugs {
		results[i] = domain.RiskResult{
			Drug:           d,
			Gene:           "CYP2D6",
			RiskCategory:   domain.SAFE,
			Label:          "Safe",
			Recommendation: "Use standard dosing",
			Confidence:     0.9,
		}
	}
	if len(results) > 1 {
		results[1].RiskCategory = domain.TOXIC
		results[1].Label = "Toxic"
	}
	return results, nil
}

func newController(analyzer domain.Analyzer) *wizard.Controller {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return wizard.NewController(analyzer, catalog.Default(), wizard.WithLogger(logger))
}

func newModel(ctrl *wizard.Controller) *Model {
	return New(context.Background(), ctrl, WithTransitionDelay(time.Millisecond))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// atDrugSelection returns a model whose controller already accepted a file
func atDrugSelection(t *testing.T, analyzer domain.Analyzer) (*Model, *wizard.Controller) {
	t.Helper()
	ctrl := newController(analyzer)
	require.NoError(t, ctrl.SelectFile(&domain.VariantFile{Name: "sample.vcf", Size: 2048, Content: []byte("##fileformat=VCFv4.2")}))
	require.NoError(t, ctrl.Submit())
	require.NoError(t, ctrl.FinishTransition())
	return newModel(ctrl), ctrl
}

func TestNew_StartsOnInputForm(t *testing.T) {
	m := newModel(newController(&stubAnalyzer{}))

	require.NotNil(t, m.form)
	require.NotNil(t, m.input)
	assert.Equal(t, domain.UPLOAD_FILE, m.input.mode)
	assert.Contains(t, m.View(), "Step 1 of 3")
}

func TestSubmitInput_FileAdvancesThroughTransition(t *testing.T) {
	ctrl := newController(&stubAnalyzer{})
	m := newModel(ctrl)
	m.input.path = writeFile(t, "patient.vcf", "##fileformat=VCFv4.2\n")
	m.input.patientID = " PATIENT_001 "

	cmd := m.submitInput()
	require.NotNil(t, cmd)

	snap := ctrl.Snapshot()
	assert.Equal(t, wizard.StepTransitioning, snap.Step)
	assert.Equal(t, "PATIENT_001", snap.PatientID)
	require.NotNil(t, snap.File)
	assert.Equal(t, "patient.vcf", snap.File.Name)
	assert.Contains(t, m.View(), "Preparing drug selection")

	msg := cmd()
	assert.IsType(t, transitionDoneMsg{}, msg)

	m.Update(msg)
	assert.Equal(t, wizard.StepDrugSelection, ctrl.Snapshot().Step)
	require.NotNil(t, m.form)
	require.NotNil(t, m.drugs)
	assert.Contains(t, m.View(), "File: patient.vcf")
}

func TestSubmitInput_RejectedFileStaysOnInput(t *testing.T) {
	ctrl := newController(&stubAnalyzer{})
	m := newModel(ctrl)
	m.input.path = writeFile(t, "notes.txt", "hello")

	m.submitInput()

	snap := ctrl.Snapshot()
	assert.Equal(t, wizard.StepInput, snap.Step)
	assert.Nil(t, snap.File)
	assert.Equal(t, "Invalid file type. Please upload a .vcf or .vcf.gz file.", snap.Error)
	assert.Equal(t, "notes.txt", filepath.Base(m.input.path))
	assert.Contains(t, m.View(), "Invalid file type")
}

func TestSubmitInput_MissingFile(t *testing.T) {
	ctrl := newController(&stubAnalyzer{})
	m := newModel(ctrl)
	m.input.path = filepath.Join(t.TempDir(), "missing.vcf")

	m.submitInput()

	assert.Equal(t, wizard.StepInput, ctrl.Snapshot().Step)
	assert.Contains(t, m.notice, "Cannot read")
}

func TestSubmitInput_NothingProvided(t *testing.T) {
	ctrl := newController(&stubAnalyzer{})
	m := newModel(ctrl)

	m.submitInput()

	snap := ctrl.Snapshot()
	assert.Equal(t, wizard.StepInput, snap.Step)
	assert.Equal(t, wizard.MsgNeedInput, snap.Error)
}

func TestSubmitInput_ManualRows(t *testing.T) {
	ctrl := newController(&stubAnalyzer{})
	m := newModel(ctrl)
	m.input.mode = domain.MANUAL_ENTRY
	m.input.rows = "CYP2D6 *1/*4\n\nchr22, 42126611, C, T\n"

	cmd := m.submitInput()
	require.NotNil(t, cmd)

	snap := ctrl.Snapshot()
	assert.Equal(t, wizard.StepTransitioning, snap.Step)
	assert.Equal(t, domain.MANUAL_ENTRY, snap.Mode)
	require.Len(t, snap.ManualVariants, 2)
	assert.Equal(t, "CYP2D6", snap.ManualVariants[0].ChromosomeOrGene)
	assert.Equal(t, "*1/*4", snap.ManualVariants[0].PositionOrDiplotype)
	assert.Equal(t, "T", snap.ManualVariants[1].AltAllele)
}

func TestApplyRows_ShrinksToFewerRows(t *testing.T) {
	ctrl := newController(&stubAnalyzer{})
	m := newModel(ctrl)

	require.NoError(t, m.applyRows(parseRows("a 1\nb 2\nc 3")))
	require.Len(t, ctrl.Snapshot().ManualVariants, 3)

	require.NoError(t, m.applyRows(parseRows("z 9")))
	rows := ctrl.Snapshot().ManualVariants
	require.Len(t, rows, 1)
	assert.Equal(t, "z", rows[0].ChromosomeOrGene)
}

func TestParseRows(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []wizard.VariantRowInput
	}{
		{name: "empty", text: "  \n\n", want: nil},
		{name: "gene and diplotype", text: "CYP2C19 *2/*2", want: []wizard.VariantRowInput{{ChromosomeOrGene: "CYP2C19", PositionOrDiplotype: "*2/*2"}}},
		{name: "vcf style with commas", text: "chr10,94781859,G,A", want: []wizard.VariantRowInput{
			{ChromosomeOrGene: "chr10", PositionOrDiplotype: "94781859", RefAllele: "G", AltAllele: "A"},
		}},
		{name: "extra fields ignored", text: "1 2 3 4 5", want: []wizard.VariantRowInput{
			{ChromosomeOrGene: "1", PositionOrDiplotype: "2", RefAllele: "3", AltAllele: "4"},
		}},
		{name: "single field", text: "TPMT", want: []wizard.VariantRowInput{{ChromosomeOrGene: "TPMT"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRows(tt.text))
		})
	}
}

func TestFormatRows(t *testing.T) {
	rows := []wizard.VariantRow{
		{ID: 1, ChromosomeOrGene: "CYP2D6", PositionOrDiplotype: "*1/*4"},
		{ID: 2},
		{ID: 3, ChromosomeOrGene: "chr22", PositionOrDiplotype: "42126611", RefAllele: "C", AltAllele: "T"},
	}

	assert.Equal(t, "CYP2D6 *1/*4\nchr22 42126611 C T", formatRows(rows))
}

func TestSubmitDrugs_AnalyzeShowsResults(t *testing.T) {
	m, ctrl := atDrugSelection(t, &stubAnalyzer{})
	m.drugs.selected = []domain.Drug{domain.CODEINE, domain.WARFARIN}
	m.drugs.action = actionAnalyze

	cmd := m.submitDrugs()
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Analyzing 2 drug(s)")

	msg := cmd()
	done, ok := msg.(analysisDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)

	m.Update(msg)
	snap := ctrl.Snapshot()
	assert.Equal(t, wizard.StepResults, snap.Step)
	assert.False(t, m.analyzing)

	view := m.View()
	assert.Contains(t, view, "2 drug(s) analysed: 1 safe, 0 dose adjustment, 1 toxic. Highest risk: toxic")
	assert.Contains(t, view, "CODEINE")
	assert.Contains(t, view, "WARFARIN")
	assert.Contains(t, view, "Use standard dosing")
	assert.Contains(t, view, "d change drugs")
}

func TestSubmitDrugs_NoDrugSelected(t *testing.T) {
	m, ctrl := atDrugSelection(t, &stubAnalyzer{})
	m.drugs.selected = nil

	msg := m.submitDrugs()()
	m.Update(msg)

	snap := ctrl.Snapshot()
	assert.Equal(t, wizard.StepDrugSelection, snap.Step)
	assert.Equal(t, wizard.MsgSelectDrug, snap.Error)
	assert.NotNil(t, m.form)
	assert.Contains(t, m.View(), wizard.MsgSelectDrug)
}

func TestSubmitDrugs_AnalysisFailure(t *testing.T) {
	m, ctrl := atDrugSelection(t, &stubAnalyzer{err: errors.New("Failed to analyze VCF: backend down")})
	m.drugs.selected = []domain.Drug{domain.CODEINE}

	m.Update(m.submitDrugs()())

	snap := ctrl.Snapshot()
	assert.Equal(t, wizard.StepDrugSelection, snap.Step)
	assert.Equal(t, "Analysis failed: Failed to analyze VCF: backend down", snap.Error)
	assert.Equal(t, []domain.Drug{domain.CODEINE}, m.drugs.selected)
}

func TestSubmitDrugs_ChangeFileKeepsSelection(t *testing.T) {
	m, ctrl := atDrugSelection(t, &stubAnalyzer{})
	m.drugs.selected = []domain.Drug{domain.SIMVASTATIN}
	m.drugs.action = actionChangeFile

	m.submitDrugs()

	snap := ctrl.Snapshot()
	assert.Equal(t, wizard.StepInput, snap.Step)
	assert.Nil(t, snap.File)
	assert.Equal(t, []domain.Drug{domain.SIMVASTATIN}, snap.SelectedDrugs)
	require.NotNil(t, m.input)
	assert.Empty(t, m.input.path)
}

func TestSubmitDrugs_Quit(t *testing.T) {
	m, _ := atDrugSelection(t, &stubAnalyzer{})
	m.drugs.action = actionQuit

	cmd := m.submitDrugs()
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.Cancelled())
}

func TestResults_Keys(t *testing.T) {
	m, ctrl := atDrugSelection(t, &stubAnalyzer{})
	m.drugs.selected = []domain.Drug{domain.CLOPIDOGREL}
	m.Update(m.submitDrugs()())
	require.Equal(t, wizard.StepResults, ctrl.Snapshot().Step)

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	snap := ctrl.Snapshot()
	assert.Equal(t, wizard.StepDrugSelection, snap.Step)
	assert.Empty(t, snap.Results)
	assert.Equal(t, []domain.Drug{domain.CLOPIDOGREL}, m.drugs.selected)

	m.Update(m.submitDrugs()())
	require.Equal(t, wizard.StepResults, ctrl.Snapshot().Step)

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	snap = ctrl.Snapshot()
	assert.Equal(t, wizard.StepInput, snap.Step)
	assert.Empty(t, snap.SelectedDrugs)
	assert.Nil(t, snap.File)
	require.NotNil(t, m.input)
}

func TestResults_Quit(t *testing.T) {
	m, ctrl := atDrugSelection(t, &stubAnalyzer{})
	m.drugs.selected = []domain.Drug{domain.CODEINE}
	m.Update(m.submitDrugs()())
	require.Equal(t, wizard.StepResults, ctrl.Snapshot().Step)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.False(t, m.Cancelled())
}

func TestUpdate_CtrlCCancels(t *testing.T) {
	m := newModel(newController(&stubAnalyzer{}))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.Cancelled())
}

func TestUpdate_WindowSizeNarrowsCards(t *testing.T) {
	m := newModel(newController(&stubAnalyzer{}))
	assert.Equal(t, 80, m.cardWidth())

	m.Update(tea.WindowSizeMsg{Width: 60, Height: 40})
	assert.Equal(t, 56, m.cardWidth())
}

func TestSummaryLine(t *testing.T) {
	s := domain.Summarize([]domain.RiskResult{
		{RiskCategory: domain.SAFE},
		{RiskCategory: domain.DOSE_ADJUST},
	})

	assert.Equal(t, "2 drug(s) analysed: 1 safe, 1 dose adjustment, 0 toxic. Highest risk: dose adjustment", summaryLine(s))
}
