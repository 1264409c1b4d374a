package tui

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/pharmaguard-wizard/internal/domain"
	"github.com/pharmaguard-wizard/internal/upload"
	"github.com/pharmaguard-wizard/internal/wizard"
)

// inputValues backs the input form (huh binds to strings)
type inputValues struct {
	mode      domain.InputMode
	path      string
	rows      string
	patientID string
}

func inputFromState(snap wizard.State) *inputValues {
	return &inputValues{
		mode:      snap.Mode,
		rows:      formatRows(snap.ManualVariants),
		patientID: snap.PatientID,
	}
}

func newInputForm(v *inputValues) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[domain.InputMode]().
				Key("mode").
				Title("How will you provide the patient's variants?").
				Options(
					huh.NewOption("Upload a VCF file", domain.UPLOAD_FILE),
					huh.NewOption("Enter variants manually", domain.MANUAL_ENTRY),
				).
				Value(&v.mode),
		),
		huh.NewGroup(
			huh.NewInput().
				Key("path").
				Title("VCF file").
				Description("Path to a .vcf or .vcf.gz file, 50 MB at most").
				Placeholder("/data/patient.vcf").
				Value(&v.path),
		).WithHideFunc(func() bool { return v.mode != domain.UPLOAD_FILE }),
		huh.NewGroup(
			huh.NewText().
				Key("rows").
				Title("Variants").
				Description("One per line: CHROM POS REF ALT, or GENE DIPLOTYPE").
				Placeholder("CYP2D6 *1/*4").
				Value(&v.rows),
		).WithHideFunc(func() bool { return v.mode != domain.MANUAL_ENTRY }),
		huh.NewGroup(
			huh.NewInput().
				Key("patient").
				Title("Patient ID").
				Description("Optional").
				Value(&v.patientID),
		),
	).WithShowHelp(false).WithShowErrors(true)
}

// submitInput pushes the form values into the controller and submits the step
func (m *Model) submitInput() tea.Cmd {
	m.notice = ""
	v := m.input

	if err := m.ctrl.SetMode(v.mode); err != nil {
		m.notice = err.Error()
		return m.buildForm()
	}

	if v.mode == domain.MANUAL_ENTRY {
		if err := m.applyRows(parseRows(v.rows)); err != nil {
			m.notice = err.Error()
			return m.buildForm()
		}
	} else if !m.selectFile(strings.TrimSpace(v.path)) {
		return m.buildForm()
	}

	if err := m.ctrl.SetPatientID(strings.TrimSpace(v.patientID)); err != nil {
		m.notice = err.Error()
		return m.buildForm()
	}
	if err := m.ctrl.Submit(); err != nil {
		return m.buildForm()
	}

	m.form = nil
	return tea.Tick(m.transitionDelay, func(time.Time) tea.Msg {
		return transitionDoneMsg{}
	})
}

// selectFile loads path into the controller. A rejected file is still handed
// to the controller so its message shows up in the state.
func (m *Model) selectFile(path string) bool {
	if path == "" {
		_ = m.ctrl.ClearFile()
		return true
	}

	file, err := upload.Open(path)
	if err == nil {
		return m.ctrl.SelectFile(file) == nil
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		var size int64
		if info, statErr := os.Stat(path); statErr == nil {
			size = info.Size()
		}
		_ = m.ctrl.SelectFile(&domain.VariantFile{Name: filepath.Base(path), Size: size})
		return false
	}

	_ = m.ctrl.ClearFile()
	m.notice = fmt.Sprintf("Cannot read %s: %v", path, err)
	return false
}

// applyRows makes the controller's manual rows match rows, reusing existing ids
func (m *Model) applyRows(rows []wizard.VariantRowInput) error {
	existing := m.ctrl.Snapshot().ManualVariants
	if len(rows) == 0 {
		rows = []wizard.VariantRowInput{{}}
	}

	for i, in := range rows {
		id := 0
		if i < len(existing) {
			id = existing[i].ID
		} else {
			row, err := m.ctrl.AddVariantRow()
			if err != nil {
				return err
			}
			id = row.ID
		}
		if err := m.ctrl.UpdateVariantRow(id, in); err != nil {
			return err
		}
	}
	for _, row := range existing[min(len(rows), len(existing)):] {
		if err := m.ctrl.RemoveVariantRow(row.ID); err != nil {
			return err
		}
	}
	return nil
}

// parseRows reads one variant per non-blank line. Fields are separated by
// spaces, tabs or commas and fill chromosome/gene, position/diplotype, ref, alt.
func parseRows(text string) []wizard.VariantRowInput {
	var rows []wizard.VariantRowInput
	for _, line := range strings.Split(text, "\n") {
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ',' || r == '\r'
		})
		if len(fields) == 0 {
			continue
		}
		var in wizard.VariantRowInput
		targets := []*string{&in.ChromosomeOrGene, &in.PositionOrDiplotype, &in.RefAllele, &in.AltAllele}
		for i := 0; i < len(fields) && i < len(targets); i++ {
			*targets[i] = fields[i]
		}
		rows = append(rows, in)
	}
	return rows
}

func formatRows(rows []wizard.VariantRow) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		line := strings.TrimSpace(strings.Join([]string{r.ChromosomeOrGene, r.PositionOrDiplotype, r.RefAllele, r.AltAllele}, " "))
		if line != "" {
			lines = append(lines, strings.Join(strings.Fields(line), " "))
		}
	}
	return strings.Join(lines, "\n")
}

// inputSummary describes what step 1 produced
func inputSummary(snap wizard.State) string {
	if snap.Mode == domain.MANUAL_ENTRY {
		n := 0
		for _, r := range snap.ManualVariants {
			if strings.TrimSpace(r.ChromosomeOrGene) != "" {
				n++
			}
		}
		return infoStyle.Render(fmt.Sprintf("Manual entry: %d variant(s)", n))
	}
	if snap.File == nil {
		return infoStyle.Render("No file selected")
	}
	return infoStyle.Render("File: " + upload.Describe(&domain.VariantFile{Name: snap.File.Name, Size: snap.File.Size}))
}
