package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/pharmaguard-wizard/internal/catalog"
	"github.com/pharmaguard-wizard/internal/domain"
	"github.com/pharmaguard-wizard/internal/wizard"
)

type drugAction string

const (
	actionAnalyze    drugAction = "analyze"
	actionChangeFile drugAction = "change_file"
	actionQuit       drugAction = "quit"
)

type drugValues struct {
	selected []domain.Drug
	action   drugAction
}

func drugsFromState(snap wizard.State) *drugValues {
	return &drugValues{
		selected: append([]domain.Drug(nil), snap.SelectedDrugs...),
		action:   actionAnalyze,
	}
}

func newDrugForm(cat *catalog.Catalog, v *drugValues) *huh.Form {
	selected := make(map[domain.Drug]bool, len(v.selected))
	for _, d := range v.selected {
		selected[d] = true
	}

	options := make([]huh.Option[domain.Drug], 0, len(cat.Drugs()))
	for _, entry := range cat.Entries() {
		label := fmt.Sprintf("%-13s %s (%s)", entry.Drug, entry.Class, entry.Gene())
		options = append(options, huh.NewOption(label, entry.Drug).Selected(selected[entry.Drug]))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[domain.Drug]().
				Key("drugs").
				Title("Drugs to assess").
				Description("space to toggle, enter to continue").
				Options(options...).
				Value(&v.selected),
			huh.NewSelect[drugAction]().
				Key("action").
				Title("Next").
				Options(
					huh.NewOption("Analyze", actionAnalyze),
					huh.NewOption("Change file", actionChangeFile),
					huh.NewOption("Quit", actionQuit),
				).
				Value(&v.action),
		),
	).WithShowHelp(false).WithShowErrors(true)
}

// submitDrugs stores the selection and runs the chosen action
func (m *Model) submitDrugs() tea.Cmd {
	m.notice = ""
	v := m.drugs

	if err := m.ctrl.SetDrugs(v.selected); err != nil {
		m.notice = err.Error()
		return m.buildForm()
	}

	switch v.action {
	case actionChangeFile:
		if err := m.ctrl.ChangeFile(); err != nil {
			m.notice = err.Error()
		}
		m.input = nil
		return m.buildForm()
	case actionQuit:
		m.cancelled = true
		return tea.Quit
	}

	m.analyzing = true
	m.form = nil
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return analysisDoneMsg{err: ctrl.Analyze(ctx)}
	}
}
