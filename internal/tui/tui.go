// Package tui renders the wizard in the terminal. Each step gets its own huh
// form; the wizard.Controller stays the single source of truth.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/pharmaguard-wizard/internal/wizard"
)

// DefaultTransitionDelay is how long the transition screen stays up
const DefaultTransitionDelay = 600 * time.Millisecond

type transitionDoneMsg struct{}

type analysisDoneMsg struct {
	err error
}

// Model is the bubbletea model driving one wizard controller
type Model struct {
	ctx  context.Context
	ctrl *wizard.Controller

	form   *huh.Form
	input  *inputValues
	drugs  *drugValues
	notice string

	analyzing       bool
	transitionDelay time.Duration

	width     int
	height    int
	cancelled bool
}

// Option configures a Model
type Option func(*Model)

// WithTransitionDelay overrides how long the transition screen is shown
func WithTransitionDelay(d time.Duration) Option {
	return func(m *Model) {
		m.transitionDelay = d
	}
}

// New creates a model for ctrl. ctx bounds every analysis started from the UI.
func New(ctx context.Context, ctrl *wizard.Controller, opts ...Option) *Model {
	m := &Model{
		ctx:             ctx,
		ctrl:            ctrl,
		transitionDelay: DefaultTransitionDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.buildForm()
	return m
}

// Cancelled reports whether the user quit before finishing
func (m *Model) Cancelled() bool {
	return m.cancelled
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	if m.form != nil {
		return m.form.Init()
	}
	return nil
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancelled = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case transitionDoneMsg:
		if err := m.ctrl.FinishTransition(); err != nil {
			m.notice = err.Error()
		}
		return m, m.buildForm()
	case analysisDoneMsg:
		m.analyzing = false
		// The controller already carries the user-facing message
		return m, m.buildForm()
	}

	snap := m.ctrl.Snapshot()
	switch snap.Step {
	case wizard.StepInput:
		return m.updateForm(msg, m.submitInput)
	case wizard.StepDrugSelection:
		if m.analyzing || snap.Loading {
			return m, nil
		}
		return m.updateForm(msg, m.submitDrugs)
	case wizard.StepResults:
		return m.updateResults(msg)
	}
	return m, nil
}

// updateForm forwards msg to the current form and calls done once it completes
func (m *Model) updateForm(msg tea.Msg, done func() tea.Cmd) (tea.Model, tea.Cmd) {
	if m.form == nil {
		return m, m.buildForm()
	}
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}
	switch m.form.State {
	case huh.StateCompleted:
		return m, done()
	case huh.StateAborted:
		m.cancelled = true
		return m, tea.Quit
	}
	return m, cmd
}

// buildForm replaces the form with the one for the controller's current step
func (m *Model) buildForm() tea.Cmd {
	snap := m.ctrl.Snapshot()
	switch snap.Step {
	case wizard.StepInput:
		if m.input == nil {
			m.input = inputFromState(snap)
		}
		m.form = newInputForm(m.input)
	case wizard.StepDrugSelection:
		m.drugs = drugsFromState(snap)
		m.form = newDrugForm(m.ctrl.Catalog(), m.drugs)
	default:
		m.form = nil
		return nil
	}
	return m.form.Init()
}

// View implements tea.Model
func (m *Model) View() string {
	snap := m.ctrl.Snapshot()

	var b strings.Builder
	b.WriteString(titleStyle.Render("PharmaGuard"))
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render(stepTitle(snap.Step)))
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString(errorStyle.Render(m.notice))
		b.WriteString("\n\n")
	}
	if snap.Error != "" {
		b.WriteString(errorStyle.Render(snap.Error))
		b.WriteString("\n\n")
	}

	switch snap.Step {
	case wizard.StepInput:
		b.WriteString(m.formView())
	case wizard.StepTransitioning:
		b.WriteString(loadingStyle.Render("Preparing drug selection..."))
		b.WriteString("\n")
	case wizard.StepDrugSelection:
		b.WriteString(inputSummary(snap))
		b.WriteString("\n\n")
		if m.analyzing || snap.Loading {
			b.WriteString(loadingStyle.Render(fmt.Sprintf("Analyzing %d drug(s)...", len(snap.SelectedDrugs))))
			b.WriteString("\n")
		} else {
			b.WriteString(m.formView())
		}
	case wizard.StepResults:
		b.WriteString(renderResults(snap, m.cardWidth()))
		b.WriteString(hintStyle.Render("d change drugs • n new analysis • q quit"))
		b.WriteString("\n")
	}

	return b.String()
}

func (m *Model) formView() string {
	if m.form == nil {
		return ""
	}
	return m.form.View()
}

func (m *Model) cardWidth() int {
	if m.width <= 0 || m.width > 84 {
		return 80
	}
	return m.width - 4
}

func stepTitle(step wizard.Step) string {
	switch step {
	case wizard.StepInput:
		return "Step 1 of 3: Patient variants"
	case wizard.StepTransitioning, wizard.StepDrugSelection:
		return "Step 2 of 3: Drug selection"
	case wizard.StepResults:
		return "Step 3 of 3: Risk assessment"
	}
	return ""
}

// Run starts the terminal wizard and blocks until the user quits
func Run(ctx context.Context, ctrl *wizard.Controller, opts ...Option) error {
	m := New(ctx, ctrl, opts...)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("running wizard: %w", err)
	}
	return nil
}
