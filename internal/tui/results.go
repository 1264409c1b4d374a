package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pharmaguard-wizard/internal/domain"
	"github.com/pharmaguard-wizard/internal/wizard"
)

func (m *Model) updateResults(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	m.notice = ""
	switch key.String() {
	case "d":
		if err := m.ctrl.ChangeDrugSelection(); err != nil {
			m.notice = err.Error()
			return m, nil
		}
		return m, m.buildForm()
	case "n":
		if err := m.ctrl.StartNewAnalysis(); err != nil {
			m.notice = err.Error()
			return m, nil
		}
		m.input = nil
		return m, m.buildForm()
	case "q", "esc":
		return m, tea.Quit
	}
	return m, nil
}

// categoryName is the human form of a risk category
func categoryName(r domain.RiskCategory) string {
	switch r {
	case domain.TOXIC:
		return "toxic"
	case domain.DOSE_ADJUST:
		return "dose adjustment"
	default:
		return "safe"
	}
}

// summaryLine renders the one-line tally shown above the result cards
func summaryLine(s domain.ResultSummary) string {
	return fmt.Sprintf("%d drug(s) analysed: %d safe, %d dose adjustment, %d toxic. Highest risk: %s",
		s.Total, s.Safe, s.DoseAdjust, s.Toxic, categoryName(s.Highest))
}

func renderResults(snap wizard.State, width int) string {
	summary := domain.Summarize(snap.Results)
	if snap.Summary != nil {
		summary = *snap.Summary
	}

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(riskColor(summary.Highest)).Render(summaryLine(summary)))
	b.WriteString("\n\n")
	for _, r := range snap.Results {
		b.WriteString(renderCard(r, width))
		b.WriteString("\n")
	}
	return b.String()
}

func renderCard(r domain.RiskResult, width int) string {
	label := r.Label
	if label == "" {
		label = categoryName(r.RiskCategory)
	}

	field := func(name, value string) string {
		return labelStyle.Render(name+": ") + value
	}

	lines := []string{
		drugStyle.Render(string(r.Drug)) + "  " + badge(r.RiskCategory, label),
		field("Gene", r.Gene) + "   " + field("Diplotype", r.Diplotype) + "   " + field("Phenotype", r.Phenotype),
		field("Severity", r.Severity) + "   " + field("Evidence", r.EvidenceLevel) + "   " +
			field("Confidence", fmt.Sprintf("%.0f%%", r.Confidence*100)),
		field("Recommendation", r.Recommendation),
	}
	if r.DrugClass != "" {
		lines = append(lines, field("Class", r.DrugClass))
	}
	if n := len(r.DetectedVariants); n > 0 {
		lines = append(lines, field("Detected variants", fmt.Sprintf("%d", n)))
	}
	if r.Note != "" {
		lines = append(lines, hintStyle.Render(r.Note))
	}

	return cardStyle.
		Width(width).
		BorderForeground(riskColor(r.RiskCategory)).
		Render(strings.Join(lines, "\n"))
}
