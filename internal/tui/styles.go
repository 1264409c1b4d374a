package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pharmaguard-wizard/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			MarginBottom(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")).
			Italic(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	drugStyle = lipgloss.NewStyle().Bold(true)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			MarginBottom(1)
)

// riskColor is the accent used for a risk category: green, amber, red
func riskColor(r domain.RiskCategory) lipgloss.Color {
	switch r {
	case domain.TOXIC:
		return lipgloss.Color("196")
	case domain.DOSE_ADJUST:
		return lipgloss.Color("214")
	default:
		return lipgloss.Color("42")
	}
}

func badge(r domain.RiskCategory, label string) string {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("0")).
		Background(riskColor(r)).
		Padding(0, 1).
		Render(label)
}
