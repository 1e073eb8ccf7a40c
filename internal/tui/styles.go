package tui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/leapstack-labs/codecheck/internal/result"
)

var (
	tabStyle       = lipgloss.NewStyle().Padding(0, 2).Foreground(lipgloss.Color("245"))
	activeTabStyle = tabStyle.Foreground(lipgloss.Color("231")).Background(lipgloss.Color("62")).Bold(true)

	labelStyle        = lipgloss.NewStyle().Width(10).Foreground(lipgloss.Color("245"))
	focusedLabelStyle = labelStyle.Foreground(lipgloss.Color("212")).Bold(true)
	valueStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	mutedStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).MarginBottom(1)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 3)
	alertStyle = modalStyle.BorderForeground(lipgloss.Color("196"))

	countStyle  = lipgloss.NewStyle().Bold(true)
	bannerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 2)
	okStyle     = bannerStyle.Foreground(lipgloss.Color("231")).Background(lipgloss.Color("#43A047"))
	failStyle   = bannerStyle.Foreground(lipgloss.Color("231")).Background(lipgloss.Color("#E53935"))
)

func bannerFor(s result.State) lipgloss.Style {
	if s == result.Populated {
		return okStyle
	}
	return failStyle
}

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	return s
}
