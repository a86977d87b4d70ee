package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8"))
	indexStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	virtualStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("4")).Foreground(lipgloss.Color("15"))
	cursorStyle   = lipgloss.NewStyle().Underline(true)
	editStyle     = lipgloss.NewStyle().Background(lipgloss.Color("15")).Foreground(lipgloss.Color("0"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	menuStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("12")).Padding(0, 1)
	menuItemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	menuHotStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("12"))
)

// stateStyle colours the connection state in the title bar.
func stateStyle(connected bool) lipgloss.Style {
	if connected {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	}
	return errorStyle
}
