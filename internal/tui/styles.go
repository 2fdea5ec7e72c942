package tui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)

	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	focusedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
)

func statusBadge(status string) string {
	switch status {
	case "TESTING":
		return passStyle.Render("● " + status)
	case "BLOCKED":
		return errorStyle.Render("■ " + status)
	case "COMPLETED":
		return passStyle.Render("✓ " + status)
	case "ENDED":
		return dimStyle.Render("○ " + status)
	default:
		return warnStyle.Render("◆ " + status)
	}
}
