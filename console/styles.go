package console

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title     lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	interim   lipgloss.Style
	status    lipgloss.Style
	coach     lipgloss.Style
	help      lipgloss.Style
	frame     lipgloss.Style
}

func newStyles() styles {
	return styles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1),
		user: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true),
		assistant: lipgloss.NewStyle().
			Foreground(lipgloss.Color("213")),
		interim: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true),
		status: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		coach: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true),
		help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		frame: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1),
	}
}
