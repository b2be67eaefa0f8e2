package tui

import "github.com/charmbracelet/lipgloss"

// Palette colors.
const (
	colorText    = "#E6E6E6"
	colorMuted   = "#8A8F98"
	colorAccent  = "#7AA2F7"
	colorFocus   = "#BB9AF7"
	colorSuccess = "#9ECE6A"
	colorWarning = "#E0AF68"
	colorError   = "#F7768E"
	colorBorder  = "#3B4261"
)

// styles holds the lipgloss styles the views use.
type styles struct {
	Title    lipgloss.Style
	Text     lipgloss.Style
	Muted    lipgloss.Style
	Accent   lipgloss.Style
	Focus    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Sheet    lipgloss.Style
	Disabled lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Title:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorText)).Bold(true),
		Text:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorText)),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted)),
		Accent:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)),
		Focus:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorFocus)).Bold(true),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorSuccess)),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorWarning)),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorError)),
		Sheet:    lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(colorBorder)).Padding(0, 1),
		Disabled: lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted)).Strikethrough(true),
	}
}
