package output

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used for text output.
type Styles struct {
	Header1       lipgloss.Style
	Header2       lipgloss.Style
	Bold          lipgloss.Style
	Muted         lipgloss.Style
	Success       lipgloss.Style
	Warning       lipgloss.Style
	Error         lipgloss.Style
	Info          lipgloss.Style
	TaskName      lipgloss.Style
	StatusSuccess lipgloss.Style
	StatusSkipped lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusPending lipgloss.Style
}

func newStyles(lr *lipgloss.Renderer) *Styles {
	return &Styles{
		Header1:       lr.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).MarginBottom(1),
		Header2:       lr.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		Bold:          lr.NewStyle().Bold(true),
		Muted:         lr.NewStyle().Foreground(lipgloss.Color("8")),
		Success:       lr.NewStyle().Foreground(lipgloss.Color("10")),
		Warning:       lr.NewStyle().Foreground(lipgloss.Color("11")),
		Error:         lr.NewStyle().Foreground(lipgloss.Color("9")),
		Info:          lr.NewStyle().Foreground(lipgloss.Color("12")),
		TaskName:      lr.NewStyle().Foreground(lipgloss.Color("13")),
		StatusSuccess: lr.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		StatusSkipped: lr.NewStyle().Foreground(lipgloss.Color("8")),
		StatusFailed:  lr.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		StatusPending: lr.NewStyle().Foreground(lipgloss.Color("11")),
	}
}
