// internal/ui/styles.go

package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles are bound to one renderer so output written to a pipe or a buffer
// gets no colour codes.
type Styles struct {
	Title       lipgloss.Style
	Host        lipgloss.Style
	Step        lipgloss.Style
	Description lipgloss.Style
	Success     lipgloss.Style
	Error       lipgloss.Style
	Warning     lipgloss.Style
	Header      lipgloss.Style
	Cell        lipgloss.Style
	Border      lipgloss.Style
	Output      lipgloss.Style
}

func NewStyles(r *lipgloss.Renderer, theme Theme) Styles {
	return Styles{
		Title: r.NewStyle().
			Bold(true).
			Foreground(theme.Highlight),
		Host: r.NewStyle().
			Bold(true),
		Step: r.NewStyle().
			Foreground(theme.Highlight),
		Description: r.NewStyle().
			Foreground(theme.Subtle),
		Success: r.NewStyle().
			Foreground(theme.Special).
			Bold(true),
		Error: r.NewStyle().
			Foreground(theme.Error).
			Bold(true),
		Warning: r.NewStyle().
			Foreground(theme.Warning),
		Header: r.NewStyle().
			Foreground(theme.Highlight).
			Bold(true).
			Padding(0, 1),
		Cell: r.NewStyle().
			Padding(0, 1),
		Border: r.NewStyle().
			Foreground(theme.Border),
		Output: r.NewStyle().
			Foreground(theme.Subtle).
			MarginLeft(4),
	}
}

// GetMaxWidth returns the widest rendered width among items.
func GetMaxWidth(items []string) int {
	maxWidth := 0
	for _, item := range items {
		if w := lipgloss.Width(item); w > maxWidth {
			maxWidth = w
		}
	}
	return maxWidth
}
