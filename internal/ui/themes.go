package ui

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Subtle    lipgloss.Color
	Highlight lipgloss.Color
	Special   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Border    lipgloss.Color
}

const DefaultTheme = "default"

var themes = map[string]Theme{
	DefaultTheme: {
		Subtle:    lipgloss.Color("#6C7086"),
		Highlight: lipgloss.Color("#7DC4E4"),
		Special:   lipgloss.Color("#A6E3A1"),
		Error:     lipgloss.Color("#F38BA8"),
		Warning:   lipgloss.Color("#FF9E64"),
		Border:    lipgloss.Color("#33B2FF"),
	},
	"dracula": {
		Subtle:    lipgloss.Color("#6272A4"),
		Highlight: lipgloss.Color("#BD93F9"),
		Special:   lipgloss.Color("#50FA7B"),
		Error:     lipgloss.Color("#FF5555"),
		Warning:   lipgloss.Color("#FFB86C"),
		Border:    lipgloss.Color("#BD93F9"),
	},
	"monokai": {
		Subtle:    lipgloss.Color("#75715E"),
		Highlight: lipgloss.Color("#66D9EF"),
		Special:   lipgloss.Color("#A6E22E"),
		Error:     lipgloss.Color("#F92672"),
		Warning:   lipgloss.Color("#FD971F"),
		Border:    lipgloss.Color("#66D9EF"),
	},
	"mono": {
		Subtle:    lipgloss.Color("244"),
		Highlight: lipgloss.Color("255"),
		Special:   lipgloss.Color("250"),
		Error:     lipgloss.Color("255"),
		Warning:   lipgloss.Color("250"),
		Border:    lipgloss.Color("240"),
	},
}

// ThemeByName returns a named theme. The empty name selects the default.
func ThemeByName(name string) (Theme, error) {
	if name == "" {
		name = DefaultTheme
	}
	t, ok := themes[name]
	if !ok {
		return Theme{}, fmt.Errorf("unknown theme %q (available: %v)", name, ThemeNames())
	}
	return t, nil
}

func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
