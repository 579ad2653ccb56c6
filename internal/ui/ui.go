// Package ui renders terminal output for the CLI commands.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "25", Dark: "39"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "245", Dark: "240"}
	ColorPass   = lipgloss.AdaptiveColor{Light: "28", Dark: "40"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "130", Dark: "214"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "124", Dark: "196"}
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	PassStyle = lipgloss.NewStyle().
			Foreground(ColorPass)

	WarnStyle = lipgloss.NewStyle().
			Foreground(ColorWarn)

	FailStyle = lipgloss.NewStyle().
			Foreground(ColorFail)

	borderStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)
)

// NewTable creates a bordered table with the shared styling. Headers
// are optional; a headerless table renders plain key/value rows.
func NewTable(headers ...string) *table.Table {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle.Align(lipgloss.Center).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	if len(headers) > 0 {
		t = t.Headers(headers...)
	}
	return t
}
