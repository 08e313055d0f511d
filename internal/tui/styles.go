package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/opcoord/internal/operation"
)

var (
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#F87171") // Red
	okColor      = lipgloss.Color("#10B981") // Green
	blueColor    = lipgloss.Color("#60A5FA") // Blue

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	spinnerStyle = lipgloss.NewStyle().Foreground(primaryColor)

	nameStyle = lipgloss.NewStyle().Width(24)
	helpStyle = lipgloss.NewStyle().Foreground(mutedColor).MarginTop(1)
)

// stateStyles colors the state column of an operation row.
var stateStyles = map[operation.State]lipgloss.Style{
	operation.StatePending:    lipgloss.NewStyle().Foreground(mutedColor),
	operation.StateEvaluating: lipgloss.NewStyle().Foreground(mutedColor),
	operation.StateReady:      lipgloss.NewStyle().Foreground(blueColor),
	operation.StateExecuting:  lipgloss.NewStyle().Foreground(okColor).Bold(true),
	operation.StateFinishing:  lipgloss.NewStyle().Foreground(okColor),
	operation.StateFinished:   lipgloss.NewStyle().Foreground(primaryColor),
	operation.StateCancelled:  lipgloss.NewStyle().Foreground(warningColor),
}

func stateStyle(s operation.State) lipgloss.Style {
	if st, ok := stateStyles[s]; ok {
		return st
	}
	return mutedStyle
}
