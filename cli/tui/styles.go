// Package tui provides the Bubble Tea console viewer for the sluice CLI.
//
// TUI rules:
//   - TUI is opt-in only (--tui flag)
//   - TUI renders the same fragment stream as the plain console sink
//   - Quitting the viewer mid-session cancels the session, not just the view
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/sluice/types"
)

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// Styles for TUI components.
var (
	// TitleStyle for headers and titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// LabelStyle for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(12)

	// ValueStyle for field values.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	// SuccessStyle for completed sessions.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// WarningStyle for canceled sessions.
	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// ErrorStyle for failed sessions.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	// StatBoxStyle for stat display boxes.
	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlightColor).
			Padding(0, 2).
			Width(16).
			Align(lipgloss.Center)

	// StatLabelStyle for stat labels.
	StatLabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Align(lipgloss.Center)

	// StatValueStyle for stat values.
	StatValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Align(lipgloss.Center)
)

// OutcomeStyle returns the style for a session outcome.
func OutcomeStyle(outcome types.SessionOutcome) lipgloss.Style {
	switch outcome {
	case types.OutcomeCompleted:
		return SuccessStyle
	case types.OutcomeCanceled:
		return WarningStyle
	case types.OutcomeStreamError, types.OutcomeSinkFailure:
		return ErrorStyle
	default:
		return ValueStyle
	}
}

// outcomeColor returns the border color for a session outcome.
func outcomeColor(outcome types.SessionOutcome) lipgloss.Color {
	switch outcome {
	case types.OutcomeCompleted:
		return successColor
	case types.OutcomeCanceled:
		return warningColor
	case types.OutcomeStreamError, types.OutcomeSinkFailure:
		return errorColor
	default:
		return mutedColor
	}
}
