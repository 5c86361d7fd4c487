package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskboard/internal/task"
)

// Border styles
var (
	StyleFocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62"))

	StyleUnfocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	StyleDropTarget = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("214"))
)

// Status styles
var (
	StyleStatusRunning = lipgloss.NewStyle().
				Foreground(lipgloss.Color("yellow")).
				Bold(true)

	StyleStatusComplete = lipgloss.NewStyle().
				Foreground(lipgloss.Color("green")).
				Bold(true)

	StyleStatusHold = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208"))

	StyleStatusReview = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39"))

	StyleStatusPending = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

// UI element styles
var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	StyleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	StyleSelected = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0"))

	StyleLocked = lipgloss.NewStyle().
			Foreground(lipgloss.Color("red"))

	StyleWarning = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	StyleInfo = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))
)

// StatusStyle returns the style for a task status.
func StatusStyle(s task.Status) lipgloss.Style {
	switch s {
	case task.StatusInProgress:
		return StyleStatusRunning
	case task.StatusOnHold:
		return StyleStatusHold
	case task.StatusReview:
		return StyleStatusReview
	case task.StatusCompleted:
		return StyleStatusComplete
	default:
		return StyleStatusPending
	}
}
