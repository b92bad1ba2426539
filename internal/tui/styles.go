package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/crewclock/internal/model"
)

// Palette
var (
	colorPrimary   = lipgloss.Color("#E0AF68")
	colorSecondary = lipgloss.Color("#73DACA")
	colorAccent    = lipgloss.Color("#FF7A93")
	colorMuted     = lipgloss.Color("#737AA2")
	colorSuccess   = lipgloss.Color("#9ECE6A")
	colorWarning   = lipgloss.Color("#FF9E64")
	colorError     = lipgloss.Color("#F7768E")
	colorFg        = lipgloss.Color("#C0CAF5")
	colorSubtle    = lipgloss.Color("#3B4261")
	colorHighlight = lipgloss.Color("#7DCFFF")
)

// Styles
var (
	// Tabs
	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(colorPrimary).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(colorMuted).
				Padding(0, 2)

	// Panels
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSubtle).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorPrimary).
				Padding(1, 2)

	// Header timer
	timerStoppedStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorMuted)

	timerRunningStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorSuccess)

	timerSavingStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorWarning)

	// Grid
	gridHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorSecondary)

	todayColumnStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorHighlight)

	activeRowStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	pendingStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)

	totalRowStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorFg).
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(colorSubtle)

	// Board
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSubtle).
			Padding(0, 1)

	focusedColumnStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorPrimary).
				Padding(0, 1)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorHighlight).
			Padding(1, 2)

	// Text
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorFg)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	// Header/footer
	headerStyle = lipgloss.NewStyle().
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 1)

	// List items
	selectedItemStyle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true)

	normalItemStyle = lipgloss.NewStyle().
			Foreground(colorFg)
)

var statusColors = map[model.Status]lipgloss.Color{
	model.StatusTodo:       colorHighlight,
	model.StatusInProgress: colorWarning,
	model.StatusDone:       colorSuccess,
	model.StatusBlocked:    colorError,
}

func statusStyle(s model.Status) lipgloss.Style {
	c, ok := statusColors[s]
	if !ok {
		c = colorMuted
	}
	return lipgloss.NewStyle().Bold(true).Foreground(c)
}

var priorityColors = map[model.Priority]lipgloss.Color{
	model.PriorityHigh:   colorAccent,
	model.PriorityNormal: colorFg,
	model.PriorityLow:    colorMuted,
}

func priorityStyle(p model.Priority) lipgloss.Style {
	c, ok := priorityColors[p]
	if !ok {
		c = colorFg
	}
	return lipgloss.NewStyle().Foreground(c)
}
