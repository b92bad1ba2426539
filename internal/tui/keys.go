package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	// Global
	StartStop key.Binding
	Switch    key.Binding
	Export    key.Binding
	Tab1      key.Binding
	Tab2      key.Binding
	Tab       key.Binding
	Help      key.Binding
	Quit      key.Binding

	// Lists and forms
	Enter key.Binding
	Back  key.Binding
	Up    key.Binding
	Down  key.Binding

	// Timesheet
	DayView   key.Binding
	WeekView  key.Binding
	MonthView key.Binding
	Prev      key.Binding
	Next      key.Binding
	Today     key.Binding
	AddLine   key.Binding
	Refresh   key.Binding

	// Board
	ColLeft    key.Binding
	ColRight   key.Binding
	MoveLeft   key.Binding
	MoveRight  key.Binding
	MoveUp     key.Binding
	MoveDown   key.Binding
	Delete     key.Binding
	Filter     key.Binding
	EditStatus key.Binding
}

var keys = keyMap{
	StartStop: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "start/stop"),
	),
	Switch: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "project/task"),
	),
	Export: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "export"),
	),
	Tab1: key.NewBinding(
		key.WithKeys("1"),
		key.WithHelp("1", "timesheet"),
	),
	Tab2: key.NewBinding(
		key.WithKeys("2"),
		key.WithHelp("2", "board"),
	),
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next view"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "select"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	DayView: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "day"),
	),
	WeekView: key.NewBinding(
		key.WithKeys("w"),
		key.WithHelp("w", "week"),
	),
	MonthView: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "month"),
	),
	Prev: key.NewBinding(
		key.WithKeys("left", "["),
		key.WithHelp("←", "previous"),
	),
	Next: key.NewBinding(
		key.WithKeys("right", "]"),
		key.WithHelp("→", "next"),
	),
	Today: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "today"),
	),
	AddLine: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "add line"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	ColLeft: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←/h", "column left"),
	),
	ColRight: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→/l", "column right"),
	),
	MoveLeft: key.NewBinding(
		key.WithKeys("H", "shift+left"),
		key.WithHelp("H", "move left"),
	),
	MoveRight: key.NewBinding(
		key.WithKeys("L", "shift+right"),
		key.WithHelp("L", "move right"),
	),
	MoveUp: key.NewBinding(
		key.WithKeys("K", "shift+up"),
		key.WithHelp("K", "move up"),
	),
	MoveDown: key.NewBinding(
		key.WithKeys("J", "shift+down"),
		key.WithHelp("J", "move down"),
	),
	Delete: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "delete"),
	),
	Filter: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "project filter"),
	),
	EditStatus: key.NewBinding(
		key.WithKeys("S"),
		key.WithHelp("S", "edit status"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.StartStop, k.Switch, k.Tab, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.StartStop, k.Switch, k.Export, k.Refresh},
		{k.DayView, k.WeekView, k.MonthView, k.Prev, k.Next, k.Today, k.AddLine},
		{k.ColLeft, k.ColRight, k.MoveLeft, k.MoveRight, k.MoveUp, k.MoveDown, k.Delete, k.Filter},
		{k.Tab1, k.Tab2, k.Up, k.Down, k.Enter, k.Back, k.Quit},
	}
}
