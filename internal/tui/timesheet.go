package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/crewclock/internal/grid"
	"github.com/sadopc/crewclock/internal/model"
	"github.com/sadopc/crewclock/internal/timer"
)

const labelWidth = 28

type timesheetModel struct {
	session *timer.Session
	now     func() time.Time
	width   int
	height  int

	grid    grid.Grid
	cursor  int
	loading bool
	chart   barchart.Model

	projects []model.Project
	tasks    []model.Task

	formActive bool
	form       *huh.Form
	choice     *contextChoice
}

func newTimesheetModel(s *timer.Session, now func() time.Time) timesheetModel {
	t := timesheetModel{
		session: s,
		now:     now,
		chart:   barchart.New(60, 8),
		choice:  &contextChoice{},
	}
	t.rebuild()
	return t
}

func (t *timesheetModel) setSize(w, h int) {
	t.width = w
	t.height = h
	t.buildChart()
}

// rebuild projects the session's working set onto the viewed period.
func (t *timesheetModel) rebuild() {
	p := t.session.Period()
	t.grid = grid.Project(t.session.WorkingSet(), p.View, p.Date, t.now())
	if t.cursor >= len(t.grid.Rows) {
		t.cursor = max(0, len(t.grid.Rows)-1)
	}
	t.buildChart()
}

func (t timesheetModel) refresh() tea.Cmd {
	s := t.session
	return func() tea.Msg {
		return timesheetLoadedMsg{err: s.Refresh(context.Background())}
	}
}

func (t timesheetModel) selected() (grid.Row, bool) {
	if t.cursor < 0 || t.cursor >= len(t.grid.Rows) {
		return grid.Row{}, false
	}
	return t.grid.Rows[t.cursor], true
}

// entryFor returns the working-set row behind a grid row.
func (t timesheetModel) entryFor(r grid.Row) model.TimeEntry {
	return model.TimeEntry{ID: r.EntryID, Project: r.Project, Task: r.Task, Total: r.Total}
}

func (t timesheetModel) update(msg tea.Msg) (timesheetModel, tea.Cmd) {
	if t.formActive && t.form != nil {
		return t.updateForm(msg)
	}

	switch msg := msg.(type) {
	case timesheetLoadedMsg:
		t.loading = false
		t.rebuild()
		return t, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if t.cursor > 0 {
				t.cursor--
			}
		case key.Matches(msg, keys.Down):
			if t.cursor < len(t.grid.Rows)-1 {
				t.cursor++
			}
		case key.Matches(msg, keys.DayView):
			return t.setView(model.ViewDay)
		case key.Matches(msg, keys.WeekView):
			return t.setView(model.ViewWeek)
		case key.Matches(msg, keys.MonthView):
			return t.setView(model.ViewMonth)
		case key.Matches(msg, keys.Prev):
			return t.shift(-1)
		case key.Matches(msg, keys.Next):
			return t.shift(1)
		case key.Matches(msg, keys.Today):
			p := t.session.Period()
			return t.setPeriod(model.Period{View: p.View, Date: t.now()})
		case key.Matches(msg, keys.Refresh):
			t.loading = true
			return t, t.refresh()
		case key.Matches(msg, keys.Enter):
			row, ok := t.selected()
			if !ok {
				return t, nil
			}
			entry := t.entryFor(row)
			s := t.session
			return t, func() tea.Msg {
				err := s.StartFor(context.Background(), entry)
				return timerDoneMsg{action: "toggle", err: err}
			}
		case key.Matches(msg, keys.AddLine):
			return t.showAddLineForm()
		}
	}
	return t, nil
}

func (t timesheetModel) setView(v model.View) (timesheetModel, tea.Cmd) {
	p := t.session.Period()
	if p.View == v {
		return t, nil
	}
	return t.setPeriod(model.Period{View: v, Date: p.Date})
}

func (t timesheetModel) shift(steps int) (timesheetModel, tea.Cmd) {
	p := t.session.Period()
	return t.setPeriod(model.Period{View: p.View, Date: grid.Shift(p.View, p.Date, steps)})
}

// setPeriod redraws the empty columns at once and reloads in the background.
func (t timesheetModel) setPeriod(p model.Period) (timesheetModel, tea.Cmd) {
	t.session.SetPeriod(p)
	t.rebuild()
	t.loading = true
	return t, tea.Batch(t.refresh(), func() tea.Msg { return viewChangedMsg{view: p.View} })
}

func (t timesheetModel) showAddLineForm() (timesheetModel, tea.Cmd) {
	if len(t.projects) == 0 {
		return t, func() tea.Msg {
			return statusMsg{text: "No projects available to add.", isError: true}
		}
	}
	*t.choice = contextChoice{}
	t.form = newContextForm("Add a line", t.projects, t.tasks, t.choice)
	t.formActive = true
	return t, t.form.Init()
}

func (t timesheetModel) updateForm(msg tea.Msg) (timesheetModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		t.formActive = false
		t.form = nil
		return t, nil
	}

	form, cmd := t.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		t.form = f
	}

	switch t.form.State {
	case huh.StateCompleted:
		t.formActive = false
		t.form = nil
		project, task := t.choice.refs(t.projects, t.tasks)
		s := t.session
		return t, func() tea.Msg {
			return timesheetLoadedMsg{err: s.EnsureRow(context.Background(), project, task)}
		}
	case huh.StateAborted:
		t.formActive = false
		t.form = nil
		return t, nil
	}
	return t, cmd
}

func (t *timesheetModel) buildChart() {
	chartWidth := t.width - 8
	if chartWidth < 20 {
		chartWidth = 20
	}
	chartHeight := 6
	if t.height > 30 {
		chartHeight = 10
	}
	t.chart = barchart.New(chartWidth, chartHeight)

	bars := make([]barchart.BarData, len(t.grid.Columns))
	for i, c := range t.grid.Columns {
		style := lipgloss.NewStyle().Foreground(colorSecondary)
		if c.Today {
			style = lipgloss.NewStyle().Foreground(colorHighlight)
		}
		bars[i] = barchart.BarData{
			Label:  chartLabel(t.grid.View, c),
			Values: []barchart.BarValue{{Name: c.Label, Value: t.grid.ColumnTotals[i], Style: style}},
		}
	}
	t.chart.PushAll(bars)
	t.chart.Draw()
}

func chartLabel(v model.View, c grid.Column) string {
	if v == model.ViewMonth {
		return c.Date.Format("2")
	}
	return c.Date.Format("Mon")
}

func (t timesheetModel) view(active timer.Context, running bool) string {
	w := t.width - 4

	if t.formActive && t.form != nil {
		content := lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Add a line"), "", t.form.View())
		return panelStyle.Width(w).Render(content)
	}

	title := titleStyle.Render(grid.Title(t.grid.View, t.grid.Anchor))
	viewTag := mutedStyle.Render(fmt.Sprintf("  [%s]", t.grid.View))
	if t.loading {
		viewTag += mutedStyle.Render("  loading…")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Bottom, title, viewTag)

	table := t.renderGrid(active, running)
	chart := ""
	if len(t.grid.Columns) > 1 {
		chart = t.chart.View()
	}
	nav := mutedStyle.Render("  d/w/m: view  ←/→: period  t: today  enter: start/stop row  a: add line")

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, "", table, "", chart, nav),
	)
}

func (t timesheetModel) renderGrid(active timer.Context, running bool) string {
	cellWidth := 7
	if t.grid.View != model.ViewMonth {
		cellWidth = 11
	}

	var head strings.Builder
	head.WriteString(fmt.Sprintf("  %-*s", labelWidth, "Project / Task"))
	for _, c := range t.grid.Columns {
		label := c.Label
		if t.grid.View == model.ViewMonth {
			label = c.Date.Format("Mon 2")
		}
		cell := fmt.Sprintf("%*s", cellWidth, truncate(label, cellWidth))
		if c.Today {
			cell = todayColumnStyle.Render(cell)
		}
		head.WriteString(cell)
	}
	head.WriteString(fmt.Sprintf("%10s", "Total"))

	rows := []string{gridHeaderStyle.Render(head.String())}

	if len(t.grid.Rows) == 0 {
		rows = append(rows, mutedStyle.Render("  No time logged in this period. Press a to add a line."))
	}

	for i, r := range t.grid.Rows {
		cursor := "  "
		style := normalItemStyle
		if i == t.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		label := r.Label()
		if running && r.Project.ID == active.Project.ID && taskID(r.Task) == active.Task.ID {
			label = "● " + label
			if i != t.cursor {
				style = activeRowStyle
			}
		}
		if r.EntryID.IsPending() {
			style = pendingStyle
		}

		var line strings.Builder
		line.WriteString(cursor)
		line.WriteString(fmt.Sprintf("%-*s", labelWidth, truncate(label, labelWidth)))
		for _, h := range r.Cells {
			line.WriteString(fmt.Sprintf("%*s", cellWidth, grid.FormatCell(h)))
		}
		line.WriteString(fmt.Sprintf("%10s", grid.FormatHours(r.Total)))
		rows = append(rows, style.Render(line.String()))
	}

	var foot strings.Builder
	foot.WriteString(fmt.Sprintf("  %-*s", labelWidth, "Total"))
	for _, h := range t.grid.ColumnTotals {
		foot.WriteString(fmt.Sprintf("%*s", cellWidth, grid.FormatCell(h)))
	}
	foot.WriteString(fmt.Sprintf("%10s", grid.FormatHours(t.grid.GrandTotal)))
	rows = append(rows, totalRowStyle.Render(foot.String()))

	return strings.Join(rows, "\n")
}

func taskID(r *model.Ref) string {
	if r == nil {
		return ""
	}
	return r.ID
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
