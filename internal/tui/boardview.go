package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/crewclock/internal/board"
	"github.com/sadopc/crewclock/internal/model"
)

type boardFormKind int

const (
	boardFormNone boardFormKind = iota
	boardFormStatus
	boardFormDelete
)

type boardModel struct {
	board  *board.Board
	width  int
	height int

	col      int // index into model.Statuses
	row      int
	filter   string // project id, "" for all
	projects []model.Project

	detail bool // details modal open

	formActive bool
	formKind   boardFormKind
	form       *huh.Form
	formStatus *string
	formOK     *bool
	formTaskID string
}

func newBoardModel(b *board.Board) boardModel {
	status, ok := "", false
	return boardModel{
		board:      b,
		formStatus: &status,
		formOK:     &ok,
	}
}

func (m *boardModel) setSize(w, h int) {
	m.width = w
	m.height = h
}

// visible returns column status filtered by the project filter.
func (m boardModel) visible(status model.Status) []model.Task {
	tasks := m.board.Column(status)
	if m.filter == "" {
		return tasks
	}
	out := tasks[:0:0]
	for _, t := range tasks {
		if t.Project.ID == m.filter {
			out = append(out, t)
		}
	}
	return out
}

func (m boardModel) focused() (model.Task, bool) {
	tasks := m.visible(model.Statuses[m.col])
	if m.row < 0 || m.row >= len(tasks) {
		return model.Task{}, false
	}
	return tasks[m.row], true
}

func (m *boardModel) clampRow() {
	n := len(m.visible(model.Statuses[m.col]))
	if m.row >= n {
		m.row = n - 1
	}
	if m.row < 0 {
		m.row = 0
	}
}

// follow moves the focus to wherever task id now sits.
func (m *boardModel) follow(id string) {
	status, _, ok := m.board.Locate(id)
	if !ok {
		m.clampRow()
		return
	}
	for i, s := range model.Statuses {
		if s == status {
			m.col = i
		}
	}
	for i, t := range m.visible(status) {
		if t.ID == id {
			m.row = i
		}
	}
}

func (m boardModel) update(msg tea.Msg) (boardModel, tea.Cmd) {
	if m.formActive && m.form != nil {
		return m.updateForm(msg)
	}

	switch msg := msg.(type) {
	case boardDoneMsg:
		m.follow(msg.id)
		return m, nil

	case tea.KeyMsg:
		if m.detail {
			return m.updateDetail(msg)
		}
		switch {
		case key.Matches(msg, keys.ColLeft):
			if m.col > 0 {
				m.col--
				m.clampRow()
			}
		case key.Matches(msg, keys.ColRight):
			if m.col < len(model.Statuses)-1 {
				m.col++
				m.clampRow()
			}
		case key.Matches(msg, keys.Up):
			if m.row > 0 {
				m.row--
			}
		case key.Matches(msg, keys.Down):
			if m.row < len(m.visible(model.Statuses[m.col]))-1 {
				m.row++
			}
		case key.Matches(msg, keys.MoveLeft):
			return m.moveAcross(-1)
		case key.Matches(msg, keys.MoveRight):
			return m.moveAcross(1)
		case key.Matches(msg, keys.MoveUp):
			return m.moveWithin(-1)
		case key.Matches(msg, keys.MoveDown):
			return m.moveWithin(1)
		case key.Matches(msg, keys.Enter):
			if _, ok := m.focused(); ok {
				m.detail = true
			}
		case key.Matches(msg, keys.Delete):
			return m.showDeleteForm()
		case key.Matches(msg, keys.Filter):
			m.cycleFilter()
		}
	}
	return m, nil
}

func (m boardModel) updateDetail(msg tea.KeyMsg) (boardModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back), key.Matches(msg, keys.Enter):
		m.detail = false
	case key.Matches(msg, keys.EditStatus):
		return m.showStatusForm()
	case key.Matches(msg, keys.Delete):
		return m.showDeleteForm()
	}
	return m, nil
}

func (m *boardModel) cycleFilter() {
	idx := -1
	for i, p := range m.projects {
		if p.ID == m.filter {
			idx = i
		}
	}
	if next := idx + 1; next < len(m.projects) {
		m.filter = m.projects[next].ID
	} else {
		m.filter = ""
	}
	m.row = 0
}

func (m boardModel) filterName() string {
	if m.filter == "" {
		return "All projects"
	}
	for _, p := range m.projects {
		if p.ID == m.filter {
			return p.Name
		}
	}
	return m.filter
}

// moveAcross drags the focused task to the end of the neighbouring column.
func (m boardModel) moveAcross(dir int) (boardModel, tea.Cmd) {
	task, ok := m.focused()
	target := m.col + dir
	if !ok || target < 0 || target >= len(model.Statuses) {
		return m, nil
	}
	from, to := model.Statuses[m.col], model.Statuses[target]
	index := len(m.board.Column(to))
	b := m.board
	cmd := func() tea.Msg {
		err := b.Move(context.Background(), task.ID, from, to, index)
		return boardDoneMsg{action: "move", id: task.ID, err: err}
	}
	m.col = target
	m.row = len(m.visible(to))
	return m, cmd
}

// moveWithin reorders the focused task past its visible neighbour.
func (m boardModel) moveWithin(dir int) (boardModel, tea.Cmd) {
	task, ok := m.focused()
	if !ok {
		return m, nil
	}
	visible := m.visible(model.Statuses[m.col])
	n := m.row + dir
	if n < 0 || n >= len(visible) {
		return m, nil
	}
	status := model.Statuses[m.col]
	_, index, found := m.board.Locate(visible[n].ID)
	if !found {
		return m, nil
	}
	// Same-column moves never reach the backend.
	if err := m.board.Move(context.Background(), task.ID, status, status, index); err != nil {
		return m, func() tea.Msg { return boardDoneMsg{action: "reorder", id: task.ID, err: err} }
	}
	m.follow(task.ID)
	return m, nil
}

func (m boardModel) showStatusForm() (boardModel, tea.Cmd) {
	task, ok := m.focused()
	if !ok {
		return m, nil
	}
	if !m.board.CanEditStatus() {
		return m, func() tea.Msg { return boardDoneMsg{action: "status", err: board.ErrForbidden} }
	}
	*m.formStatus = string(task.Status)
	opts := make([]huh.Option[string], len(model.Statuses))
	for i, s := range model.Statuses {
		opts[i] = huh.NewOption(s.Label(), string(s))
	}
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().Title("Status").Options(opts...).Value(m.formStatus),
		),
	).WithShowHelp(true).WithShowErrors(true)
	m.formKind = boardFormStatus
	m.formTaskID = task.ID
	m.formActive = true
	return m, m.form.Init()
}

func (m boardModel) showDeleteForm() (boardModel, tea.Cmd) {
	task, ok := m.focused()
	if !ok {
		return m, nil
	}
	*m.formOK = false
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete %q?", task.Title)).
				Description("This cannot be undone.").
				Affirmative("Delete").
				Negative("Cancel").
				Value(m.formOK),
		),
	).WithShowHelp(true)
	m.formKind = boardFormDelete
	m.formTaskID = task.ID
	m.formActive = true
	return m, m.form.Init()
}

func (m boardModel) updateForm(msg tea.Msg) (boardModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		m.formActive = false
		m.form = nil
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.formActive = false
		m.form = nil
		return m, m.submitForm()
	case huh.StateAborted:
		m.formActive = false
		m.form = nil
		return m, nil
	}
	return m, cmd
}

func (m *boardModel) submitForm() tea.Cmd {
	b := m.board
	id := m.formTaskID
	switch m.formKind {
	case boardFormStatus:
		status := model.Status(*m.formStatus)
		return func() tea.Msg {
			return boardDoneMsg{action: "status", id: id, err: b.SetStatus(context.Background(), id, status)}
		}
	case boardFormDelete:
		confirmed := *m.formOK
		m.detail = false
		return func() tea.Msg {
			err := b.Delete(context.Background(), id, func(model.Task) bool { return confirmed })
			if errors.Is(err, board.ErrDeleteCancelled) {
				return statusMsg{text: "Delete cancelled"}
			}
			return boardDoneMsg{action: "delete", id: id, err: err}
		}
	}
	return nil
}

func (m boardModel) view() string {
	w := m.width - 4

	if m.formActive && m.form != nil {
		title := "Edit status"
		if m.formKind == boardFormDelete {
			title = "Delete task"
		}
		content := lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), "", m.form.View())
		return panelStyle.Width(w).Render(content)
	}

	if m.detail {
		if task, ok := m.focused(); ok {
			return m.renderDetail(task, w)
		}
	}

	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Board"),
		mutedStyle.Render(fmt.Sprintf("  %s  (%d tasks)", m.filterName(), m.board.Len())),
	)

	colWidth := (w - 2) / len(model.Statuses)
	if colWidth < 16 {
		colWidth = 16
	}
	cols := make([]string, len(model.Statuses))
	for i, s := range model.Statuses {
		cols[i] = m.renderColumn(i, s, colWidth-2)
	}

	nav := mutedStyle.Render("  h/l: column  j/k: task  H/L: move across  J/K: reorder  enter: details  x: delete  p: filter")
	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, "", lipgloss.JoinHorizontal(lipgloss.Top, cols...), "", nav),
	)
}

func (m boardModel) renderColumn(i int, s model.Status, width int) string {
	tasks := m.visible(s)
	lines := []string{statusStyle(s).Render(fmt.Sprintf("%s (%d)", s.Label(), len(tasks))), ""}
	if len(tasks) == 0 {
		lines = append(lines, mutedStyle.Render("empty"))
	}
	for j, t := range tasks {
		cursor := "  "
		style := priorityStyle(t.Priority)
		if i == m.col && j == m.row {
			cursor = "> "
			style = selectedItemStyle
		}
		lines = append(lines, style.Render(cursor+truncate(t.Title, width-2)))
	}

	style := columnStyle
	if i == m.col {
		style = focusedColumnStyle
	}
	return style.Width(width).Render(strings.Join(lines, "\n"))
}

func (m boardModel) renderDetail(t model.Task, w int) string {
	due := "none"
	if t.DueDate != nil {
		due = t.DueDate.Format("Mon Jan 2 2006")
	}
	desc := t.Description
	if desc == "" {
		desc = mutedStyle.Render("No description.")
	}
	status := statusStyle(t.Status).Render(t.Status.Label())
	hint := "  S: edit status  x: delete  esc: close"
	if !m.board.CanEditStatus() {
		status += mutedStyle.Render("  (read-only)")
		hint = "  x: delete  esc: close"
	}

	rows := []string{
		titleStyle.Render(t.Title),
		"",
		desc,
		"",
		fmt.Sprintf("%-10s %s", "Status", status),
		fmt.Sprintf("%-10s %s", "Priority", priorityStyle(t.Priority).Render(string(t.Priority))),
		fmt.Sprintf("%-10s %s", "Due", due),
		fmt.Sprintf("%-10s %s", "Project", refName(t.Project)),
		fmt.Sprintf("%-10s %s", "Assignee", refName(t.Assignee)),
		"",
		mutedStyle.Render(hint),
	}
	return modalStyle.Width(w).Render(strings.Join(rows, "\n"))
}
