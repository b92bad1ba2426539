package tui

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/crewclock/internal/board"
	"github.com/sadopc/crewclock/internal/export"
	"github.com/sadopc/crewclock/internal/grid"
	"github.com/sadopc/crewclock/internal/model"
	"github.com/sadopc/crewclock/internal/store"
	"github.com/sadopc/crewclock/internal/timer"
)

// Catalog lists the projects and tasks offered by the selectors and the
// board.
type Catalog interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
	ListTasks(ctx context.Context, projectID string) ([]model.Task, error)
}

// Settings persists small UI preferences.
type Settings interface {
	SetSetting(ctx context.Context, key, value string) error
}

type Options struct {
	Session  *timer.Session
	Board    *board.Board
	Catalog  Catalog
	Settings Settings // optional
	// ExportDir receives exported files. Defaults to the home directory.
	ExportDir string
	Now       func() time.Time
	Logger    *slog.Logger
}

// App is the root Bubble Tea model.
type App struct {
	session  *timer.Session
	catalog  Catalog
	settings Settings
	log      *slog.Logger
	exportTo string

	width  int
	height int

	activeView    viewState
	showHelp      bool
	exportPicking bool
	exportCursor  int

	timesheet timesheetModel
	board     boardModel

	projects []model.Project
	tasks    []model.Task

	// Project/task selector for start and switch.
	formActive bool
	form       *huh.Form
	choice     *contextChoice
	switching  bool
	chosen     *contextChoice // last selection, reused by the next start

	help      help.Model
	status    string
	statusErr bool
}

func NewApp(o Options) App {
	h := help.New()
	h.ShowAll = false

	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.ExportDir == "" {
		o.ExportDir, _ = os.UserHomeDir()
	}

	return App{
		session:    o.Session,
		catalog:    o.Catalog,
		settings:   o.Settings,
		log:        o.Logger,
		exportTo:   o.ExportDir,
		activeView: viewTimesheet,
		timesheet:  newTimesheetModel(o.Session, o.Now),
		board:      newBoardModel(o.Board),
		choice:     &contextChoice{},
		help:       h,
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(
		a.recover(),
		a.loadCatalog(),
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// recover resumes a timer left running by an earlier process, then loads
// the viewed period.
func (a App) recover() tea.Cmd {
	s := a.session
	return func() tea.Msg {
		ctx := context.Background()
		if err := s.Recover(ctx); err != nil {
			return statusMsg{text: errorText(err), isError: true}
		}
		return timesheetLoadedMsg{err: s.Refresh(ctx)}
	}
}

func (a App) loadCatalog() tea.Cmd {
	c := a.catalog
	return func() tea.Msg {
		ctx := context.Background()
		projects, err := c.ListProjects(ctx)
		if err != nil {
			return catalogMsg{err: err}
		}
		tasks, err := c.ListTasks(ctx, "")
		return catalogMsg{projects: projects, tasks: tasks, err: err}
	}
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.timesheet.setSize(a.width, contentHeight)
		a.board.setSize(a.width, contentHeight)
		return a, nil

	case tea.KeyMsg:
		if a.exportPicking {
			return a.updateExportPicker(msg)
		}
		if a.formActive && a.form != nil {
			return a.updateForm(msg)
		}
		// If a child view is capturing input (e.g. form), delegate first.
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}

		switch {
		case key.Matches(msg, keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, keys.Help):
			a.showHelp = !a.showHelp
			a.help.ShowAll = a.showHelp
			return a, nil
		case key.Matches(msg, keys.StartStop):
			return a.toggleTimer()
		case key.Matches(msg, keys.Switch):
			return a.showContextForm()
		case key.Matches(msg, keys.Export):
			if a.activeView == viewTimesheet {
				a.exportPicking = true
				a.exportCursor = 0
				return a, nil
			}
		case key.Matches(msg, keys.Tab1):
			a.activeView = viewTimesheet
			return a, nil
		case key.Matches(msg, keys.Tab2):
			a.activeView = viewBoard
			return a, nil
		case key.Matches(msg, keys.Tab):
			a.activeView = (a.activeView + 1) % viewState(len(viewNames))
			return a, nil
		}

	case tickMsg:
		return a, tickCmd()

	case statusMsg:
		a.setStatus(msg.text, msg.isError)
		return a, nil

	case timerDoneMsg:
		a.reportTimer(msg)
		a.timesheet.rebuild()
		return a, nil

	case timesheetLoadedMsg:
		if msg.err != nil {
			a.setStatus(errorText(msg.err), true)
		}

	case catalogMsg:
		if msg.err != nil {
			a.setStatus("Could not load projects and tasks: "+errorText(msg.err), true)
			return a, nil
		}
		a.projects = msg.projects
		a.tasks = msg.tasks
		a.timesheet.projects = msg.projects
		a.timesheet.tasks = msg.tasks
		a.board.projects = msg.projects
		a.board.board.Load(msg.tasks)
		a.board.clampRow()
		return a, nil

	case boardDoneMsg:
		if msg.err != nil {
			a.setStatus(errorText(msg.err), true)
		} else if msg.action == "delete" {
			a.setStatus("Task deleted", false)
		}
		var cmd tea.Cmd
		a.board, cmd = a.board.update(msg)
		return a, cmd

	case viewChangedMsg:
		return a, a.saveView(msg.view)

	case exportDoneMsg:
		a.setStatus("Exported to "+msg.path, false)
		a.exportPicking = false
		return a, nil
	}

	return a.updateActiveView(msg)
}

func (a *App) setStatus(text string, isError bool) {
	a.status = text
	a.statusErr = isError
	if isError {
		a.log.Warn("operation failed", "message", text)
	}
}

func (a *App) reportTimer(msg timerDoneMsg) {
	if msg.err != nil {
		a.setStatus(errorText(msg.err), true)
		return
	}
	if a.session.Running() {
		ctx, _ := a.session.Active()
		a.setStatus("Timing "+contextLabel(ctx), false)
		return
	}
	a.setStatus("Timer stopped", false)
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg.(type) {
	case timesheetLoadedMsg:
		a.timesheet, cmd = a.timesheet.update(msg)
		return a, cmd
	}
	switch a.activeView {
	case viewTimesheet:
		a.timesheet, cmd = a.timesheet.update(msg)
	case viewBoard:
		a.board, cmd = a.board.update(msg)
	}
	return a, cmd
}

func (a App) isFormActive() bool {
	switch a.activeView {
	case viewTimesheet:
		return a.timesheet.formActive
	case viewBoard:
		return a.board.formActive
	}
	return false
}

// ============================================================
// Timer actions
// ============================================================

// toggleTimer stops a running timer, or starts the last chosen context.
// With nothing chosen the session falls back to the first row, and when
// there is no row either the selector opens.
func (a App) toggleTimer() (tea.Model, tea.Cmd) {
	s := a.session
	if s.Running() {
		return a, func() tea.Msg {
			return timerDoneMsg{action: "stop", err: s.Pause(context.Background())}
		}
	}
	if a.chosen == nil && len(s.WorkingSet()) == 0 {
		return a.showContextForm()
	}
	var project, task model.Ref
	if a.chosen != nil {
		project, task = a.chosen.refs(a.projects, a.tasks)
	}
	return a, func() tea.Msg {
		return timerDoneMsg{action: "start", err: s.Start(context.Background(), project, task)}
	}
}

func (a App) showContextForm() (tea.Model, tea.Cmd) {
	if len(a.projects) == 0 {
		a.setStatus("No projects available yet.", true)
		return a, nil
	}
	*a.choice = contextChoice{}
	if ctx, ok := a.session.Active(); ok {
		a.choice.project = ctx.Project.ID
		a.choice.task = ctx.Task.ID
	}
	a.switching = a.session.Running()
	title := "Start timer"
	if a.switching {
		title = "Switch to"
	}
	a.form = newContextForm(title, a.projects, a.tasks, a.choice)
	a.formActive = true
	return a, a.form.Init()
}

func (a App) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		a.formActive = false
		a.form = nil
		return a, nil
	}

	form, cmd := a.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.form = f
	}

	switch a.form.State {
	case huh.StateCompleted:
		a.formActive = false
		a.form = nil
		chosen := *a.choice
		a.chosen = &chosen
		project, task := chosen.refs(a.projects, a.tasks)
		s := a.session
		if a.switching && s.Running() {
			return a, func() tea.Msg {
				return timerDoneMsg{action: "switch", err: s.SwitchContext(context.Background(), project, task)}
			}
		}
		return a, func() tea.Msg {
			return timerDoneMsg{action: "start", err: s.Start(context.Background(), project, task)}
		}
	case huh.StateAborted:
		a.formActive = false
		a.form = nil
		return a, nil
	}
	return a, cmd
}

func (a App) saveView(v model.View) tea.Cmd {
	if a.settings == nil {
		return nil
	}
	st := a.settings
	log := a.log
	return func() tea.Msg {
		if err := st.SetSetting(context.Background(), store.SettingLastView, string(v)); err != nil {
			log.Warn("save last view", "error", err)
		}
		return nil
	}
}

// ============================================================
// Rendering
// ============================================================

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	active, _ := a.session.Active()
	var content string
	switch a.activeView {
	case viewTimesheet:
		content = a.timesheet.view(active, a.session.Running())
	case viewBoard:
		content = a.board.view()
	}

	headerHeight := lipgloss.Height(header)
	footerHeight := lipgloss.Height(footer)
	contentHeight := a.height - headerHeight - footerHeight
	if contentHeight < 1 {
		contentHeight = 1
	}

	if a.formActive && a.form != nil {
		title := "Start timer"
		if a.switching {
			title = "Switch project/task"
		}
		content = activePanelStyle.Width(a.width - 4).Render(
			lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), "", a.form.View()),
		)
	}
	if a.exportPicking {
		content = a.renderExportPicker(contentHeight)
	}

	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	var tabs []string
	for i, name := range viewNames {
		if viewState(i) == a.activeView {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}
	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("crewclock")
	clock := a.renderTimer()
	left := lipgloss.JoinHorizontal(lipgloss.Bottom, title, "  ", clock)

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(tabRow) - 4
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, tabRow),
	)
}

// renderTimer is "● HH:MM:SS  Project / Task" while running and
// "■ HH:MM:SS" when stopped.
func (a App) renderTimer() string {
	s := a.session
	elapsed := formatElapsed(s.Elapsed())
	if s.Running() {
		active, _ := s.Active()
		return timerRunningStyle.Render("● "+elapsed) + "  " + normalItemStyle.Render(contextLabel(active))
	}
	if s.Saving() {
		return timerSavingStyle.Render("■ " + elapsed + " saving…")
	}
	return timerStoppedStyle.Render("■ " + elapsed)
}

func (a App) renderFooter() string {
	helpView := a.help.View(keys)

	status := ""
	if a.status != "" {
		style := mutedStyle
		if a.statusErr {
			style = errorStyle
		}
		status = style.Render(" " + a.status)
	}

	left := footerStyle.Render(helpView)
	gap := a.width - lipgloss.Width(left) - lipgloss.Width(status) - 2
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, status)
}

// ============================================================
// Export
// ============================================================

var exportFormats = []string{"CSV", "JSON"}

func (a App) renderExportPicker(_ int) string {
	title := titleStyle.Render("Export " + grid.Title(a.timesheet.grid.View, a.timesheet.grid.Anchor))
	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")
	for i, f := range exportFormats {
		cursor := "  "
		style := normalItemStyle
		if i == a.exportCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+f))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  enter: export  esc: cancel"))

	w := a.width - 4
	return activePanelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (a App) updateExportPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.exportCursor > 0 {
			a.exportCursor--
		}
	case key.Matches(msg, keys.Down):
		if a.exportCursor < len(exportFormats)-1 {
			a.exportCursor++
		}
	case key.Matches(msg, keys.Enter):
		a.exportPicking = false
		return a, a.doExport(a.exportCursor)
	case key.Matches(msg, keys.Back):
		a.exportPicking = false
	}
	return a, nil
}

func (a App) doExport(format int) tea.Cmd {
	g := a.timesheet.grid
	dir := a.exportTo
	return func() tea.Msg {
		if dir == "" {
			return statusMsg{text: "Export error: no export directory", isError: true}
		}
		base := fmt.Sprintf("crewclock-%s-%s", g.View, g.Anchor.Format(model.DateLayout))

		var path string
		var err error
		if format == 0 {
			path = filepath.Join(dir, base+".csv")
			err = export.ToCSV(g, path)
		} else {
			path = filepath.Join(dir, base+".json")
			err = export.ToJSON(g, path)
		}
		if err != nil {
			return statusMsg{text: fmt.Sprintf("%s error: %v", exportFormats[format], err), isError: true}
		}
		return exportDoneMsg{path: path}
	}
}
