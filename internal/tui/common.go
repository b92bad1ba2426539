package tui

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/sadopc/crewclock/internal/api"
	"github.com/sadopc/crewclock/internal/board"
	"github.com/sadopc/crewclock/internal/model"
	"github.com/sadopc/crewclock/internal/timer"
)

// viewState represents the currently active view.
type viewState int

const (
	viewTimesheet viewState = iota
	viewBoard
)

var viewNames = []string{"Timesheet", "Board"}

// --- Messages ---

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

// timesheetLoadedMsg follows any operation that changed the working set.
type timesheetLoadedMsg struct {
	err error
}

// timerDoneMsg reports the outcome of start, stop or switch.
type timerDoneMsg struct {
	action string
	err    error
}

type catalogMsg struct {
	projects []model.Project
	tasks    []model.Task
	err      error
}

// boardDoneMsg reports a board write; id is the task to keep focused.
type boardDoneMsg struct {
	action string
	id     string
	err    error
}

// viewChangedMsg records a new timesheet granularity.
type viewChangedMsg struct {
	view model.View
}

type exportDoneMsg struct {
	path string
}

// --- Helpers ---

// formatElapsed renders whole seconds as HH:MM:SS.
func formatElapsed(secs int) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// errorText turns an operation error into a status bar line.
func errorText(err error) string {
	var pErr *model.PersistenceError
	switch {
	case api.IsAuth(err):
		return "Not authorized. Run `crewclock login --token <token>` and restart."
	case errors.Is(err, timer.ErrNoProjectSelected):
		return "Pick a project first (c)."
	case errors.Is(err, timer.ErrInvalidStartTime):
		return "Timer had no valid start time; nothing was saved."
	case errors.Is(err, board.ErrForbidden):
		return "Only employees can change a task's status."
	case errors.As(err, &pErr):
		return fmt.Sprintf("Could not %s: %v", pErr.Op, pErr.Err)
	}
	return err.Error()
}

func refName(r model.Ref) string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// contextLabel is "Project / Task" or just the project.
func contextLabel(c timer.Context) string {
	if c.Task.ID == "" {
		return refName(c.Project)
	}
	return refName(c.Project) + " / " + refName(c.Task)
}

// --- Project/task selection ---

// contextChoice holds the values bound to a project/task form. It sits
// behind a pointer so the bindings survive model copies.
type contextChoice struct {
	project string
	task    string
}

func (c *contextChoice) refs(projects []model.Project, tasks []model.Task) (model.Ref, model.Ref) {
	project := model.Ref{ID: c.project}
	for _, p := range projects {
		if p.ID == c.project {
			project.Name = p.Name
		}
	}
	var task model.Ref
	if c.task != "" {
		task.ID = c.task
		for _, t := range tasks {
			if t.ID == c.task {
				task.Name = t.Title
			}
		}
	}
	return project, task
}

// newContextForm asks for a project and an optional task of that project.
func newContextForm(title string, projects []model.Project, tasks []model.Task, choice *contextChoice) *huh.Form {
	projectOpts := make([]huh.Option[string], len(projects))
	for i, p := range projects {
		projectOpts[i] = huh.NewOption(p.Name, p.ID)
	}
	if choice.project == "" && len(projects) > 0 {
		choice.project = projects[0].ID
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(title).
				Description("Project").
				Options(projectOpts...).
				Value(&choice.project),
			huh.NewSelect[string]().
				Title("Task").
				OptionsFunc(func() []huh.Option[string] {
					return taskOptions(tasks, choice.project)
				}, &choice.project).
				Value(&choice.task),
		),
	).WithShowHelp(true).WithShowErrors(true)
}

func taskOptions(tasks []model.Task, projectID string) []huh.Option[string] {
	opts := []huh.Option[string]{huh.NewOption("(no task)", "")}
	for _, t := range tasks {
		if t.Project.ID == projectID {
			opts = append(opts, huh.NewOption(t.Title, t.ID))
		}
	}
	return opts
}
