// Package sandbox is an in-memory stand-in for the timesheet and task
// backend. It serves the same endpoints the client uses and is meant for
// demos and tests.
package sandbox

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sadopc/crewclock/internal/grid"
	"github.com/sadopc/crewclock/internal/model"
)

type Config struct {
	// Token, when set, is the only bearer token accepted.
	Token string
	// RateLimit caps requests per client per minute. Zero disables it.
	RateLimit int
	Now       func() time.Time
}

type rowKey struct {
	employee string
	project  string
	task     string
}

type row struct {
	id    string
	key   rowKey
	hours map[string]float64 // ISO date -> hours
}

func (r *row) total() float64 {
	var t float64
	for _, h := range r.hours {
		t += h
	}
	return t
}

// Server holds the sandbox state. All handlers are safe for concurrent use.
type Server struct {
	cfg  Config
	echo *echo.Echo

	mu        sync.Mutex
	rows      map[rowKey]*row
	rowOrder  []rowKey
	tasks     map[string]model.Task
	taskOrder []string
	projects  []model.Project
}

func New(cfg Config) *Server {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{
		cfg:   cfg,
		rows:  make(map[rowKey]*row),
		tasks: make(map[string]model.Task),
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s.echo = e
	s.register(e)
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) register(e *echo.Echo) {
	if s.cfg.RateLimit > 0 {
		e.Use(RateLimiter(s.cfg.RateLimit, time.Minute))
	}
	if s.cfg.Token != "" {
		e.Use(BearerAuth(s.cfg.Token))
	}

	e.GET("/timesheets/grouped", s.groupedTimesheets)
	e.POST("/timesheets", s.createTimesheet)
	e.PUT("/timesheets/:id", s.updateTimesheet)
	e.GET("/tasks", s.listTasks)
	e.PUT("/tasks/:id", s.updateTask)
	e.DELETE("/tasks/:id", s.deleteTask)
	e.GET("/projects", s.listProjects)
}

// ============================================================
// Seeding
// ============================================================

// AddProject registers a project and returns it.
func (s *Server) AddProject(name string) model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := model.Project{ID: uuid.NewString(), Name: name}
	s.projects = append(s.projects, p)
	return p
}

// AddTask registers a task. An empty id is generated.
func (s *Server) AddTask(t model.Task) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.StatusTodo
	}
	if t.Priority == "" {
		t.Priority = model.PriorityNormal
	}
	if p, ok := s.projectLocked(t.Project.ID); ok {
		t.Project.Name = p.Name
	}
	if _, exists := s.tasks[t.ID]; !exists {
		s.taskOrder = append(s.taskOrder, t.ID)
	}
	s.tasks[t.ID] = t
	return t
}

// SeedDemo fills the sandbox with two projects and tasks in every column.
func (s *Server) SeedDemo(employeeID string) {
	apollo := s.AddProject("Apollo")
	gemini := s.AddProject("Gemini")
	assignee := model.Ref{ID: employeeID, Name: "You"}
	due := s.cfg.Now().AddDate(0, 0, 7)

	seed := []model.Task{
		{Title: "Design login screen", Project: model.Ref{ID: apollo.ID}, Status: model.StatusTodo, Priority: model.PriorityHigh},
		{Title: "Write API docs", Project: model.Ref{ID: apollo.ID}, Status: model.StatusInProgress},
		{Title: "Set up CI", Project: model.Ref{ID: apollo.ID}, Status: model.StatusDone, Priority: model.PriorityLow},
		{Title: "Vendor contract", Project: model.Ref{ID: gemini.ID}, Status: model.StatusBlocked, Description: "Waiting for legal review."},
		{Title: "Migrate database", Project: model.Ref{ID: gemini.ID}, Status: model.StatusTodo, DueDate: &due},
	}
	for _, t := range seed {
		t.Assignee = assignee
		s.AddTask(t)
	}
}

// ============================================================
// Timesheets
// ============================================================

func (s *Server) groupedTimesheets(c echo.Context) error {
	view, err := model.ParseView(c.QueryParam("view"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	employee := c.QueryParam("employee_id")
	date := s.cfg.Now()
	if raw := c.QueryParam("date"); raw != "" {
		if date, err = parseDate(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date")
		}
	}

	cols := grid.Columns(view, date, time.Time{})

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TimeEntry, 0)
	for _, k := range s.rowOrder {
		r := s.rows[k]
		if employee != "" && k.employee != employee {
			continue
		}
		entries := map[string]float64{}
		visible := false
		for _, col := range cols {
			h, ok := r.hours[col.Date.Format(model.DateLayout)]
			if !ok {
				continue
			}
			visible = true
			entries[col.Key] += h
		}
		if !visible {
			continue
		}
		out = append(out, s.entryLocked(r, entries))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) createTimesheet(c echo.Context) error {
	var req model.TimesheetWrite
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	if req.EmployeeID == "" || req.ProjectID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "employee_id and project_id are required")
	}
	if _, err := parseDate(req.Date); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date")
	}
	if req.Duration < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "duration must not be negative")
	}

	k := rowKey{employee: req.EmployeeID, project: req.ProjectID}
	if req.TaskID != nil {
		k.task = *req.TaskID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[k]
	status := http.StatusOK
	if !ok {
		r = &row{id: uuid.NewString(), key: k, hours: map[string]float64{}}
		s.rows[k] = r
		s.rowOrder = append(s.rowOrder, k)
		status = http.StatusCreated
	}
	r.hours[req.Date] += req.Duration
	return c.JSON(status, s.entryLocked(r, isoEntries(r)))
}

// updateTimesheet adds the posted duration to the row's bucket for date.
func (s *Server) updateTimesheet(c echo.Context) error {
	id := c.Param("id")
	var req model.TimesheetWrite
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	if _, err := parseDate(req.Date); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.id == id {
			r.hours[req.Date] += req.Duration
			return c.JSON(http.StatusOK, s.entryLocked(r, isoEntries(r)))
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "timesheet not found")
}

func (s *Server) entryLocked(r *row, entries map[string]float64) model.TimeEntry {
	e := model.TimeEntry{
		ID:         model.ConfirmedID(r.id),
		EmployeeID: r.key.employee,
		Project:    model.Ref{ID: r.key.project},
		Entries:    entries,
		Total:      r.total(),
	}
	if p, ok := s.projectLocked(r.key.project); ok {
		e.Project.Name = p.Name
	}
	if r.key.task != "" {
		ref := model.Ref{ID: r.key.task}
		if t, ok := s.tasks[r.key.task]; ok {
			ref.Name = t.Title
		}
		e.Task = &ref
	}
	return e
}

func isoEntries(r *row) map[string]float64 {
	out := make(map[string]float64, len(r.hours))
	for d, h := range r.hours {
		out[d] = h
	}
	return out
}

// ============================================================
// Tasks and projects
// ============================================================

func (s *Server) listTasks(c echo.Context) error {
	project := c.QueryParam("project_id")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Task, 0, len(s.taskOrder))
	for _, id := range s.taskOrder {
		t, ok := s.tasks[id]
		if !ok {
			continue
		}
		if project != "" && t.Project.ID != project {
			continue
		}
		out = append(out, t)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) updateTask(c echo.Context) error {
	id := c.Param("id")
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}
	status, err := model.ParseStatus(req.Status)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	t.Status = status
	s.tasks[id] = t
	return c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTask(c echo.Context) error {
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	delete(s.tasks, id)
	kept := s.taskOrder[:0]
	for _, tid := range s.taskOrder {
		if tid != id {
			kept = append(kept, tid)
		}
	}
	s.taskOrder = kept
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listProjects(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.Project(nil), s.projects...)
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return c.JSON(http.StatusOK, out)
}

func (s *Server) projectLocked(id string) (model.Project, bool) {
	for _, p := range s.projects {
		if p.ID == id {
			return p, true
		}
	}
	return model.Project{}, false
}

func parseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(model.DateLayout, raw, time.Local)
}
