package timer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sadopc/crewclock/internal/grid"
	"github.com/sadopc/crewclock/internal/model"
)

// Backend is the subset of the timesheet API the session writes to.
type Backend interface {
	GroupedTimesheets(ctx context.Context, view model.View, employeeID string, date time.Time) ([]model.TimeEntry, error)
	CreateTimesheet(ctx context.Context, w model.TimesheetWrite) (model.TimeEntry, error)
	UpdateTimesheet(ctx context.Context, id string, w model.TimesheetWrite) (model.TimeEntry, error)
}

// ContextStore persists the running context so it survives a restart.
type ContextStore interface {
	SaveActiveTimer(ctx context.Context, t model.ActiveTimer) error
	LoadActiveTimer(ctx context.Context) (model.ActiveTimer, bool, error)
	ClearActiveTimer(ctx context.Context) error
}

// Context is a snapshot of the active timer context.
type Context struct {
	Project    model.Ref
	Task       model.Ref
	Start      time.Time
	EntryID    model.EntryID
	Generation uint64
}

// Key returns the (project, task) identity of the context.
func (c Context) Key() model.EntryKey {
	return model.EntryKey{ProjectID: c.Project.ID, TaskID: c.Task.ID}
}

type activeContext struct {
	project   model.Ref
	task      model.Ref
	start     time.Time
	backing   model.EntryID
	gen       uint64
	stoppedAt time.Time
	saving    bool
}

func (a *activeContext) key() model.EntryKey {
	return model.EntryKey{ProjectID: a.project.ID, TaskID: a.task.ID}
}

type Option func(*Session)

func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

func WithStore(cs ContextStore) Option {
	return func(s *Session) { s.store = cs }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithPeriod sets the initially viewed period.
func WithPeriod(p model.Period) Option {
	return func(s *Session) { s.period = p }
}

// WithTickInterval overrides the one-second display tick.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) { s.interval = d }
}

// WithTickHook registers fn to be called after every tick with the new
// elapsed value. fn runs on the ticker goroutine.
func WithTickHook(fn func(elapsed int)) Option {
	return func(s *Session) { s.onTick = fn }
}

// Session tracks a single running-or-stopped work timer and keeps the
// employee's working set of timesheet rows in step with the backend.
//
// The mutex guards local state only and is never held across a backend call.
// Completions of saves check the context generation before touching state,
// so a superseded save can never clobber a newer context.
type Session struct {
	backend   Backend
	principal model.Principal
	clock     Clock
	store     ContextStore
	log       *slog.Logger
	interval  time.Duration
	onTick    func(int)

	mu         sync.Mutex
	running    bool
	elapsed    int
	active     *activeContext
	gen        uint64
	working    []model.TimeEntry
	period     model.Period
	refreshSeq uint64
	ensuring   map[model.EntryKey]struct{}
	stopTick   func()
}

// NewSession builds a stopped session for principal.
func NewSession(backend Backend, principal model.Principal, opts ...Option) *Session {
	s := &Session{
		backend:   backend,
		principal: principal,
		clock:     systemClock{},
		log:       slog.Default(),
		interval:  time.Second,
		ensuring:  make(map[model.EntryKey]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.period.View == "" {
		s.period.View = model.ViewWeek
	}
	if s.period.Date.IsZero() {
		s.period.Date = s.clock.Now()
	}
	return s
}

// ============================================================
// Accessors
// ============================================================

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Elapsed returns the seconds shown on the header clock.
func (s *Session) Elapsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// Saving reports whether a pause save is in flight.
func (s *Session) Saving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && s.active.saving
}

// Active returns the current context, if any. A context can exist while the
// timer is stopped when its save failed and is waiting for a retry.
func (s *Session) Active() (Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Context{}, false
	}
	return s.active.snapshot(), true
}

func (a *activeContext) snapshot() Context {
	return Context{Project: a.project, Task: a.task, Start: a.start, EntryID: a.backing, Generation: a.gen}
}

// WorkingSet returns a copy of the current timesheet rows.
func (s *Session) WorkingSet() []model.TimeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TimeEntry, len(s.working))
	for i, e := range s.working {
		out[i] = e.Clone()
	}
	return out
}

func (s *Session) Period() model.Period {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period
}

// SetPeriod changes the viewed period. Call Refresh to load it.
func (s *Session) SetPeriod(p model.Period) {
	s.mu.Lock()
	s.period = p
	s.mu.Unlock()
}

func (s *Session) Principal() model.Principal {
	return s.principal
}

// Close stops the ticker.
func (s *Session) Close() {
	s.mu.Lock()
	s.stopTickerLocked()
	s.mu.Unlock()
}

// ============================================================
// Ticker
// ============================================================

func (s *Session) startTickerLocked() {
	if s.stopTick != nil {
		return
	}
	t := s.clock.NewTicker(s.interval)
	done := make(chan struct{})
	s.stopTick = func() {
		close(done)
		t.Stop()
	}
	go s.tickLoop(t, done)
}

func (s *Session) stopTickerLocked() {
	if s.stopTick == nil {
		return
	}
	s.stopTick()
	s.stopTick = nil
}

func (s *Session) tickLoop(t Ticker, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-t.C():
			s.mu.Lock()
			// A tick that raced with stopTickerLocked belongs to a stopped ticker.
			select {
			case <-done:
				s.mu.Unlock()
				return
			default:
			}
			if !s.running {
				s.mu.Unlock()
				continue
			}
			s.elapsed++
			elapsed := s.elapsed
			hook := s.onTick
			s.mu.Unlock()
			if hook != nil {
				hook(elapsed)
			}
		}
	}
}

// ============================================================
// Operations
// ============================================================

// Start begins timing project/task. With an empty project the first row of
// the working set is used. Elapsed resumes from the value preserved by an
// earlier context switch or failed save.
func (s *Session) Start(ctx context.Context, project, task model.Ref) error {
	return s.start(ctx, project, task, model.EntryID{}, false, true)
}

// StartFor toggles the timer for a grid row. The active row is paused; a
// different running row is flushed first; otherwise a fresh timer starts on
// the row with elapsed reset to zero.
//
// A failed flush of the previous row does not stop the new row from being
// timed. The unsaved duration is dropped rather than written a second time
// and the flush error is returned after the new context is running.
func (s *Session) StartFor(ctx context.Context, entry model.TimeEntry) error {
	key := entry.Key()

	s.mu.Lock()
	running := s.running
	sameRow := s.active != nil && s.active.key() == key
	s.mu.Unlock()

	if running && sameRow {
		return s.Pause(ctx)
	}

	var pauseErr error
	if running {
		pauseErr = s.Pause(ctx)
	}

	var task model.Ref
	if entry.Task != nil {
		task = *entry.Task
	}
	if err := s.start(ctx, entry.Project, task, entry.ID, true, pauseErr == nil); err != nil {
		return err
	}
	return pauseErr
}

// start flushes a stopped but unsaved context before timing project/task.
// With retry unset that context is dropped without another write.
func (s *Session) start(ctx context.Context, project, task model.Ref, backing model.EntryID, fresh, retry bool) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	if project.ID == "" && len(s.working) > 0 {
		first := s.working[0]
		project = first.Project
		task = model.Ref{}
		if first.Task != nil {
			task = *first.Task
		}
	}
	if project.ID == "" {
		s.mu.Unlock()
		return ErrNoProjectSelected
	}
	stale := s.active
	s.mu.Unlock()

	if stale != nil && !stale.saving {
		if !retry {
			s.dropStale(stale)
		} else if err := s.retryStale(ctx, stale); err != nil {
			s.log.Warn("discarding unsaved timer context", "project", stale.project.ID, "error", err)
		}
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	key := model.EntryKey{ProjectID: project.ID, TaskID: task.ID}
	if backing.IsZero() {
		if i := model.FindEntry(s.working, key); i >= 0 {
			backing = s.working[i].ID
		}
	}
	s.gen++
	ac := &activeContext{project: project, task: task, start: s.clock.Now(), backing: backing, gen: s.gen}
	s.active = ac
	s.running = true
	if fresh {
		s.elapsed = 0
	}
	s.startTickerLocked()
	snap := ac.persisted()
	s.mu.Unlock()

	s.saveContext(ctx, snap)
	return nil
}

// retryStale re-attempts the save of a stopped but unsaved context.
func (s *Session) retryStale(ctx context.Context, stale *activeContext) error {
	s.mu.Lock()
	if s.active != stale || stale.saving {
		s.mu.Unlock()
		return nil
	}
	if stale.start.IsZero() {
		s.active = nil
		s.mu.Unlock()
		return ErrInvalidStartTime
	}
	end := stale.stoppedAt
	if end.IsZero() {
		end = s.clock.Now()
	}
	w := s.writeFor(stale, end)
	stale.saving = true
	s.mu.Unlock()

	err := s.persist(ctx, stale.backing, w)

	s.mu.Lock()
	stale.saving = false
	if s.active == stale {
		s.active = nil
	}
	s.mu.Unlock()
	if err != nil {
		return &model.PersistenceError{Op: "save timesheet", Err: err}
	}
	return nil
}

// dropStale forgets a stopped but unsaved context without writing it.
func (s *Session) dropStale(stale *activeContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != stale || stale.saving {
		return
	}
	s.active = nil
	s.log.Warn("discarding unsaved timer context", "project", stale.project.ID)
}

// Pause stops the timer and flushes the active context's duration. On
// failure the context is kept so a second Pause retries with the original
// stop instant. Calls made while a save is in flight are ignored.
func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	ac := s.active
	if ac == nil {
		s.mu.Unlock()
		return ErrNoActiveTimer
	}
	if ac.saving {
		s.mu.Unlock()
		return nil
	}
	if ac.start.IsZero() {
		s.active = nil
		s.running = false
		s.elapsed = 0
		s.stopTickerLocked()
		s.mu.Unlock()
		s.log.Warn("skipping timesheet save: context has no valid start time",
			"project", ac.project.ID, "task", ac.task.ID)
		s.clearContext(ctx)
		return ErrInvalidStartTime
	}
	if ac.stoppedAt.IsZero() {
		ac.stoppedAt = s.clock.Now()
	}
	ac.saving = true
	s.running = false
	s.stopTickerLocked()
	w := s.writeFor(ac, ac.stoppedAt)
	id := ac.backing
	gen := ac.gen
	s.mu.Unlock()

	err := s.persist(ctx, id, w)

	s.mu.Lock()
	ac.saving = false
	current := s.active == ac && s.gen == gen
	if err == nil && current {
		s.active = nil
		s.elapsed = 0
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("timesheet save failed", "project", w.ProjectID, "duration", w.Duration, "error", err)
		return &model.PersistenceError{Op: "save timesheet", Err: err}
	}
	if current {
		s.clearContext(ctx)
	}
	return s.Refresh(ctx)
}

// SwitchContext moves the running timer to another project/task. The old
// context's time is flushed, the ticker keeps running and the displayed
// elapsed value is preserved. A failed flush is returned as a
// *model.PersistenceError but the switch has already happened.
func (s *Session) SwitchContext(ctx context.Context, project, task model.Ref) error {
	if project.ID == "" {
		return ErrNoProjectSelected
	}
	key := model.EntryKey{ProjectID: project.ID, TaskID: task.ID}

	s.mu.Lock()
	old := s.active
	if !s.running || old == nil {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if old.key() == key {
		s.mu.Unlock()
		return nil
	}
	now := s.clock.Now()
	flushable := !old.start.IsZero()
	var w model.TimesheetWrite
	if flushable {
		w = s.writeFor(old, now)
	}
	oldID := old.backing

	var backing model.EntryID
	if i := model.FindEntry(s.working, key); i >= 0 {
		backing = s.working[i].ID
	} else {
		placeholder := model.TimeEntry{
			ID:         model.PendingID(uuid.NewString()),
			EmployeeID: s.principal.EmployeeID,
			Project:    project,
			Entries:    map[string]float64{},
		}
		if task.ID != "" {
			t := task
			placeholder.Task = &t
		}
		s.working = append(s.working, placeholder)
		backing = placeholder.ID
	}
	s.gen++
	ac := &activeContext{project: project, task: task, start: now, backing: backing, gen: s.gen}
	s.active = ac
	snap := ac.persisted()
	s.mu.Unlock()

	s.saveContext(ctx, snap)

	if !flushable {
		s.log.Warn("skipping flush of previous context: no valid start time", "project", old.project.ID)
		return nil
	}
	if err := s.persist(ctx, oldID, w); err != nil {
		s.log.Warn("flush of previous context failed", "project", w.ProjectID, "duration", w.Duration, "error", err)
		return &model.PersistenceError{Op: "flush previous context", Err: err}
	}
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn("refresh after switch failed", "error", err)
	}
	return nil
}

// EnsureRow guarantees the working set has a row for project/task, creating
// a zero-duration one for the viewed date when missing. Concurrent calls for
// the same key issue a single create.
func (s *Session) EnsureRow(ctx context.Context, project, task model.Ref) error {
	if project.ID == "" {
		return ErrNoProjectSelected
	}
	key := model.EntryKey{ProjectID: project.ID, TaskID: task.ID}

	s.mu.Lock()
	if model.FindEntry(s.working, key) >= 0 {
		s.mu.Unlock()
		return nil
	}
	if _, busy := s.ensuring[key]; busy {
		s.mu.Unlock()
		return nil
	}
	s.ensuring[key] = struct{}{}
	w := model.TimesheetWrite{
		EmployeeID: s.principal.EmployeeID,
		ProjectID:  project.ID,
		Date:       rowDate(s.period).Format(model.DateLayout),
	}
	if task.ID != "" {
		id := task.ID
		w.TaskID = &id
	}
	s.mu.Unlock()

	created, err := s.backend.CreateTimesheet(ctx, w)

	s.mu.Lock()
	delete(s.ensuring, key)
	if err == nil && model.FindEntry(s.working, key) < 0 {
		row := created.Clone()
		if row.ID.IsZero() || row.Key() != key {
			row = model.TimeEntry{ID: model.PendingID(uuid.NewString()), EmployeeID: w.EmployeeID, Project: project}
			if task.ID != "" {
				t := task
				row.Task = &t
			}
		}
		if row.Entries == nil {
			row.Entries = map[string]float64{}
		}
		s.working = append(s.working, row)
	}
	s.mu.Unlock()

	if err != nil {
		return &model.PersistenceError{Op: "create timesheet row", Err: err}
	}
	return s.Refresh(ctx)
}

// rowDate returns the last visible column on or before the period anchor, so
// a row created from a weekend anchor still lands inside the grid.
func rowDate(p model.Period) time.Time {
	cols := grid.Columns(p.View, p.Date, time.Time{})
	if len(cols) == 0 {
		return p.Date
	}
	d := cols[0].Date
	for _, c := range cols {
		if !c.Date.After(p.Date) {
			d = c.Date
		}
	}
	return d
}

// Refresh reloads the working set for the viewed period. Pending placeholders
// the server does not know about yet are kept. Only the newest of several
// overlapping refreshes is applied.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.refreshSeq++
	seq := s.refreshSeq
	period := s.period
	s.mu.Unlock()

	rows, err := s.backend.GroupedTimesheets(ctx, period.View, s.principal.EmployeeID, period.Date)
	if err != nil {
		return &model.PersistenceError{Op: "load timesheets", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.refreshSeq {
		return nil
	}
	s.working = reconcile(rows, s.working)
	if ac := s.active; ac != nil && !ac.backing.IsConfirmed() {
		if i := model.FindEntry(s.working, ac.key()); i >= 0 && s.working[i].ID.IsConfirmed() {
			ac.backing = s.working[i].ID
		}
	}
	return nil
}

// reconcile merges server rows with local placeholders the server lacks.
func reconcile(server, local []model.TimeEntry) []model.TimeEntry {
	out := make([]model.TimeEntry, 0, len(server))
	for _, e := range server {
		if e.Entries == nil {
			e.Entries = map[string]float64{}
		}
		out = append(out, e)
	}
	for _, e := range local {
		if !e.ID.IsPending() {
			continue
		}
		if model.FindEntry(out, e.Key()) >= 0 {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Recover resumes a context persisted by an earlier process. Elapsed is
// restored from the stored start instant.
func (s *Session) Recover(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	saved, ok, err := s.store.LoadActiveTimer(ctx)
	if err != nil {
		return fmt.Errorf("load active timer: %w", err)
	}
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return nil
	}
	ac := &activeContext{
		project: model.Ref{ID: saved.ProjectID, Name: saved.ProjectName},
		task:    model.Ref{ID: saved.TaskID, Name: saved.TaskName},
		start:   saved.StartedAt,
	}
	if saved.EntryID != "" {
		ac.backing = model.ConfirmedID(saved.EntryID)
	}
	s.gen++
	ac.gen = s.gen
	s.active = ac
	s.running = true
	s.elapsed = 0
	if !ac.start.IsZero() {
		if secs := int(s.clock.Now().Sub(ac.start).Seconds()); secs > 0 {
			s.elapsed = secs
		}
	}
	s.startTickerLocked()
	return nil
}

// ============================================================
// Helpers
// ============================================================

func (s *Session) writeFor(ac *activeContext, end time.Time) model.TimesheetWrite {
	w := model.TimesheetWrite{
		EmployeeID: s.principal.EmployeeID,
		ProjectID:  ac.project.ID,
		Duration:   DurationHours(end.Sub(ac.start)),
		Date:       end.Format(model.DateLayout),
	}
	if ac.task.ID != "" {
		id := ac.task.ID
		w.TaskID = &id
	}
	return w
}

// persist updates a confirmed row or creates a new one.
func (s *Session) persist(ctx context.Context, id model.EntryID, w model.TimesheetWrite) error {
	if id.IsConfirmed() {
		_, err := s.backend.UpdateTimesheet(ctx, id.String(), w)
		return err
	}
	_, err := s.backend.CreateTimesheet(ctx, w)
	return err
}

func (a *activeContext) persisted() model.ActiveTimer {
	t := model.ActiveTimer{
		ProjectID:   a.project.ID,
		ProjectName: a.project.Name,
		TaskID:      a.task.ID,
		TaskName:    a.task.Name,
		StartedAt:   a.start,
	}
	if a.backing.IsConfirmed() {
		t.EntryID = a.backing.String()
	}
	return t
}

func (s *Session) saveContext(ctx context.Context, t model.ActiveTimer) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveActiveTimer(ctx, t); err != nil {
		s.log.Warn("persist active timer", "error", err)
	}
}

func (s *Session) clearContext(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.ClearActiveTimer(ctx); err != nil {
		s.log.Warn("clear active timer", "error", err)
	}
}
