package timer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sadopc/crewclock/internal/model"
)

// ============================================================
// Fakes
// ============================================================

type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *manualClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{c: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

// live returns the number of tickers that have not been stopped.
func (c *manualClock) live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.isStopped() {
			n++
		}
	}
	return n
}

func (c *manualClock) created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// fire delivers one tick to every live ticker.
func (c *manualClock) fire() {
	c.mu.Lock()
	now := c.now
	tickers := append([]*manualTicker(nil), c.tickers...)
	c.mu.Unlock()
	for _, t := range tickers {
		if t.isStopped() {
			continue
		}
		select {
		case t.c <- now:
		case <-time.After(time.Second):
		}
	}
}

type manualTicker struct {
	mu      sync.Mutex
	c       chan time.Time
	stopped bool
}

func (t *manualTicker) C() <-chan time.Time { return t.c }

func (t *manualTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *manualTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type write struct {
	id string
	w  model.TimesheetWrite
}

type fakeBackend struct {
	mu        sync.Mutex
	rows      []model.TimeEntry
	creates   []model.TimesheetWrite
	updates   []write
	grouped   int
	createErr error
	updateErr error
	nextID    int

	// When gate is set, writes signal entered and block until gate is closed.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeBackend) GroupedTimesheets(_ context.Context, _ model.View, _ string, _ time.Time) ([]model.TimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grouped++
	out := make([]model.TimeEntry, len(f.rows))
	for i, r := range f.rows {
		out[i] = r.Clone()
	}
	return out, nil
}

func (f *fakeBackend) wait() {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate == nil {
		return
	}
	entered <- struct{}{}
	<-gate
}

func (f *fakeBackend) CreateTimesheet(_ context.Context, w model.TimesheetWrite) (model.TimeEntry, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, w)
	if f.createErr != nil {
		return model.TimeEntry{}, f.createErr
	}
	key := model.EntryKey{ProjectID: w.ProjectID}
	if w.TaskID != nil {
		key.TaskID = *w.TaskID
	}
	if i := model.FindEntry(f.rows, key); i >= 0 {
		f.rows[i].Entries[w.Date] += w.Duration
		f.rows[i].Total += w.Duration
		return f.rows[i].Clone(), nil
	}
	f.nextID++
	row := model.TimeEntry{
		ID:         model.ConfirmedID(fmt.Sprintf("ts-%d", f.nextID)),
		EmployeeID: w.EmployeeID,
		Project:    model.Ref{ID: w.ProjectID},
		Entries:    map[string]float64{w.Date: w.Duration},
		Total:      w.Duration,
	}
	if w.TaskID != nil {
		row.Task = &model.Ref{ID: *w.TaskID}
	}
	f.rows = append(f.rows, row)
	return row.Clone(), nil
}

func (f *fakeBackend) UpdateTimesheet(_ context.Context, id string, w model.TimesheetWrite) (model.TimeEntry, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, write{id: id, w: w})
	if f.updateErr != nil {
		return model.TimeEntry{}, f.updateErr
	}
	for i := range f.rows {
		if f.rows[i].ID.String() == id {
			f.rows[i].Entries[w.Date] += w.Duration
			f.rows[i].Total += w.Duration
			return f.rows[i].Clone(), nil
		}
	}
	return model.TimeEntry{}, errors.New("not found")
}

func (f *fakeBackend) seed(rows ...model.TimeEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
}

func (f *fakeBackend) setCreateErr(err error) {
	f.mu.Lock()
	f.createErr = err
	f.mu.Unlock()
}

func (f *fakeBackend) setUpdateErr(err error) {
	f.mu.Lock()
	f.updateErr = err
	f.mu.Unlock()
}

func (f *fakeBackend) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates)
}

func (f *fakeBackend) lastCreate() model.TimesheetWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates[len(f.creates)-1]
}

type memoryStore struct {
	saved   model.ActiveTimer
	ok      bool
	cleared int
}

func (m *memoryStore) SaveActiveTimer(_ context.Context, t model.ActiveTimer) error {
	m.saved, m.ok = t, true
	return nil
}

func (m *memoryStore) LoadActiveTimer(context.Context) (model.ActiveTimer, bool, error) {
	return m.saved, m.ok, nil
}

func (m *memoryStore) ClearActiveTimer(context.Context) error {
	m.saved, m.ok = model.ActiveTimer{}, false
	m.cleared++
	return nil
}

var t0 = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

type harness struct {
	s       *Session
	clock   *manualClock
	backend *fakeBackend
	store   *memoryStore
	ticks   chan int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:   newManualClock(t0),
		backend: &fakeBackend{},
		store:   &memoryStore{},
		ticks:   make(chan int, 1024),
	}
	h.s = NewSession(h.backend, model.Principal{EmployeeID: "emp-1", Role: model.RoleEmployee},
		WithClock(h.clock),
		WithStore(h.store),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithTickHook(func(n int) { h.ticks <- n }),
	)
	t.Cleanup(h.s.Close)
	return h
}

// tick advances the clock by n seconds, delivering one tick per second and
// waiting for each to be counted.
func (h *harness) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		h.clock.Advance(time.Second)
		h.clock.fire()
		select {
		case <-h.ticks:
		case <-time.After(2 * time.Second):
			t.Fatalf("tick %d was not counted", i+1)
		}
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

var (
	apollo = model.Ref{ID: "p1", Name: "Apollo"}
	gemini = model.Ref{ID: "p2", Name: "Gemini"}
	login  = model.Ref{ID: "t1", Name: "Login"}
)

// ============================================================
// Start
// ============================================================

func TestStartWithoutProjectFails(t *testing.T) {
	h := newHarness(t)

	err := h.s.Start(context.Background(), model.Ref{}, model.Ref{})
	if !errors.Is(err, ErrNoProjectSelected) {
		t.Fatalf("expected ErrNoProjectSelected, got %v", err)
	}
	if h.s.Running() {
		t.Fatal("session must not be running")
	}
	if _, ok := h.s.Active(); ok {
		t.Fatal("no context should exist")
	}
	if h.clock.created() != 0 {
		t.Fatal("no ticker should have been created")
	}
}

func TestStartDefaultsToFirstRow(t *testing.T) {
	h := newHarness(t)
	h.backend.seed(model.TimeEntry{
		ID:      model.ConfirmedID("ts-9"),
		Project: apollo,
		Task:    &login,
		Entries: map[string]float64{},
	})
	if err := h.s.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := h.s.Start(context.Background(), model.Ref{}, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	ac, ok := h.s.Active()
	if !ok {
		t.Fatal("expected active context")
	}
	if ac.Project.ID != "p1" || ac.Task.ID != "t1" {
		t.Fatalf("expected default p1/t1, got %+v", ac)
	}
	if ac.EntryID.String() != "ts-9" {
		t.Fatalf("expected backing row ts-9, got %q", ac.EntryID)
	}
}

func TestStartTwiceReturnsAlreadyRunning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.s.Start(ctx, apollo, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	if err := h.s.Start(ctx, gemini, model.Ref{}); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if h.clock.live() != 1 {
		t.Fatalf("expected one live ticker, got %d", h.clock.live())
	}
}

func TestAtMostOneTicker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := h.s.Start(ctx, apollo, model.Ref{}); err != nil {
			t.Fatalf("cycle %d start: %v", i, err)
		}
		if n := h.clock.live(); n != 1 {
			t.Fatalf("cycle %d: expected 1 live ticker after start, got %d", i, n)
		}
		h.tick(t, 3)
		if err := h.s.Pause(ctx); err != nil {
			t.Fatalf("cycle %d pause: %v", i, err)
		}
		if n := h.clock.live(); n != 0 {
			t.Fatalf("cycle %d: expected 0 live tickers after pause, got %d", i, n)
		}
	}
	if h.s.Elapsed() != 0 {
		t.Fatalf("elapsed should reset after a successful pause, got %d", h.s.Elapsed())
	}
}

// A tick already taken off a stopped ticker must not count toward the
// context that replaced it.
func TestTickFromStoppedTickerIsIgnored(t *testing.T) {
	h := newHarness(t)
	if err := h.s.Start(context.Background(), apollo, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	h.clock.mu.Lock()
	old := h.clock.tickers[0]
	h.clock.mu.Unlock()

	h.s.mu.Lock()
	// The loop takes the tick and then waits for the session lock.
	old.c <- t0
	h.s.stopTickerLocked()
	h.s.startTickerLocked()
	h.s.mu.Unlock()

	select {
	case n := <-h.ticks:
		t.Fatalf("stale tick was counted, elapsed %d", n)
	case <-time.After(50 * time.Millisecond):
	}
	h.tick(t, 1)
	if got := h.s.Elapsed(); got != 1 {
		t.Fatalf("expected elapsed 1, got %d", got)
	}
}

func TestStartPersistsContext(t *testing.T) {
	h := newHarness(t)
	if err := h.s.Start(context.Background(), apollo, login); err != nil {
		t.Fatal(err)
	}
	if !h.store.ok {
		t.Fatal("context was not persisted")
	}
	if h.store.saved.ProjectID != "p1" || h.store.saved.TaskID != "t1" || !h.store.saved.StartedAt.Equal(t0) {
		t.Fatalf("unexpected persisted context %+v", h.store.saved)
	}
}

// ============================================================
// Pause
// ============================================================

func TestPauseFloorsShortDuration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.s.Start(ctx, apollo, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	h.tick(t, 20)

	if err := h.s.Pause(ctx); err != nil {
		t.Fatal(err)
	}
	w := h.backend.lastCreate()
	if w.Duration != 0.01 {
		t.Fatalf("expected floored duration 0.01, got %v", w.Duration)
	}
	if w.Date != "2024-03-05" || w.TaskID != nil || w.EmployeeID != "emp-1" {
		t.Fatalf("unexpected write %+v", w)
	}
	if h.s.Running() {
		t.Fatal("should not be running")
	}
	if _, ok := h.s.Active(); ok {
		t.Fatal("context should be cleared after a successful save")
	}
	if h.store.ok {
		t.Fatal("persisted context should be cleared")
	}
	if len(h.s.WorkingSet()) != 1 {
		t.Fatalf("working set should be refreshed, got %d rows", len(h.s.WorkingSet()))
	}
}

func TestPauseUpdatesKnownRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.backend.seed(model.TimeEntry{ID: model.ConfirmedID("ts-7"), Project: apollo, Entries: map[string]float64{}})
	if err := h.s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.s.Start(ctx, apollo, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(90 * time.Minute)
	if err := h.s.Pause(ctx); err != nil {
		t.Fatal(err)
	}
	if h.backend.createCount() != 0 {
		t.Fatal("known row must be updated, not created")
	}
	if len(h.backend.updates) != 1 || h.backend.updates[0].id != "ts-7" {
		t.Fatalf("expected one update of ts-7, got %+v", h.backend.updates)
	}
	if !approx(h.backend.updates[0].w.Duration, 1.5) {
		t.Fatalf("expected 1.5h, got %v", h.backend.updates[0].w.Duration)
	}
}

func TestPauseWithoutContext(t *testing.T) {
	h := newHarness(t)
	if err := h.s.Pause(context.Background()); !errors.Is(err, ErrNoActiveTimer) {
		t.Fatalf("expected ErrNoActiveTimer, got %v", err)
	}
}

func TestPauseFailureKeepsContextForRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.s.Start(ctx, apollo, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(time.Hour)
	h.backend.setCreateErr(errors.New("503"))

	err := h.s.Pause(ctx)
	if !model.IsPersistence(err) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if h.s.Running() {
		t.Fatal("running is cleared optimistically")
	}
	if _, ok := h.s.Active(); !ok {
		t.Fatal("context must survive a failed save")
	}

	// Time after the first stop is not billed on retry.
	h.clock.Advance(time.Hour)
	h.backend.setCreateErr(nil)
	if err := h.s.Pause(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if d := h.backend.lastCreate().Duration; !approx(d, 1) {
		t.Fatalf("expected 1h on retry, got %v", d)
	}
	if _, ok := h.s.Active(); ok {
		t.Fatal("context should be cleared after retry succeeds")
	}
}

func TestPauseIgnoredWhileSaving(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.s.Start(ctx, apollo, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(time.Minute)

	h.backend.gate = make(chan struct{})
	h.backend.entered = make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() { done <- h.s.Pause(ctx) }()
	<-h.backend.entered

	if !h.s.Saving() {
		t.Fatal("expected save in flight")
	}
	if err := h.s.Pause(ctx); err != nil {
		t.Fatalf("reentrant pause should be ignored, got %v", err)
	}
	close(h.backend.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if n := h.backend.createCount(); n != 1 {
		t.Fatalf("expected exactly one save, got %d", n)
	}
}

func TestInvalidStartTimeSkipsWrite(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.saved = model.ActiveTimer{ProjectID: "p1"}
	h.store.ok = true

	if err := h.s.Recover(ctx); err != nil {
		t.Fatal(err)
	}
	if !h.s.Running() {
		t.Fatal("recovered context should be running")
	}
	if err := h.s.Pause(ctx); !errors.Is(err, ErrInvalidStartTime) {
		t.Fatalf("expected ErrInvalidStartTime, got %v", err)
	}
	if h.backend.createCount() != 0 || len(h.backend.updates) != 0 {
		t.Fatal("no write may be issued for an invalid start time")
	}
	if _, ok := h.s.Active(); ok {
		t.Fatal("invalid context should be discarded")
	}
	if h.clock.live() != 0 {
		t.Fatal("ticker should be stopped")
	}
}

// ============================================================
// SwitchContext
// ============================================================

func TestSwitchContextFlushesAndPreservesElapsed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.s.Start(ctx, apollo, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	h.tick(t, 125)

	before := h.s.Elapsed()
	if err := h.s.SwitchContext(ctx, gemini, login); err != nil {
		t.Fatal(err)
	}
	after := h.s.Elapsed()

	if before != 125 || after != 125 {
		t.Fatalf("elapsed should stay 125 across the switch, got %d -> %d", before, after)
	}
	w := h.backend.lastCreate()
	if w.ProjectID != "p1" || !approx(w.Duration, 125.0/3600.0) {
		t.Fatalf("unexpected flush %+v", w)
	}
	ac, _ := h.s.Active()
	if ac.Project.ID != "p2" || ac.Task.ID != "t1" {
		t.Fatalf("unexpected new context %+v", ac)
	}
	if !ac.Start.Equal(t0.Add(125 * time.Second)) {
		t.Fatalf("new context should start at T0+125s, got %v", ac.Start)
	}
	if !h.s.Running() || h.clock.live() != 1 {
		t.Fatal("ticker must keep running across a switch")
	}

	// The ticker continues from the preserved value.
	h.tick(t, 1)
	if h.s.Elapsed() != 126 {
		t.Fatalf("expected 126, got %d", h.s.Elapsed())
	}
}

func TestSwitchContextInsertsPlaceholder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.s.Start(ctx, apollo, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(10 * time.Minute)
	if err := h.s.SwitchContext(ctx, gemini, model.Ref{}); err != nil {
		t.Fatal(err)
	}

	rows := h.s.WorkingSet()
	i := model.FindEntry(rows, model.EntryKey{ProjectID: "p2"})
	if i < 0 {
		t.Fatal("placeholder row missing after refresh")
	}
	if !rows[i].ID.IsPending() {
		t.Fatalf("placeholder should be pending, got %+v", rows[i].ID)
	}
	if model.FindEntry(rows, model.EntryKey{ProjectID: "p1"}) < 0 {
		t.Fatal("flushed row should be present")
	}

	// Stopping creates the row server side; the placeholder disappears.
	h.clock.Advance(time.Hour)
	if err := h.s.Pause(ctx); err != nil {
		t.Fatal(err)
	}
	rows = h.s.WorkingSet()
	i = model.FindEntry(rows, model.EntryKey{ProjectID: "p2"})
	if i < 0 || !rows[i].ID.IsConfirmed() {
		t.Fatalf("expected confirmed p2 row, got %+v", rows)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestSwitchContextReusesExistingRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.backend.seed(model.TimeEntry{ID: model.ConfirmedID("ts-5"), Project: gemini, Entries: map[string]float64{}})
	if err := h.s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.s.Start(ctx, apollo, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	if err := h.s.SwitchContext(ctx, gemini, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	ac, _ := h.s.Active()
	if ac.EntryID.String() != "ts-5" || !ac.EntryID.IsConfirmed() {
		t.Fatalf("expected reuse of ts-5, got %+v", ac.EntryID)
	}
	for _, r := range h.s.WorkingSet() {
		if r.ID.IsPending() {
			t.Fatal("no placeholder expected when the row exists")
		}
	}
}

func TestSwitchFlushFailureIsNonFatal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.s.Start(ctx, apollo, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	h.tick(t, 5)
	h.backend.setCreateErr(errors.New("boom"))

	err := h.s.SwitchContext(ctx, gemini, model.Ref{})
	if !model.IsPersistence(err) {
		t.Fatalf("expected persistence warning, got %v", err)
	}
	ac, _ := h.s.Active()
	if ac.Project.ID != "p2" || !h.s.Running() {
		t.Fatal("switch must proceed despite the failed flush")
	}
	if h.s.Elapsed() != 5 {
		t.Fatalf("elapsed should be preserved, got %d", h.s.Elapsed())
	}
}

func TestSwitchContextRequiresRunning(t *testing.T) {
	h := newHarness(t)
	if err := h.s.SwitchContext(context.Background(), gemini, model.Ref{}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestSwitchToSameContextIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.s.Start(ctx, apollo, login); err != nil {
		t.Fatal(err)
	}
	before, _ := h.s.Active()
	if err := h.s.SwitchContext(ctx, apollo, login); err != nil {
		t.Fatal(err)
	}
	after, _ := h.s.Active()
	if before.Generation != after.Generation || h.backend.createCount() != 0 {
		t.Fatal("switching to the active context should do nothing")
	}
}

// ============================================================
// StartFor
// ============================================================

func TestStartForActiveRowPauses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	entry := model.TimeEntry{ID: model.ConfirmedID("ts-1"), Project: apollo, Entries: map[string]float64{}}
	h.backend.seed(entry)

	if err := h.s.StartFor(ctx, entry); err != nil {
		t.Fatal(err)
	}
	if !h.s.Running() {
		t.Fatal("expected running")
	}
	h.clock.Advance(time.Hour)
	if err := h.s.StartFor(ctx, entry); err != nil {
		t.Fatal(err)
	}
	if h.s.Running() {
		t.Fatal("second StartFor on the same row should pause")
	}
	if len(h.backend.updates) != 1 || h.backend.updates[0].id != "ts-1" {
		t.Fatalf("expected update of ts-1, got %+v", h.backend.updates)
	}
}

func TestStartForDifferentRowFlushesAndResets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := model.TimeEntry{ID: model.ConfirmedID("ts-1"), Project: apollo, Entries: map[string]float64{}}
	second := model.TimeEntry{ID: model.ConfirmedID("ts-2"), Project: gemini, Task: &login, Entries: map[string]float64{}}
	h.backend.seed(first, second)

	if err := h.s.StartFor(ctx, first); err != nil {
		t.Fatal(err)
	}
	h.tick(t, 30)
	if err := h.s.StartFor(ctx, second); err != nil {
		t.Fatal(err)
	}

	if len(h.backend.updates) != 1 || h.backend.updates[0].id != "ts-1" {
		t.Fatalf("first row should be flushed, got %+v", h.backend.updates)
	}
	if h.s.Elapsed() != 0 {
		t.Fatalf("fresh start resets elapsed, got %d", h.s.Elapsed())
	}
	ac, _ := h.s.Active()
	if ac.EntryID.String() != "ts-2" || !h.s.Running() {
		t.Fatalf("expected ts-2 running, got %+v", ac)
	}
	if h.clock.live() != 1 {
		t.Fatalf("expected one live ticker, got %d", h.clock.live())
	}
}

func TestStartForProceedsWhenFlushFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := model.TimeEntry{ID: model.ConfirmedID("ts-1"), Project: apollo, Entries: map[string]float64{}}
	second := model.TimeEntry{ID: model.ConfirmedID("ts-2"), Project: gemini, Entries: map[string]float64{}}
	h.backend.seed(first, second)

	if err := h.s.StartFor(ctx, first); err != nil {
		t.Fatal(err)
	}
	h.backend.setUpdateErr(errors.New("down"))

	err := h.s.StartFor(ctx, second)
	if !model.IsPersistence(err) {
		t.Fatalf("expected flush error to be reported, got %v", err)
	}
	ac, ok := h.s.Active()
	if !ok || ac.EntryID.String() != "ts-2" || !h.s.Running() {
		t.Fatalf("second row should be running, got %+v", ac)
	}
}

// The implicit pause fails to create the previous row. That duration must not
// be written again behind the caller's back when the new row starts.
func TestStartForDoesNotRewriteFailedFlush(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.s.Start(ctx, apollo, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(time.Minute)
	h.backend.setCreateErr(errors.New("down"))

	err := h.s.StartFor(ctx, model.TimeEntry{Project: gemini, Entries: map[string]float64{}})
	if !model.IsPersistence(err) {
		t.Fatalf("expected flush error to be reported, got %v", err)
	}
	if n := h.backend.createCount(); n != 1 {
		t.Fatalf("expected a single create attempt, got %d", n)
	}
	ac, ok := h.s.Active()
	if !ok || ac.Project.ID != "p2" || !h.s.Running() {
		t.Fatalf("gemini should be running, got %+v", ac)
	}

	h.backend.setCreateErr(nil)
	if err := h.s.Pause(ctx); err != nil {
		t.Fatal(err)
	}
	if n := h.backend.createCount(); n != 2 {
		t.Fatalf("expected only the gemini write after the failure, got %d creates", n)
	}
	if w := h.backend.lastCreate(); w.ProjectID != "p2" {
		t.Fatalf("unexpected write %+v", w)
	}
}

// ============================================================
// EnsureRow
// ============================================================

func TestEnsureRowIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := h.s.EnsureRow(ctx, apollo, login); err != nil {
			t.Fatal(err)
		}
	}
	if n := h.backend.createCount(); n != 1 {
		t.Fatalf("expected one create, got %d", n)
	}
	rows := h.s.WorkingSet()
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	w := h.backend.lastCreate()
	if w.Duration != 0 || w.TaskID == nil || *w.TaskID != "t1" {
		t.Fatalf("unexpected create %+v", w)
	}
}

func TestEnsureRowConcurrentCallsCreateOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.backend.gate = make(chan struct{})
	h.backend.entered = make(chan struct{}, 2)

	done := make(chan error, 1)
	go func() { done <- h.s.EnsureRow(ctx, apollo, model.Ref{}) }()
	<-h.backend.entered

	if err := h.s.EnsureRow(ctx, apollo, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	close(h.backend.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if n := h.backend.createCount(); n != 1 {
		t.Fatalf("expected one create, got %d", n)
	}
}

func TestEnsureRowKeepsProjectOnlyDistinct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.s.EnsureRow(ctx, apollo, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	if err := h.s.EnsureRow(ctx, apollo, login); err != nil {
		t.Fatal(err)
	}
	rows := h.s.WorkingSet()
	if len(rows) != 2 {
		t.Fatalf("(P, null) and (P, T) are different rows, got %d", len(rows))
	}
	if h.backend.createCount() != 2 {
		t.Fatalf("expected 2 creates, got %d", h.backend.createCount())
	}
}

func TestEnsureRowOnWeekendAnchor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	saturday := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	h.s.SetPeriod(model.Period{View: model.ViewWeek, Date: saturday})

	for i := 0; i < 2; i++ {
		if err := h.s.EnsureRow(ctx, apollo, model.Ref{}); err != nil {
			t.Fatal(err)
		}
	}
	if n := h.backend.createCount(); n != 1 {
		t.Fatalf("expected one create, got %d", n)
	}
	if w := h.backend.lastCreate(); w.Date != "2024-03-08" {
		t.Fatalf("row should be dated to the visible Friday, got %s", w.Date)
	}
}

func TestRowDate(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	tests := []struct {
		name string
		p    model.Period
		want string
	}{
		{"weekday week", model.Period{View: model.ViewWeek, Date: day(2024, 3, 6)}, "2024-03-06"},
		{"sunday week", model.Period{View: model.ViewWeek, Date: day(2024, 3, 10)}, "2024-03-08"},
		{"sunday month", model.Period{View: model.ViewMonth, Date: day(2024, 3, 31)}, "2024-03-29"},
		{"saturday day", model.Period{View: model.ViewDay, Date: day(2024, 3, 9)}, "2024-03-09"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rowDate(tt.p).Format(model.DateLayout); got != tt.want {
				t.Fatalf("rowDate = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEnsureRowFailure(t *testing.T) {
	h := newHarness(t)
	h.backend.setCreateErr(errors.New("nope"))
	err := h.s.EnsureRow(context.Background(), apollo, model.Ref{})
	if !model.IsPersistence(err) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if len(h.s.WorkingSet()) != 0 {
		t.Fatal("no row should be added on failure")
	}
}

// ============================================================
// Recover / stale saves
// ============================================================

func TestRecoverRestoresElapsed(t *testing.T) {
	h := newHarness(t)
	h.store.saved = model.ActiveTimer{ProjectID: "p1", EntryID: "ts-3", StartedAt: t0.Add(-90 * time.Second)}
	h.store.ok = true

	if err := h.s.Recover(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.s.Elapsed() != 90 {
		t.Fatalf("expected 90s elapsed, got %d", h.s.Elapsed())
	}
	ac, _ := h.s.Active()
	if !ac.EntryID.IsConfirmed() || ac.EntryID.String() != "ts-3" {
		t.Fatalf("unexpected backing id %+v", ac.EntryID)
	}
}

func TestStaleSaveDoesNotClobberNewContext(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.s.Start(ctx, apollo, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(time.Minute)

	h.backend.gate = make(chan struct{})
	h.backend.entered = make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() { done <- h.s.Pause(ctx) }()
	<-h.backend.entered

	// Start does not touch the backend while the old save is in flight.
	if err := h.s.Start(ctx, gemini, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	close(h.backend.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	ac, ok := h.s.Active()
	if !ok || ac.Project.ID != "p2" || !h.s.Running() {
		t.Fatalf("newer context was clobbered: %+v running=%v", ac, h.s.Running())
	}
}

func TestStartRetriesUnsavedContext(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.s.Start(ctx, apollo, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(30 * time.Minute)
	h.backend.setCreateErr(errors.New("down"))
	if err := h.s.Pause(ctx); err == nil {
		t.Fatal("expected failure")
	}
	h.backend.setCreateErr(nil)

	if err := h.s.Start(ctx, gemini, model.Ref{}); err != nil {
		t.Fatal(err)
	}
	w := h.backend.lastCreate()
	if w.ProjectID != "p1" || !approx(w.Duration, 0.5) {
		t.Fatalf("unsaved context should be retried, got %+v", w)
	}
	ac, _ := h.s.Active()
	if ac.Project.ID != "p2" {
		t.Fatalf("expected p2 active, got %+v", ac)
	}
}

func TestDurationHours(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want float64
	}{
		{0, 0.01},
		{20 * time.Second, 0.01},
		{36 * time.Second, 0.01},
		{125 * time.Second, 125.0 / 3600.0},
		{2 * time.Hour, 2},
	}
	for _, tt := range tests {
		if got := DurationHours(tt.d); !approx(got, tt.want) {
			t.Errorf("DurationHours(%v) = %v, want %v", tt.d, got, tt.want)
		}
	}
}
