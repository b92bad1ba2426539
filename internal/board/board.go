// Package board keeps the kanban partition of tasks by status and applies
// drag-and-drop moves optimistically, rolling them back when the backend
// rejects the new status.
package board

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/sadopc/crewclock/internal/model"
)

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrInvalidStatus   = errors.New("invalid task status")
	ErrForbidden       = errors.New("status changes are not allowed for this role")
	ErrDeleteCancelled = errors.New("delete cancelled")
)

// Backend is the subset of the task API the board writes to.
type Backend interface {
	UpdateTaskStatus(ctx context.Context, id string, status model.Status) error
	DeleteTask(ctx context.Context, id string) error
}

// ConfirmFunc asks the user to confirm deleting task.
type ConfirmFunc func(task model.Task) bool

type Option func(*Board)

func WithLogger(l *slog.Logger) Option {
	return func(b *Board) { b.log = l }
}

// Board is the partition of a task list into the four status columns. Every
// task sits in exactly one column and its Status field names that column.
type Board struct {
	backend   Backend
	principal model.Principal
	log       *slog.Logger

	mu       sync.Mutex
	columns  map[model.Status][]model.Task
	versions map[string]uint64
}

func New(backend Backend, principal model.Principal, opts ...Option) *Board {
	b := &Board{
		backend:   backend,
		principal: principal,
		log:       slog.Default(),
		columns:   emptyColumns(),
		versions:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func emptyColumns() map[model.Status][]model.Task {
	cols := make(map[model.Status][]model.Task, len(model.Statuses))
	for _, s := range model.Statuses {
		cols[s] = nil
	}
	return cols
}

// Load replaces the board contents. Tasks with an unknown status are placed
// in todo; a repeated id keeps its last occurrence.
func (b *Board) Load(tasks []model.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.columns = emptyColumns()
	for _, t := range tasks {
		b.putLocked(t)
	}
}

// Put inserts task, or replaces it if a task with the same id exists.
func (b *Board) Put(task model.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putLocked(task)
}

func (b *Board) putLocked(t model.Task) {
	if !t.Status.Valid() {
		b.log.Warn("unknown task status, placing in todo", "task", t.ID, "status", t.Status)
		t.Status = model.StatusTodo
	}
	b.removeLocked(t.ID)
	b.columns[t.Status] = append(b.columns[t.Status], t)
	// A newer copy invalidates the rollback of any move still in flight.
	b.versions[t.ID]++
}

// CanEditStatus reports whether the principal may use the status editor.
func (b *Board) CanEditStatus() bool {
	return b.principal.Role == model.RoleEmployee
}

// ============================================================
// Queries
// ============================================================

// Column returns a copy of one column.
func (b *Board) Column(status model.Status) []model.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Task(nil), b.columns[status]...)
}

// Columns returns a copy of the whole partition.
func (b *Board) Columns() map[model.Status][]model.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[model.Status][]model.Task, len(b.columns))
	for s, col := range b.columns {
		out[s] = append([]model.Task(nil), col...)
	}
	return out
}

// Locate returns the column and position of task id.
func (b *Board) Locate(id string) (model.Status, int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locateLocked(id)
}

func (b *Board) locateLocked(id string) (model.Status, int, bool) {
	for _, s := range model.Statuses {
		for i, t := range b.columns[s] {
			if t.ID == id {
				return s, i, true
			}
		}
	}
	return "", -1, false
}

func (b *Board) Task(id string) (model.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, i, ok := b.locateLocked(id)
	if !ok {
		return model.Task{}, false
	}
	return b.columns[s][i], true
}

// Len returns the number of tasks on the board.
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, col := range b.columns {
		n += len(col)
	}
	return n
}

// ============================================================
// Transitions
// ============================================================

// Move places task id at toIndex of column to. A drop onto the task's own
// position does nothing. Reordering within a column is local only. Moving
// across columns is applied immediately and the new status is then written;
// if the write fails the move is undone, unless the task has been moved
// again in the meantime.
func (b *Board) Move(ctx context.Context, id string, from, to model.Status, toIndex int) error {
	if !to.Valid() {
		return ErrInvalidStatus
	}

	b.mu.Lock()
	cur, idx, ok := b.locateLocked(id)
	if !ok {
		b.mu.Unlock()
		return ErrTaskNotFound
	}
	if from != cur {
		b.log.Debug("move source column is stale", "task", id, "from", from, "actual", cur)
	}
	if cur == to && clamp(toIndex, len(b.columns[to])-1) == idx {
		b.mu.Unlock()
		return nil
	}

	task := b.columns[cur][idx]
	b.removeLocked(id)
	task.Status = to
	b.insertLocked(task, toIndex)
	if cur == to {
		b.mu.Unlock()
		return nil
	}
	b.versions[id]++
	version := b.versions[id]
	b.mu.Unlock()

	if err := b.backend.UpdateTaskStatus(ctx, id, to); err != nil {
		b.mu.Lock()
		if b.versions[id] == version {
			b.removeLocked(id)
			task.Status = cur
			b.insertLocked(task, idx)
		}
		b.mu.Unlock()
		b.log.Warn("task status update failed", "task", id, "status", to, "error", err)
		return &model.PersistenceError{Op: "update task status", Err: err}
	}
	return nil
}

// SetStatus is the status editor path. Only employees may change status; the
// task is appended to the end of its new column.
func (b *Board) SetStatus(ctx context.Context, id string, status model.Status) error {
	if !b.CanEditStatus() {
		return ErrForbidden
	}
	if !status.Valid() {
		return ErrInvalidStatus
	}
	b.mu.Lock()
	cur, _, ok := b.locateLocked(id)
	end := len(b.columns[status])
	b.mu.Unlock()
	if !ok {
		return ErrTaskNotFound
	}
	if cur == status {
		return nil
	}
	return b.Move(ctx, id, cur, status, end)
}

// Delete removes task id after confirm approves it. A declined or missing
// confirmation returns ErrDeleteCancelled without contacting the backend.
func (b *Board) Delete(ctx context.Context, id string, confirm ConfirmFunc) error {
	task, ok := b.Task(id)
	if !ok {
		return ErrTaskNotFound
	}
	if confirm == nil || !confirm(task) {
		return ErrDeleteCancelled
	}
	if err := b.backend.DeleteTask(ctx, id); err != nil {
		b.log.Warn("task delete failed", "task", id, "error", err)
		return &model.PersistenceError{Op: "delete task", Err: err}
	}
	b.mu.Lock()
	b.removeLocked(id)
	b.versions[id]++
	b.mu.Unlock()
	return nil
}

// removeLocked drops id from every column.
func (b *Board) removeLocked(id string) {
	for s, col := range b.columns {
		kept := col[:0]
		for _, t := range col {
			if t.ID != id {
				kept = append(kept, t)
			}
		}
		b.columns[s] = kept
	}
}

func (b *Board) insertLocked(t model.Task, index int) {
	col := b.columns[t.Status]
	index = clamp(index, len(col))
	col = append(col, model.Task{})
	copy(col[index+1:], col[index:])
	col[index] = t
	b.columns[t.Status] = col
}

func clamp(i, hi int) int {
	if i < 0 {
		return 0
	}
	if i > hi {
		return hi
	}
	return i
}
