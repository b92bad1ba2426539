package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sadopc/crewclock/internal/model"
)

// SaveActiveTimer replaces the stored running context. Literal colons in the
// named query are doubled for sqlx.
func (s *Store) SaveActiveTimer(ctx context.Context, a model.ActiveTimer) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO active_timer (id, project_id, project_name, task_id, task_name, entry_id, started_at, updated_at)
		VALUES (1, :project_id, :project_name, :task_id, :task_name, :entry_id, :started_at, strftime('%Y-%m-%dT%H::%M::%SZ','now'))
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			project_name = excluded.project_name,
			task_id = excluded.task_id,
			task_name = excluded.task_name,
			entry_id = excluded.entry_id,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at`,
		activeTimerRow{
			ProjectID:   a.ProjectID,
			ProjectName: a.ProjectName,
			TaskID:      a.TaskID,
			TaskName:    a.TaskName,
			EntryID:     a.EntryID,
			StartedAt:   formatStart(a.StartedAt),
		},
	)
	if err != nil {
		return fmt.Errorf("save active timer: %w", err)
	}
	return nil
}

// LoadActiveTimer returns the stored running context. A start instant that
// cannot be parsed comes back as the zero time.
func (s *Store) LoadActiveTimer(ctx context.Context) (model.ActiveTimer, bool, error) {
	var row activeTimerRow
	err := s.db.GetContext(ctx, &row, `
		SELECT project_id, project_name, task_id, task_name, entry_id, started_at
		FROM active_timer WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ActiveTimer{}, false, nil
	}
	if err != nil {
		return model.ActiveTimer{}, false, fmt.Errorf("load active timer: %w", err)
	}

	started, _ := time.Parse(time.RFC3339Nano, row.StartedAt)
	return model.ActiveTimer{
		ProjectID:   row.ProjectID,
		ProjectName: row.ProjectName,
		TaskID:      row.TaskID,
		TaskName:    row.TaskName,
		EntryID:     row.EntryID,
		StartedAt:   started,
	}, true, nil
}

func (s *Store) ClearActiveTimer(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM active_timer`); err != nil {
		return fmt.Errorf("clear active timer: %w", err)
	}
	return nil
}

func formatStart(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
