package store

// activeTimerRow mirrors the single active_timer row.
type activeTimerRow struct {
	ProjectID   string `db:"project_id"`
	ProjectName string `db:"project_name"`
	TaskID      string `db:"task_id"`
	TaskName    string `db:"task_name"`
	EntryID     string `db:"entry_id"`
	StartedAt   string `db:"started_at"`
}

type Setting struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// Setting keys.
const (
	SettingLastView = "last_view"
)
