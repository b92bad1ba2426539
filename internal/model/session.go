package model

import (
	"errors"
	"fmt"
	"time"
)

// Role is the actor's role as issued by the identity provider.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleTeamLead Role = "team_lead"
	RoleEmployee Role = "employee"
)

// Principal is the authenticated actor. It is passed explicitly into the
// timer session and the board instead of being read from global state.
type Principal struct {
	EmployeeID   string
	DepartmentID string
	Role         Role
	Token        string
}

// View is the calendar granularity of the timesheet.
type View string

const (
	ViewDay   View = "day"
	ViewWeek  View = "week"
	ViewMonth View = "month"
)

func ParseView(v string) (View, error) {
	switch View(v) {
	case ViewDay, ViewWeek, ViewMonth:
		return View(v), nil
	}
	return "", fmt.Errorf("unknown view %q", v)
}

// Period is the viewed slice of the calendar.
type Period struct {
	View View
	Date time.Time
}

// PersistenceError reports a failed backend write or refresh. Local state is
// left interactive and the user may retry the action.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistence reports whether err (or any error in its chain) is a
// PersistenceError.
func IsPersistence(err error) bool {
	var pErr *PersistenceError
	return errors.As(err, &pErr)
}

// ActiveTimer is the persisted form of a running timer context, used to
// resume the timer after a restart. EntryID is empty unless the backing row
// is confirmed by the server.
type ActiveTimer struct {
	ProjectID   string
	ProjectName string
	TaskID      string
	TaskName    string
	EntryID     string
	StartedAt   time.Time
}
