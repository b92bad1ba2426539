package model

import (
	"fmt"
	"time"
)

// Status is a board column. A task is always in exactly one of them.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone, StatusBlocked}

var statusLabels = map[Status]string{
	StatusTodo:       "To Do",
	StatusInProgress: "In Progress",
	StatusDone:       "Done",
	StatusBlocked:    "Blocked",
}

// Label returns the column heading for s.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// ParseStatus validates a wire value.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown task status %q", v)
	}
	return s, nil
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Task is a work item shown on the board.
type Task struct {
	ID          string     `json:"_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	Project     Ref        `json:"project_id"`
	Assignee    Ref        `json:"assigned_to"`
}

// Project is an entry of the project selector.
type Project struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}
