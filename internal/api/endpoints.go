package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sadopc/crewclock/internal/model"
)

// GroupedTimesheets returns the employee's rows for the period containing
// date, bucketed per view.
func (c *Client) GroupedTimesheets(ctx context.Context, view model.View, employeeID string, date time.Time) ([]model.TimeEntry, error) {
	q := url.Values{}
	q.Set("view", string(view))
	q.Set("employee_id", employeeID)
	q.Set("date", date.Format(model.DateLayout))

	var out listEnvelope[model.TimeEntry]
	if err := c.get(ctx, "/timesheets/grouped", q, &out); err != nil {
		return nil, fmt.Errorf("list grouped timesheets: %w", err)
	}
	return out.items, nil
}

func (c *Client) CreateTimesheet(ctx context.Context, w model.TimesheetWrite) (model.TimeEntry, error) {
	var out model.TimeEntry
	if err := c.do(ctx, http.MethodPost, "/timesheets", w, &out); err != nil {
		return model.TimeEntry{}, fmt.Errorf("create timesheet: %w", err)
	}
	return out, nil
}

func (c *Client) UpdateTimesheet(ctx context.Context, id string, w model.TimesheetWrite) (model.TimeEntry, error) {
	var out model.TimeEntry
	if err := c.do(ctx, http.MethodPut, "/timesheets/"+url.PathEscape(id), w, &out); err != nil {
		return model.TimeEntry{}, fmt.Errorf("update timesheet %s: %w", id, err)
	}
	return out, nil
}

// ListTasks returns the tasks of projectID, or every visible task when
// projectID is empty.
func (c *Client) ListTasks(ctx context.Context, projectID string) ([]model.Task, error) {
	q := url.Values{}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	var out listEnvelope[model.Task]
	if err := c.get(ctx, "/tasks", q, &out); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out.items, nil
}

func (c *Client) UpdateTaskStatus(ctx context.Context, id string, status model.Status) error {
	body := struct {
		Status model.Status `json:"status"`
	}{status}
	if err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id), body, nil); err != nil {
		return fmt.Errorf("update task %s status: %w", id, err)
	}
	return nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// ListProjects feeds the project selector.
func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var out listEnvelope[model.Project]
	if err := c.get(ctx, "/projects", nil, &out); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out.items, nil
}
