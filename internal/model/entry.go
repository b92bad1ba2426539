package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// EntryID identifies a timesheet row. A row is either Confirmed (the server
// assigned the id) or Pending (a placeholder the client inserted and the
// server has not seen yet).
type EntryID struct {
	value   string
	pending bool
}

// ConfirmedID wraps a server-assigned identifier.
func ConfirmedID(id string) EntryID {
	return EntryID{value: id}
}

// PendingID wraps a client-generated placeholder token.
func PendingID(token string) EntryID {
	return EntryID{value: token, pending: true}
}

func (id EntryID) IsZero() bool      { return id.value == "" }
func (id EntryID) IsPending() bool   { return id.pending && id.value != "" }
func (id EntryID) IsConfirmed() bool { return !id.pending && id.value != "" }

// String returns the raw identifier or token.
func (id EntryID) String() string {
	return id.value
}

func (id EntryID) MarshalJSON() ([]byte, error) {
	if id.IsConfirmed() {
		return json.Marshal(id.value)
	}
	return []byte("null"), nil
}

func (id *EntryID) UnmarshalJSON(data []byte) error {
	ref, err := decodeRef(data)
	if err != nil {
		return fmt.Errorf("decode entry id: %w", err)
	}
	*id = ConfirmedID(ref.ID)
	return nil
}

// Ref points at another record. The backend sends references either as a
// bare identifier or as an expanded object; both decode to the same Ref.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	ref, err := decodeRef(data)
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

func (r Ref) IsZero() bool { return r.ID == "" }

func decodeRef(data []byte) (Ref, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Ref{}, nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Ref{}, err
		}
		return Ref{ID: s}, nil
	case '{':
		var obj struct {
			ID    json.RawMessage `json:"id"`
			OID   json.RawMessage `json:"_id"`
			Name  string          `json:"name"`
			Title string          `json:"title"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return Ref{}, err
		}
		raw := obj.ID
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			raw = obj.OID
		}
		inner, err := decodeRef(raw)
		if err != nil {
			return Ref{}, err
		}
		inner.Name = obj.Name
		if inner.Name == "" {
			inner.Name = obj.Title
		}
		return inner, nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return Ref{}, fmt.Errorf("unsupported reference %s", string(data))
		}
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return Ref{ID: strconv.FormatInt(i, 10)}, nil
		}
		return Ref{ID: n.String()}, nil
	}
}

// EntryKey is the identity of a timesheet row within one employee's working
// set. An empty TaskID is a project-only row and never matches a row that has
// a task.
type EntryKey struct {
	ProjectID string
	TaskID    string
}

// TimeEntry is one timesheet row: accumulated hours per calendar bucket for
// an (employee, project, task?) tuple.
type TimeEntry struct {
	ID         EntryID            `json:"_id"`
	EmployeeID string             `json:"employee_id"`
	Project    Ref                `json:"project_id"`
	Task       *Ref               `json:"task_id,omitempty"`
	Entries    map[string]float64 `json:"entries"`
	Total      float64            `json:"total"`
}

// Key returns the normalised (project, task) identity of the row.
func (e TimeEntry) Key() EntryKey {
	k := EntryKey{ProjectID: e.Project.ID}
	if e.Task != nil {
		k.TaskID = e.Task.ID
	}
	return k
}

// Clone returns a deep copy so callers can hand out snapshots of a working set.
func (e TimeEntry) Clone() TimeEntry {
	c := e
	if e.Task != nil {
		t := *e.Task
		c.Task = &t
	}
	if e.Entries != nil {
		c.Entries = make(map[string]float64, len(e.Entries))
		for k, v := range e.Entries {
			c.Entries[k] = v
		}
	}
	return c
}

// FindEntry returns the index of the row matching key, or -1.
func FindEntry(entries []TimeEntry, key EntryKey) int {
	for i := range entries {
		if entries[i].Key() == key {
			return i
		}
	}
	return -1
}

// TimesheetWrite is the request body for creating or updating a row.
type TimesheetWrite struct {
	EmployeeID string  `json:"employee_id"`
	ProjectID  string  `json:"project_id"`
	TaskID     *string `json:"task_id"`
	Duration   float64 `json:"duration"`
	Date       string  `json:"date"`
}

// DateLayout is the ISO calendar date format used on the wire and as the
// month-view bucket key.
const DateLayout = "2006-01-02"
