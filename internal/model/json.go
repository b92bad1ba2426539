package model

import "encoding/json"

// The backend is not consistent about "_id" versus "id" on top-level records,
// so the decoders below accept either.

func (e *TimeEntry) UnmarshalJSON(data []byte) error {
	type plain TimeEntry
	var aux struct {
		plain
		AltID EntryID `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = TimeEntry(aux.plain)
	if e.ID.IsZero() {
		e.ID = aux.AltID
	}
	if e.Task != nil && e.Task.IsZero() {
		e.Task = nil
	}
	return nil
}

func (t *Task) UnmarshalJSON(data []byte) error {
	type plain Task
	var aux struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = Task(aux.plain)
	if t.ID == "" {
		t.ID = aux.AltID
	}
	return nil
}

func (p *Project) UnmarshalJSON(data []byte) error {
	type plain Project
	var aux struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Project(aux.plain)
	if p.ID == "" {
		p.ID = aux.AltID
	}
	return nil
}
