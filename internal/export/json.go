package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sadopc/crewclock/internal/grid"
	"github.com/sadopc/crewclock/internal/model"
)

type jsonExport struct {
	ExportedAt  string     `json:"exported_at"`
	View        model.View `json:"view"`
	PeriodStart string     `json:"period_start"`
	PeriodEnd   string     `json:"period_end"`
	Columns     []string   `json:"columns"`
	Count       int        `json:"count"`
	Rows        []jsonRow  `json:"rows"`
	Totals      []float64  `json:"column_totals"`
	GrandTotal  float64    `json:"grand_total_hours"`
}

type jsonRow struct {
	EntryID     string             `json:"entry_id"`
	Pending     bool               `json:"pending,omitempty"`
	Project     string             `json:"project"`
	ProjectID   string             `json:"project_id"`
	Task        string             `json:"task,omitempty"`
	TaskID      string             `json:"task_id,omitempty"`
	Hours       map[string]float64 `json:"hours"`
	PeriodHours float64            `json:"period_hours"`
	TotalHours  float64            `json:"total_hours"`
	Total       string             `json:"total"`
}

// ToJSON writes the grid as an indented document keyed by ISO date.
func ToJSON(g grid.Grid, path string) error {
	from, to := grid.Range(g.View, g.Anchor)
	export := jsonExport{
		ExportedAt:  time.Now().UTC().Format(time.RFC3339),
		View:        g.View,
		PeriodStart: from.Format(model.DateLayout),
		PeriodEnd:   to.Format(model.DateLayout),
		Count:       len(g.Rows),
		Totals:      g.ColumnTotals,
		GrandTotal:  g.GrandTotal,
	}
	for _, c := range g.Columns {
		export.Columns = append(export.Columns, c.Date.Format(model.DateLayout))
	}

	for _, r := range g.Rows {
		row := jsonRow{
			EntryID:    r.EntryID.String(),
			Pending:    r.EntryID.IsPending(),
			Project:    nameOf(r.Project),
			ProjectID:  r.Project.ID,
			Hours:      make(map[string]float64, len(r.Cells)),
			TotalHours: r.Total,
			Total:      formatDuration(r.Total),
		}
		if r.Task != nil {
			row.Task = nameOf(*r.Task)
			row.TaskID = r.Task.ID
		}
		for i, h := range r.Cells {
			row.PeriodHours += h
			if h != 0 {
				row.Hours[export.Columns[i]] = h
			}
		}
		export.Rows = append(export.Rows, row)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}
