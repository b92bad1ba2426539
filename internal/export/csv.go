// Package export writes the projected timesheet grid to CSV or JSON.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/sadopc/crewclock/internal/grid"
	"github.com/sadopc/crewclock/internal/model"
)

// ToCSV writes one line per grid row with a column per visible day.
func ToCSV(g grid.Grid, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := []string{"Entry ID", "Project", "Task"}
	for _, c := range g.Columns {
		header = append(header, c.Date.Format(model.DateLayout))
	}
	header = append(header, "Period (h)", "Total (h)", "Total")
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range g.Rows {
		task := ""
		if r.Task != nil {
			task = nameOf(*r.Task)
		}
		line := []string{r.EntryID.String(), nameOf(r.Project), task}
		var period float64
		for _, h := range r.Cells {
			line = append(line, hours(h))
			period += h
		}
		line = append(line, hours(period), hours(r.Total), formatDuration(r.Total))
		if err := w.Write(line); err != nil {
			return err
		}
	}

	footer := []string{"", "Total", ""}
	var period float64
	for _, h := range g.ColumnTotals {
		footer = append(footer, hours(h))
		period += h
	}
	footer = append(footer, hours(period), hours(g.GrandTotal), formatDuration(g.GrandTotal))
	if err := w.Write(footer); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}

func hours(h float64) string {
	return strconv.FormatFloat(h, 'f', 2, 64)
}

func nameOf(r model.Ref) string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// formatDuration renders fractional hours as HH:MM:SS.
func formatDuration(h float64) string {
	secs := int64(h*3600 + 0.5)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
