// Package grid projects timesheet rows onto the calendar columns of a day,
// week or month view.
//
// Cells are looked up with a view-dependent bucket key: month views use the
// ISO date, day and week views use the abbreviated weekday name. The weekday
// key is a heuristic rather than a calendar join; hours recorded against
// "Mon" show up under every Monday the week view visits.
package grid

import (
	"fmt"
	"time"

	"github.com/sadopc/crewclock/internal/model"
)

// Column is one calendar day of the grid.
type Column struct {
	Date  time.Time
	Key   string
	Label string
	Today bool
}

// Row is a timesheet row projected onto the grid's columns.
type Row struct {
	EntryID model.EntryID
	Project model.Ref
	Task    *model.Ref
	Cells   []float64
	Total   float64
}

// Label returns "Project / Task" or just the project name.
func (r Row) Label() string {
	name := refName(r.Project)
	if r.Task != nil && r.Task.ID != "" {
		return name + " / " + refName(*r.Task)
	}
	return name
}

func refName(r model.Ref) string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

type Grid struct {
	View         model.View
	Anchor       time.Time
	Columns      []Column
	Rows         []Row
	ColumnTotals []float64
	// GrandTotal sums each row's stored all-time total, so it can exceed the
	// sum of the visible cells.
	GrandTotal float64
}

// TodayIndex returns the index of today's column or -1.
func (g Grid) TodayIndex() int {
	for i, c := range g.Columns {
		if c.Today {
			return i
		}
	}
	return -1
}

// Project builds the grid for entries. It never fails; missing buckets read
// as zero.
func Project(entries []model.TimeEntry, view model.View, anchor, today time.Time) Grid {
	cols := Columns(view, anchor, today)
	g := Grid{
		View:         view,
		Anchor:       anchor,
		Columns:      cols,
		Rows:         make([]Row, 0, len(entries)),
		ColumnTotals: make([]float64, len(cols)),
	}
	for _, e := range entries {
		row := Row{
			EntryID: e.ID,
			Project: e.Project,
			Task:    e.Task,
			Cells:   make([]float64, len(cols)),
			Total:   e.Total,
		}
		for i, c := range cols {
			v := e.Entries[c.Key]
			row.Cells[i] = v
			g.ColumnTotals[i] += v
		}
		g.GrandTotal += e.Total
		g.Rows = append(g.Rows, row)
	}
	return g
}

// Columns returns the visible days for view around anchor. Weekends are
// never shown in week and month views.
func Columns(view model.View, anchor, today time.Time) []Column {
	var days []time.Time
	switch view {
	case model.ViewDay:
		days = []time.Time{dateOf(anchor)}
	case model.ViewMonth:
		first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
		last := first.AddDate(0, 1, -1)
		end := weekStart(last).AddDate(0, 0, 6)
		for d := weekStart(first); !d.After(end); d = d.AddDate(0, 0, 1) {
			if isWeekday(d) {
				days = append(days, d)
			}
		}
	default:
		start := weekStart(anchor)
		for i := 0; i < 5; i++ {
			days = append(days, start.AddDate(0, 0, i))
		}
	}

	cols := make([]Column, len(days))
	for i, d := range days {
		cols[i] = Column{
			Date:  d,
			Key:   BucketKey(view, d),
			Label: columnLabel(view, d),
			Today: !today.IsZero() && sameDay(d, today),
		}
	}
	return cols
}

// BucketKey returns the key a row's entries map uses for date in view.
func BucketKey(view model.View, date time.Time) string {
	if view == model.ViewMonth {
		return date.Format(model.DateLayout)
	}
	return date.Format("Mon")
}

func columnLabel(view model.View, d time.Time) string {
	if view == model.ViewMonth {
		return d.Format("Mon 2")
	}
	return d.Format("Mon Jan 2")
}

// Shift moves anchor by steps units of view: days, weeks or months.
func Shift(view model.View, anchor time.Time, steps int) time.Time {
	switch view {
	case model.ViewDay:
		return anchor.AddDate(0, 0, steps)
	case model.ViewMonth:
		// Clamp to the 1st so Jan 31 + 1 month does not skip February.
		first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
		return first.AddDate(0, steps, 0)
	default:
		return anchor.AddDate(0, 0, 7*steps)
	}
}

// Range returns the first and last visible dates of the view.
func Range(view model.View, anchor time.Time) (time.Time, time.Time) {
	cols := Columns(view, anchor, time.Time{})
	if len(cols) == 0 {
		return time.Time{}, time.Time{}
	}
	return cols[0].Date, cols[len(cols)-1].Date
}

// Title is the heading shown above the grid.
func Title(view model.View, anchor time.Time) string {
	switch view {
	case model.ViewDay:
		return anchor.Format("Monday, Jan 2 2006")
	case model.ViewMonth:
		return anchor.Format("January 2006")
	default:
		from, to := Range(view, anchor)
		return fmt.Sprintf("%s to %s", from.Format("Jan 2"), to.Format("Jan 2 2006"))
	}
}

// FormatCell renders a cell: "2.50h", or "0.00" when empty.
func FormatCell(h float64) string {
	if h == 0 {
		return "0.00"
	}
	return FormatHours(h)
}

func FormatHours(h float64) string {
	return fmt.Sprintf("%.2fh", h)
}

func weekStart(t time.Time) time.Time {
	d := dateOf(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}
