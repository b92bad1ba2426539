package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sadopc/crewclock/internal/grid"
	"github.com/sadopc/crewclock/internal/model"
)

var anchor = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

func sampleGrid() grid.Grid {
	entries := []model.TimeEntry{
		{
			ID:      model.ConfirmedID("e1"),
			Project: model.Ref{ID: "p1", Name: "Project Alpha"},
			Entries: map[string]float64{"Mon": 1, "Tue": 2.5},
			Total:   10,
		},
		{
			ID:      model.ConfirmedID("e2"),
			Project: model.Ref{ID: "p2", Name: "Project Beta"},
			Task:    &model.Ref{ID: "t1", Name: "Login"},
			Entries: map[string]float64{"Fri": 0.5},
			Total:   0.5,
		},
		{
			ID:      model.PendingID("tok"),
			Project: model.Ref{ID: "p3"},
			Entries: map[string]float64{},
		},
	}
	return grid.Project(entries, model.ViewWeek, anchor, anchor)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records
}

// ============================================================
// CSV
// ============================================================

func TestToCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "week.csv")
	if err := ToCSV(sampleGrid(), path); err != nil {
		t.Fatalf("ToCSV: %v", err)
	}

	records := readCSV(t, path)
	// header + 3 rows + footer
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}

	header := records[0]
	want := []string{"Entry ID", "Project", "Task", "2024-03-04", "2024-03-05", "2024-03-06", "2024-03-07", "2024-03-08", "Period (h)", "Total (h)", "Total"}
	if strings.Join(header, ",") != strings.Join(want, ",") {
		t.Fatalf("header = %v", header)
	}

	alpha := records[1]
	if alpha[0] != "e1" || alpha[1] != "Project Alpha" || alpha[2] != "" {
		t.Fatalf("unexpected alpha row %v", alpha)
	}
	if alpha[3] != "1.00" || alpha[4] != "2.50" || alpha[8] != "3.50" || alpha[9] != "10.00" || alpha[10] != "10:00:00" {
		t.Fatalf("unexpected alpha hours %v", alpha)
	}

	beta := records[2]
	if beta[2] != "Login" || beta[7] != "0.50" {
		t.Fatalf("unexpected beta row %v", beta)
	}

	pending := records[3]
	if pending[1] != "p3" {
		t.Fatalf("nameless project should fall back to id, got %q", pending[1])
	}

	footer := records[4]
	if footer[1] != "Total" || footer[8] != "4.00" || footer[9] != "10.50" {
		t.Fatalf("unexpected footer %v", footer)
	}
}

func TestToCSVEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	g := grid.Project(nil, model.ViewDay, anchor, anchor)
	if err := ToCSV(g, path); err != nil {
		t.Fatal(err)
	}
	records := readCSV(t, path)
	if len(records) != 2 {
		t.Fatalf("expected header and footer only, got %d", len(records))
	}
}

func TestToCSVSpecialCharacters(t *testing.T) {
	g := grid.Project([]model.TimeEntry{{
		ID:      model.ConfirmedID("e1"),
		Project: model.Ref{ID: "p1", Name: `Project "Special", Inc`},
		Entries: map[string]float64{"Tue": 1},
		Total:   1,
	}}, model.ViewDay, anchor, anchor)
	path := filepath.Join(t.TempDir(), "special.csv")
	if err := ToCSV(g, path); err != nil {
		t.Fatal(err)
	}
	records := readCSV(t, path)
	if records[1][1] != `Project "Special", Inc` {
		t.Fatalf("project name mangled: %q", records[1][1])
	}
}

func TestToCSVBadPath(t *testing.T) {
	if err := ToCSV(sampleGrid(), "/nonexistent/dir/file.csv"); err == nil {
		t.Fatal("expected error for bad path")
	}
}

// ============================================================
// JSON
// ============================================================

func TestToJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "week.json")
	if err := ToJSON(sampleGrid(), path); err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var result jsonExport
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if result.View != model.ViewWeek || result.PeriodStart != "2024-03-04" || result.PeriodEnd != "2024-03-08" {
		t.Fatalf("unexpected period %+v", result)
	}
	if result.Count != 3 || len(result.Rows) != 3 || len(result.Columns) != 5 {
		t.Fatalf("unexpected sizes %+v", result)
	}
	if result.GrandTotal != 10.5 {
		t.Fatalf("grand total = %v", result.GrandTotal)
	}
	if _, err := time.Parse(time.RFC3339, result.ExportedAt); err != nil {
		t.Fatalf("exported_at is not RFC3339: %q", result.ExportedAt)
	}

	alpha := result.Rows[0]
	if alpha.Hours["2024-03-05"] != 2.5 || alpha.PeriodHours != 3.5 || alpha.TotalHours != 10 {
		t.Fatalf("unexpected alpha %+v", alpha)
	}
	if _, ok := alpha.Hours["2024-03-06"]; ok {
		t.Fatal("empty cells should be omitted")
	}
	beta := result.Rows[1]
	if beta.TaskID != "t1" || beta.Task != "Login" {
		t.Fatalf("unexpected beta %+v", beta)
	}
	if !result.Rows[2].Pending {
		t.Fatal("pending row should be flagged")
	}
}

func TestToJSONPrettyPrinted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pretty.json")
	if err := ToJSON(sampleGrid(), path); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "\n  ") {
		t.Fatal("JSON should be indented")
	}
}

func TestToJSONBadPath(t *testing.T) {
	if err := ToJSON(sampleGrid(), "/nonexistent/dir/file.json"); err == nil {
		t.Fatal("expected error for bad path")
	}
}

// ============================================================
// formatDuration (internal helper)
// ============================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		hours float64
		want  string
	}{
		{0, "00:00:00"},
		{0.01, "00:00:36"},
		{0.5, "00:30:00"},
		{1, "01:00:00"},
		{25.5, "25:30:00"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.hours); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.hours, got, tt.want)
		}
	}
}
