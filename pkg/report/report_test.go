package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/windowsadmins/reclaim/pkg/action"
	"github.com/windowsadmins/reclaim/pkg/diff"
)

func TestSummarize(t *testing.T) {
	outcomes := []action.Outcome{
		{Status: action.StatusSuccess, Method: "winget-uninstall"},
		{Status: action.StatusSuccess, Method: "winget-uninstall"},
		{Status: action.StatusSuccess, Method: "appx-remove"},
		{Status: action.StatusPartial},
		{Status: action.StatusFailed},
		{Status: action.StatusSkipped},
	}

	s := Summarize(outcomes)
	if s.Total != 6 || s.Succeeded != 3 || s.Partial != 1 || s.Failed != 1 || s.Skipped != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.ByMethod["winget-uninstall"] != 2 || s.ByMethod["appx-remove"] != 1 {
		t.Errorf("unexpected method counts: %v", s.ByMethod)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Total != 0 || s.ByMethod != nil {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestNewDiffStatsListsRemoved(t *testing.T) {
	result := diff.Compute(diff.NewSet("a"), diff.NewSet("a", "gone"))
	stats := NewDiffStats(result, false)
	if stats.Unchanged != 1 || stats.New != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if len(stats.Removed) != 1 || stats.Removed[0] != "gone" {
		t.Errorf("Removed = %v, want the identifier names", stats.Removed)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, 0)

	run := RunReport{
		StartedAt:  time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 8, 24, 12, 5, 0, 0, time.UTC),
		Passes: []Pass{
			{Name: "removal", Summary: Summary{Total: 1, Succeeded: 1}},
		},
	}

	path, err := w.Write(run)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var loaded RunReport
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if len(loaded.Passes) != 1 || loaded.Passes[0].Summary.Succeeded != 1 {
		t.Errorf("round trip lost data: %+v", loaded)
	}
}

func TestWriterPrunesOldReports(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, 2)

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		run := RunReport{StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if _, err := w.Write(run); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var kept []string
	for _, entry := range entries {
		kept = append(kept, entry.Name())
	}
	if len(kept) != 2 {
		t.Fatalf("kept %d reports, want 2: %v", len(kept), kept)
	}
	// The newest reports survive.
	want := filepath.Join(dir, "run-2026-08-24-120300.json")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("newest report missing: %v", err)
	}
}

func TestCollectHostFactsHasHostname(t *testing.T) {
	facts := CollectHostFacts()
	if facts.Hostname == "" {
		t.Skip("no hostname available in this environment")
	}
}
