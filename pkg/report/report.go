// pkg/report/report.go - per-run convergence reports.
//
// Every run emits one JSON report to the reports directory: host facts, the
// diff statistics of each pass, and the per-item outcomes. Reports are audit
// artifacts; a failure to write one is logged and never fails the run.

package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/windowsadmins/reclaim/pkg/action"
	"github.com/windowsadmins/reclaim/pkg/diff"
	"github.com/windowsadmins/reclaim/pkg/logging"
)

// Summary aggregates the outcomes of one pass.
type Summary struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Partial   int            `json:"partial"`
	Failed    int            `json:"failed"`
	Skipped   int            `json:"skipped"`
	ByMethod  map[string]int `json:"by_method,omitempty"`
}

// Summarize folds outcomes into a Summary.
func Summarize(outcomes []action.Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch o.Status {
		case action.StatusSuccess:
			s.Succeeded++
		case action.StatusPartial:
			s.Partial++
		case action.StatusFailed:
			s.Failed++
		case action.StatusSkipped:
			s.Skipped++
		}
		if o.Method != "" && o.Status == action.StatusSuccess {
			if s.ByMethod == nil {
				s.ByMethod = make(map[string]int)
			}
			s.ByMethod[o.Method]++
		}
	}
	return s
}

// DiffStats records the size of each diff bucket for one pass.
type DiffStats struct {
	New       int      `json:"new"`
	Unchanged int      `json:"unchanged"`
	Removed   []string `json:"removed,omitempty"`
	FirstRun  bool     `json:"first_run"`
	FullScan  bool     `json:"full_scan"`
}

// NewDiffStats captures a diff result. Removed identifiers are listed in
// full: they are informational (the entity left between runs without an
// action of ours) and operators want the names, not a count.
func NewDiffStats(result diff.Result, fullScan bool) DiffStats {
	return DiffStats{
		New:       result.New.Len(),
		Unchanged: result.Unchanged.Len(),
		Removed:   result.Removed.Values(),
		FirstRun:  result.FirstRun,
		FullScan:  fullScan,
	}
}

// Pass is the report section for one convergence pass.
type Pass struct {
	Name     string           `json:"name"`
	Diff     DiffStats        `json:"diff"`
	Summary  Summary          `json:"summary"`
	Outcomes []action.Outcome `json:"outcomes,omitempty"`
}

// HostFacts identifies the machine a report came from.
type HostFacts struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelArch      string `json:"kernel_arch"`
	UptimeSeconds   uint64 `json:"uptime_seconds"`
}

// RunReport is the full per-run audit artifact.
type RunReport struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	SessionID  string    `json:"session_id,omitempty"`
	Version    string    `json:"version,omitempty"`
	CheckOnly  bool      `json:"check_only"`
	Host       HostFacts `json:"host"`
	Passes     []Pass    `json:"passes"`
}

// CollectHostFacts gathers host identification for the report. Failures
// degrade to whatever os.Hostname can provide.
func CollectHostFacts() HostFacts {
	facts := HostFacts{}
	if name, err := os.Hostname(); err == nil {
		facts.Hostname = name
	}
	info, err := host.Info()
	if err != nil {
		logging.Debug("Host facts unavailable", "error", err.Error())
		return facts
	}
	if info.Hostname != "" {
		facts.Hostname = info.Hostname
	}
	facts.OS = info.OS
	facts.Platform = info.Platform
	facts.PlatformVersion = info.PlatformVersion
	facts.KernelArch = info.KernelArch
	facts.UptimeSeconds = info.Uptime
	return facts
}

// Writer persists run reports under one directory.
type Writer struct {
	dir     string
	maxKeep int
}

// NewWriter returns a report writer rooted at dir, keeping at most maxKeep
// report files (0 means keep everything).
func NewWriter(dir string, maxKeep int) *Writer {
	return &Writer{dir: dir, maxKeep: maxKeep}
}

// Write serializes the report to reports/run-<timestamp>.json and prunes old
// reports. Errors are returned for the caller to log; they must not abort
// the run.
func (w *Writer) Write(report RunReport) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("creating reports directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serializing report: %w", err)
	}

	name := fmt.Sprintf("run-%s.json", report.StartedAt.Format("2006-01-02-150405"))
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}

	w.prune()
	return path, nil
}

func (w *Writer) prune() {
	if w.maxKeep <= 0 {
		return
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || len(name) < 9 || name[:4] != "run-" || filepath.Ext(name) != ".json" {
			continue
		}
		names = append(names, name)
	}
	if len(names) <= w.maxKeep {
		return
	}
	sort.Strings(names) // timestamped names sort chronologically
	for _, name := range names[:len(names)-w.maxKeep] {
		if err := os.Remove(filepath.Join(w.dir, name)); err != nil {
			logging.Debug("Could not prune old report", "file", name, "error", err.Error())
		}
	}
}
