// pkg/engine/engine.go - the convergence pipeline.
//
// One run is two passes over a single inventory collection:
//
//	removal:  items newly observed since the last run are matched against
//	          the bloatware list and driven to absence.
//	required: essential apps missing from the inventory (or below their
//	          minimum version) are driven to presence.
//
// Each pass diffs against its own snapshot; unchanged items are skipped
// unless a full scan is forced. Snapshots record what was observed, not what
// was acted on, so a failed removal reappears as new work next run only if
// it is still present.

package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/windowsadmins/reclaim/pkg/action"
	"github.com/windowsadmins/reclaim/pkg/config"
	"github.com/windowsadmins/reclaim/pkg/diff"
	"github.com/windowsadmins/reclaim/pkg/filter"
	"github.com/windowsadmins/reclaim/pkg/inventory"
	"github.com/windowsadmins/reclaim/pkg/logging"
	"github.com/windowsadmins/reclaim/pkg/match"
	"github.com/windowsadmins/reclaim/pkg/report"
	"github.com/windowsadmins/reclaim/pkg/retry"
	"github.com/windowsadmins/reclaim/pkg/snapshot"
	"github.com/windowsadmins/reclaim/pkg/version"
)

// Options control one run.
type Options struct {
	CheckOnly     bool
	ForceFullScan bool
	SkipRemoval   bool
	SkipRequired  bool
	Target        *filter.Filter
}

// Engine wires the pipeline's collaborators together.
type Engine struct {
	cfg      *config.Configuration
	sources  []inventory.Source
	store    *snapshot.Store
	executor *action.Executor
	reports  *report.Writer
}

// New builds an engine from its collaborators.
func New(cfg *config.Configuration, sources []inventory.Source, store *snapshot.Store, executor *action.Executor, reports *report.Writer) *Engine {
	return &Engine{
		cfg:      cfg,
		sources:  sources,
		store:    store,
		executor: executor,
		reports:  reports,
	}
}

// Run executes one full convergence run and returns the report. An error is
// returned only when no work could be done at all (every inventory source
// failed, or the context was cancelled); per-item failures are recorded in
// the report instead.
func (e *Engine) Run(ctx context.Context, opts Options) (report.RunReport, error) {
	run := report.RunReport{
		StartedAt: time.Now(),
		SessionID: logging.GetSessionID(),
		Version:   version.Version().Version,
		CheckOnly: opts.CheckOnly,
		Host:      report.CollectHostFacts(),
	}

	logging.Info("Starting convergence run",
		"checkonly", opts.CheckOnly, "fullscan", opts.ForceFullScan)

	// A fully failed collection is usually transient (a package manager
	// busy updating its own sources), so it is retried before giving up.
	var collected [][]inventory.RawRecord
	err := retry.Retry(ctx, retry.DefaultConfig(), func() error {
		var collectErr error
		collected, collectErr = inventory.CollectAll(ctx, e.sources)
		return collectErr
	})
	if err != nil {
		return run, fmt.Errorf("inventory collection: %w", err)
	}
	items, skipped := inventory.Normalize(collected)
	current := diff.FromItems(items)
	logging.Info("Inventory collected",
		"items", len(items), "identifiers", current.Len(), "skipped", skipped)

	if !opts.SkipRemoval {
		pass, err := e.removalPass(ctx, opts, items, current)
		if err != nil {
			return run, err
		}
		run.Passes = append(run.Passes, pass)
	}
	if !opts.SkipRequired {
		pass, ran, err := e.requiredPass(ctx, opts, items, current)
		if err != nil {
			return run, err
		}
		if ran {
			run.Passes = append(run.Passes, pass)
		}
	}

	run.FinishedAt = time.Now()
	e.writeReport(run)
	return run, nil
}

// removalPass drives newly observed bloatware to absence.
func (e *Engine) removalPass(ctx context.Context, opts Options, items []inventory.Item, current *diff.Set) (report.Pass, error) {
	previous, err := e.store.Load(snapshot.PurposeRemoval)
	if err != nil {
		return report.Pass{}, err
	}
	result := diff.Compute(current, previous)
	fullScan := e.shouldFullScan(opts, result)

	candidates := items
	if !fullScan {
		candidates = diff.FilterItems(items, result.New)
	}
	logging.Info("Removal pass diff",
		"new", result.New.Len(), "unchanged", result.Unchanged.Len(),
		"removed", result.Removed.Len(), "firstrun", result.FirstRun, "fullscan", fullScan)
	for _, id := range result.Removed.Values() {
		logging.Info("Identifier left the system since last run", "identifier", id)
	}

	patterns := match.ParsePatterns(e.cfg.BloatwarePatterns())
	records := match.Match(candidates, patterns)
	records = e.dropProtected(records)
	records = opts.Target.Apply(records)
	logging.Info("Removal targets matched", "count", len(records))

	outcomes := e.executor.ExecuteAll(ctx, records, action.ModeRemove)
	if err := ctx.Err(); err != nil {
		return report.Pass{}, err
	}

	e.persist(snapshot.PurposeRemoval, current, opts)

	return report.Pass{
		Name:     "removal",
		Diff:     report.NewDiffStats(result, fullScan),
		Summary:  report.Summarize(outcomes),
		Outcomes: outcomes,
	}, nil
}

// requiredPass drives missing or outdated essential apps to presence. The
// second return value is false when the pass was skipped entirely.
func (e *Engine) requiredPass(ctx context.Context, opts Options, items []inventory.Item, current *diff.Set) (report.Pass, bool, error) {
	patterns := match.ParsePatterns(e.cfg.EssentialPatterns())
	if len(patterns) == 0 {
		return report.Pass{}, false, nil
	}

	previous, err := e.store.Load(snapshot.PurposeRequired)
	if err != nil {
		return report.Pass{}, false, err
	}
	result := diff.Compute(current, previous)
	fullScan := e.shouldFullScan(opts, result)

	// When nothing changed since the last run, the requirement answers
	// cannot have changed either.
	if !result.FirstRun && !fullScan && result.New.Len() == 0 && result.Removed.Len() == 0 {
		logging.Info("Required pass skipped, inventory unchanged")
		return report.Pass{}, false, nil
	}

	present := match.Match(items, patterns)
	var installRecords []match.Record
	for _, pattern := range match.MissingPatterns(patterns, present) {
		installRecords = append(installRecords, match.Record{
			Pattern: pattern,
			Item:    action.InstallCandidate(pattern.Name),
		})
	}
	for _, record := range present {
		if !record.MeetsMinVersion() {
			logging.Info("Essential app below minimum version",
				"item", record.Item.PrimaryName, "pattern", record.Pattern.Raw)
			installRecords = append(installRecords, record)
		}
	}
	installRecords = opts.Target.Apply(installRecords)
	logging.Info("Required pass",
		"patterns", len(patterns), "present", len(present), "toinstall", len(installRecords))

	outcomes := e.executor.ExecuteAll(ctx, installRecords, action.ModeInstall)
	if err := ctx.Err(); err != nil {
		return report.Pass{}, false, err
	}

	e.persist(snapshot.PurposeRequired, current, opts)

	return report.Pass{
		Name:     "required",
		Diff:     report.NewDiffStats(result, fullScan),
		Summary:  report.Summarize(outcomes),
		Outcomes: outcomes,
	}, true, nil
}

// shouldFullScan decides whether to bypass the diff optimization for a pass.
// An empty diff against an existing snapshot can optionally trigger a full
// scan, which catches items that predate pattern list changes.
func (e *Engine) shouldFullScan(opts Options, result diff.Result) bool {
	if opts.ForceFullScan {
		return true
	}
	return e.cfg.FullScanOnEmptyDiff && !result.FirstRun &&
		result.New.Len() == 0 && result.Removed.Len() == 0
}

// dropProtected removes records whose item also matches the protected list.
func (e *Engine) dropProtected(records []match.Record) []match.Record {
	protected := match.ParsePatterns(e.cfg.ProtectedApps)
	if len(protected) == 0 {
		return records
	}
	var kept []match.Record
	for _, record := range records {
		if hits := match.Match([]inventory.Item{record.Item}, protected); len(hits) > 0 {
			logging.Info("Skipping protected item",
				"item", record.Item.PrimaryName, "protected", hits[0].Pattern.Raw)
			continue
		}
		kept = append(kept, record)
	}
	return kept
}

// persist records the observed identifier set. Check-only runs never write
// state; a persistence failure is a warning, since the next run degrades to
// first-run semantics at worst.
func (e *Engine) persist(purpose snapshot.Purpose, current *diff.Set, opts Options) {
	if opts.CheckOnly {
		logging.Debug("Check-only: snapshot not updated", "purpose", string(purpose))
		return
	}
	hostname, _ := os.Hostname()
	meta := snapshot.Metadata{
		CapturedAt: time.Now(),
		Hostname:   hostname,
		Version:    version.Version().Version,
		SessionID:  logging.GetSessionID(),
	}
	if err := e.store.Save(purpose, current, meta); err != nil {
		logging.Warn("Snapshot not persisted, next run will reprocess",
			"purpose", string(purpose), "error", err.Error())
	}
}

func (e *Engine) writeReport(run report.RunReport) {
	if e.reports == nil {
		return
	}
	path, err := e.reports.Write(run)
	if err != nil {
		logging.Warn("Run report not written", "error", err.Error())
		return
	}
	logging.Info("Run report written", "path", path)
}
