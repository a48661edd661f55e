// pkg/action/executor.go - convergence action execution.
//
// The executor drives each matched item through its origin's ordered method
// chain: attempt a method, re-query the source of truth, and either stop on
// a verified state change or fall through to the next method. Independent
// items run on a bounded worker pool; items sharing a canonical identifier
// are serialized onto the same worker so no identifier ever has two in-flight
// actions. Invocations of a shared external tool (winget, choco) are
// additionally serialized because those tools do not tolerate concurrent
// self-invocation.

package action

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/windowsadmins/reclaim/pkg/blocking"
	"github.com/windowsadmins/reclaim/pkg/command"
	"github.com/windowsadmins/reclaim/pkg/inventory"
	"github.com/windowsadmins/reclaim/pkg/logging"
	"github.com/windowsadmins/reclaim/pkg/match"
)

// Mode selects the convergence direction.
type Mode string

const (
	ModeRemove  Mode = "remove"
	ModeInstall Mode = "install"
)

// Status is the terminal state of one item's convergence attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial" // a method reported success but verification still sees the entity
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Outcome records the result of processing one matched item.
type Outcome struct {
	Item     inventory.Item `json:"item"`
	Pattern  string         `json:"pattern"`
	Strategy string         `json:"strategy,omitempty"`
	Mode     Mode           `json:"mode"`
	Status   Status         `json:"status"`
	Method   string         `json:"method,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration_ns"`
}

// Config holds the executor's collaborators and tuning knobs.
type Config struct {
	Runner         command.Runner
	Workers        int
	PackageTimeout time.Duration
	LongOpTimeout  time.Duration
	CheckOnly      bool

	// Verify overrides the default source-of-truth re-query; tests use it.
	Verify VerifyFunc

	// Terminate overrides the pre-removal process termination; tests use it.
	Terminate TerminateFunc
}

// TerminateFunc stops running processes belonging to an item before removal
// methods run, returning how many were stopped.
type TerminateFunc func(ctx context.Context, item inventory.Item) int

// VerifyFunc re-queries an item's origin and reports whether the entity is
// still present (or still active, for services/tasks/features).
type VerifyFunc func(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) (present bool, err error)

// Executor runs convergence actions for matched items.
type Executor struct {
	runner         command.Runner
	workers        int
	packageTimeout time.Duration
	longOpTimeout  time.Duration
	checkOnly      bool
	verify         VerifyFunc
	terminate      TerminateFunc

	toolMu    sync.Mutex
	toolLocks map[string]*sync.Mutex
}

// NewExecutor builds an executor from the given configuration, applying
// defaults for unset fields.
func NewExecutor(cfg Config) *Executor {
	e := &Executor{
		runner:         cfg.Runner,
		workers:        cfg.Workers,
		packageTimeout: cfg.PackageTimeout,
		longOpTimeout:  cfg.LongOpTimeout,
		checkOnly:      cfg.CheckOnly,
		verify:         cfg.Verify,
		terminate:      cfg.Terminate,
		toolLocks:      make(map[string]*sync.Mutex),
	}
	if e.workers <= 0 {
		e.workers = 8
	}
	if e.packageTimeout <= 0 {
		e.packageTimeout = 300 * time.Second
	}
	if e.longOpTimeout <= 0 {
		e.longOpTimeout = 3600 * time.Second
	}
	if e.verify == nil {
		e.verify = defaultVerify
	}
	if e.terminate == nil {
		e.terminate = blocking.TerminateFor
	}
	return e
}

// ExecuteAll processes the matched records and returns one outcome per
// record. Individual failures never abort the batch.
func (e *Executor) ExecuteAll(ctx context.Context, records []match.Record, mode Mode) []Outcome {
	if len(records) == 0 {
		return nil
	}

	groups := groupByIdentifier(records)
	outcomes := make([]Outcome, len(records))

	jobs := make(chan []indexedRecord)
	var wg sync.WaitGroup
	workers := e.workers
	if workers > len(groups) {
		workers = len(groups)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range jobs {
				for _, entry := range group {
					outcomes[entry.index] = e.Execute(ctx, entry.record, mode)
				}
			}
		}()
	}

	for _, group := range groups {
		jobs <- group
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

// Execute drives one matched item to a terminal state.
func (e *Executor) Execute(ctx context.Context, record match.Record, mode Mode) Outcome {
	start := time.Now()
	item := record.Item
	outcome := Outcome{
		Item:     item,
		Pattern:  record.Pattern.Raw,
		Strategy: string(record.Strategy),
		Mode:     mode,
	}

	if e.checkOnly {
		outcome.Status = StatusSkipped
		outcome.Method = "checkonly"
		outcome.Duration = time.Since(start)
		logging.Info("Check-only: would act on item",
			"item", item.PrimaryName, "origin", string(item.Origin), "mode", string(mode))
		return outcome
	}

	methods := methodsFor(item.Origin, mode)
	if len(methods) == 0 {
		outcome.Status = StatusSkipped
		outcome.Error = fmt.Sprintf("no %s methods for origin %s", mode, item.Origin)
		outcome.Duration = time.Since(start)
		return outcome
	}

	if mode == ModeRemove {
		e.terminate(ctx, item)
	}

	var lastErr error
	cleanAttempt := false

	for _, method := range methods {
		if err := ctx.Err(); err != nil {
			outcome.Status = StatusFailed
			outcome.Error = err.Error()
			outcome.Duration = time.Since(start)
			return outcome
		}

		logging.Debug("Attempting method",
			"item", item.PrimaryName, "origin", string(item.Origin), "method", method.Name)

		err := e.runMethod(ctx, method, item)
		if err != nil {
			lastErr = err
			logging.Warn("Method attempt failed",
				"item", item.PrimaryName, "method", method.Name, "error", err.Error())
			continue
		}
		cleanAttempt = true

		// A method's own exit status is not trusted; only a verified state
		// change counts.
		converged, verifyErr := e.verifyConverged(ctx, item, mode)
		if verifyErr != nil {
			lastErr = verifyErr
			logging.Warn("Verification failed after method",
				"item", item.PrimaryName, "method", method.Name, "error", verifyErr.Error())
			continue
		}
		if converged {
			outcome.Status = StatusSuccess
			outcome.Method = method.Name
			outcome.Duration = time.Since(start)
			logging.Info("Item converged",
				"item", item.PrimaryName, "origin", string(item.Origin),
				"mode", string(mode), "method", method.Name)
			return outcome
		}

		logging.Debug("Method reported success without verified effect, trying next",
			"item", item.PrimaryName, "method", method.Name)
	}

	outcome.Duration = time.Since(start)
	if cleanAttempt {
		// Some component of a multi-part entity may remain (e.g. the
		// provisioned image record behind an app package).
		outcome.Status = StatusPartial
		if lastErr != nil {
			outcome.Error = lastErr.Error()
		}
		logging.Warn("Item partially converged, all methods exhausted",
			"item", item.PrimaryName, "origin", string(item.Origin))
		return outcome
	}

	outcome.Status = StatusFailed
	if lastErr != nil {
		outcome.Error = lastErr.Error()
	}
	logging.Error("Item failed to converge",
		"item", item.PrimaryName, "origin", string(item.Origin), "error", outcome.Error)
	return outcome
}

// runMethod runs one method attempt, holding the shared-tool lock when the
// method's tool cannot be invoked concurrently.
func (e *Executor) runMethod(ctx context.Context, method Method, item inventory.Item) error {
	if method.Tool != "" {
		lock := e.toolLock(method.Tool)
		lock.Lock()
		defer lock.Unlock()
	}
	return method.Run(ctx, e.runner, item, e.timeoutFor(method))
}

func (e *Executor) toolLock(tool string) *sync.Mutex {
	e.toolMu.Lock()
	defer e.toolMu.Unlock()
	lock, ok := e.toolLocks[tool]
	if !ok {
		lock = &sync.Mutex{}
		e.toolLocks[tool] = lock
	}
	return lock
}

// verifyConverged re-queries the item's source of truth. Remove mode
// requires absence; install mode requires presence.
func (e *Executor) verifyConverged(ctx context.Context, item inventory.Item, mode Mode) (bool, error) {
	timeout := e.packageTimeout
	present, err := e.verify(ctx, e.runner, item, timeout)
	if err != nil {
		return false, err
	}
	if mode == ModeInstall {
		return present, nil
	}
	return !present, nil
}

// timeoutFor picks the per-invocation timeout for a method.
func (e *Executor) timeoutFor(method Method) time.Duration {
	if method.LongRunning {
		return e.longOpTimeout
	}
	return e.packageTimeout
}

type indexedRecord struct {
	index  int
	record match.Record
}

// groupByIdentifier partitions records into groups sharing any canonical
// identifier (case-insensitive). Groups are independent and safe to run
// concurrently; records within a group run sequentially.
func groupByIdentifier(records []match.Record) [][]indexedRecord {
	parent := make([]int, len(records))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	owner := make(map[string]int)
	for i, record := range records {
		for _, id := range record.Item.Identifiers() {
			key := strings.ToLower(id)
			if prev, ok := owner[key]; ok {
				union(prev, i)
			} else {
				owner[key] = i
			}
		}
	}

	grouped := make(map[int][]indexedRecord)
	for i, record := range records {
		root := find(i)
		grouped[root] = append(grouped[root], indexedRecord{index: i, record: record})
	}

	groups := make([][]indexedRecord, 0, len(grouped))
	for _, group := range grouped {
		groups = append(groups, group)
	}
	return groups
}
