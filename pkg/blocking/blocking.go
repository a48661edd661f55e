// pkg/blocking/blocking.go - running-process checks for removal targets.
//
// Uninstallers fail or hang when the target application is running, so the
// executor terminates matching processes before the first removal attempt.
// Matching is deliberately conservative: only exact process-name matches
// against an item's identifiers (with or without .exe) are touched.

package blocking

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/windowsadmins/reclaim/pkg/inventory"
	"github.com/windowsadmins/reclaim/pkg/logging"
)

// IsProcessRunning reports whether a process with the given executable name
// is currently running. The comparison ignores case and a trailing ".exe".
func IsProcessRunning(name string) bool {
	procs, err := process.Processes()
	if err != nil {
		logging.Error("Failed to list processes", "error", err.Error())
		return false
	}
	want := canonical(name)
	for _, proc := range procs {
		pname, err := proc.Name()
		if err != nil {
			continue
		}
		if canonical(pname) == want {
			return true
		}
	}
	return false
}

// runningFor returns the processes whose executable name exactly matches one
// of the item's identifiers.
func runningFor(item inventory.Item) []*process.Process {
	procs, err := process.Processes()
	if err != nil {
		logging.Error("Failed to list processes", "error", err.Error())
		return nil
	}

	wanted := make(map[string]struct{})
	for _, id := range item.Identifiers() {
		// Identifiers with path separators or package-name underscores are
		// never process names.
		if strings.ContainsAny(id, `\/_`) {
			continue
		}
		wanted[canonical(id)] = struct{}{}
	}
	if len(wanted) == 0 {
		return nil
	}

	var matched []*process.Process
	for _, proc := range procs {
		name, err := proc.Name()
		if err != nil {
			continue
		}
		if _, ok := wanted[canonical(name)]; ok {
			matched = append(matched, proc)
		}
	}
	return matched
}

// TerminateFor stops every process that exactly matches the item and returns
// how many were terminated. Failures to stop individual processes are logged
// and do not abort the removal; the uninstaller may still succeed.
func TerminateFor(ctx context.Context, item inventory.Item) int {
	matched := runningFor(item)
	terminated := 0
	for _, proc := range matched {
		if err := ctx.Err(); err != nil {
			return terminated
		}
		name, _ := proc.Name()
		if err := proc.TerminateWithContext(ctx); err != nil {
			if killErr := proc.KillWithContext(ctx); killErr != nil {
				logging.Warn("Could not stop running process",
					"item", item.PrimaryName, "process", name, "pid", proc.Pid,
					"error", killErr.Error())
				continue
			}
		}
		logging.Info("Stopped running process before removal",
			"item", item.PrimaryName, "process", name, "pid", proc.Pid)
		terminated++
	}
	return terminated
}

func canonical(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".exe")
}
