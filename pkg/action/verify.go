// pkg/action/verify.go - source-of-truth presence checks.
//
// A method's exit status never decides an outcome; these checks re-query the
// item's own origin after each clean attempt. For removals the entity must be
// gone (or disabled, for services, tasks and features); for installs it must
// be present.

package action

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/windowsadmins/reclaim/pkg/command"
	"github.com/windowsadmins/reclaim/pkg/inventory"
)

// defaultVerify dispatches to the origin-specific presence check.
func defaultVerify(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) (bool, error) {
	switch item.Origin {
	case inventory.OriginWinget:
		return verifyWinget(ctx, runner, item, timeout)
	case inventory.OriginChoco:
		return verifyChoco(ctx, runner, item, timeout)
	case inventory.OriginAppx:
		return verifyAppx(ctx, runner, item, timeout)
	case inventory.OriginProvisioned:
		return verifyProvisioned(ctx, runner, item, timeout)
	case inventory.OriginRegistry:
		return verifyRegistry(ctx, runner, item, timeout)
	case inventory.OriginFeature:
		return verifyFeature(ctx, runner, item, timeout)
	case inventory.OriginService:
		return verifyService(ctx, runner, item, timeout)
	case inventory.OriginTask:
		return verifyTask(ctx, runner, item, timeout)
	case inventory.OriginShortcut:
		return verifyFile(item)
	case inventory.OriginStartup:
		return verifyStartup(ctx, runner, item, timeout)
	default:
		return false, fmt.Errorf("no verification for origin %s", item.Origin)
	}
}

// queryPresence interprets a lookup command whose nonzero exit means "not
// found". A negative exit code means the tool itself did not run, which is a
// verification failure rather than an absence.
func queryPresence(result command.Result, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if result.ExitCode >= 0 {
		return false, nil
	}
	return false, err
}

func verifyWinget(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) (bool, error) {
	id := wingetIdentifier(item)
	result, err := runner.Run(ctx, "winget",
		[]string{"list", "--exact", "--id", id, "--accept-source-agreements", "--disable-interactivity"}, timeout)
	present, err := queryPresence(result, err)
	if err != nil || !present {
		return present, err
	}
	// winget exits zero with an empty table in some locales; require the id
	// in the output.
	return strings.Contains(strings.ToLower(result.Stdout), strings.ToLower(id)), nil
}

func verifyChoco(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) (bool, error) {
	name := item.PrimaryName
	result, err := runner.Run(ctx, "choco",
		[]string{"list", "--exact", name, "--limit-output"}, timeout)
	if err != nil {
		return queryPresence(result, err)
	}
	// choco list exits zero even with no matches; a match prints "name|version".
	prefix := strings.ToLower(name) + "|"
	for _, line := range strings.Split(result.Stdout, "\n") {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), prefix) {
			return true, nil
		}
	}
	return false, nil
}

func verifyAppx(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) (bool, error) {
	script := fmt.Sprintf(
		"if (Get-AppxPackage -AllUsers -Name '%s') { exit 0 } else { exit 1 }",
		psEscape(item.PrimaryName))
	result, err := runner.Run(ctx, "powershell.exe", psArgs(script), timeout)
	return queryPresence(result, err)
}

func verifyProvisioned(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) (bool, error) {
	script := fmt.Sprintf(
		"if (Get-AppxProvisionedPackage -Online | Where-Object {$_.DisplayName -eq '%s'}) { exit 0 } else { exit 1 }",
		psEscape(item.PrimaryName))
	result, err := runner.Run(ctx, "powershell.exe", psArgs(script), timeout)
	return queryPresence(result, err)
}

func verifyRegistry(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) (bool, error) {
	keyPath := item.Metadata["KeyPath"]
	if keyPath == "" {
		return false, fmt.Errorf("no registry key path for %s", item.PrimaryName)
	}
	result, err := runner.Run(ctx, "reg", []string{"query", `HKLM\` + keyPath}, timeout)
	present, err := queryPresence(result, err)
	if err != nil || present {
		return present, err
	}
	result, err = runner.Run(ctx, "reg", []string{"query", `HKCU\` + keyPath}, timeout)
	return queryPresence(result, err)
}

func verifyFeature(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) (bool, error) {
	// Presence means "still enabled"; a disabled feature counts as converged.
	script := fmt.Sprintf(
		"if ((Get-WindowsOptionalFeature -Online -FeatureName '%s').State -eq 'Enabled') { exit 0 } else { exit 1 }",
		psEscape(item.PrimaryName))
	result, err := runner.Run(ctx, "powershell.exe", psArgs(script), timeout)
	return queryPresence(result, err)
}

func verifyService(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) (bool, error) {
	// Presence means "not disabled". A deleted service also counts as gone.
	result, err := runner.Run(ctx, "sc", []string{"qc", serviceName(item)}, timeout)
	present, err := queryPresence(result, err)
	if err != nil || !present {
		return present, err
	}
	return !strings.Contains(result.Stdout, "DISABLED"), nil
}

func verifyTask(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) (bool, error) {
	// Presence means the task exists and is not disabled.
	result, err := runner.Run(ctx, "schtasks",
		[]string{"/Query", "/TN", taskPath(item), "/FO", "CSV", "/NH"}, timeout)
	present, err := queryPresence(result, err)
	if err != nil || !present {
		return present, err
	}
	return !strings.Contains(result.Stdout, "Disabled"), nil
}

// verifyStartup checks a registry Run value when one was recorded, otherwise
// the startup-folder file.
func verifyStartup(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) (bool, error) {
	keyPath := item.Metadata["KeyPath"]
	if keyPath == "" {
		return verifyFile(item)
	}
	result, err := runner.Run(ctx, "reg",
		[]string{"query", `HKLM\` + keyPath, "/v", item.PrimaryName}, timeout)
	present, err := queryPresence(result, err)
	if err != nil || present {
		return present, err
	}
	result, err = runner.Run(ctx, "reg",
		[]string{"query", `HKCU\` + keyPath, "/v", item.PrimaryName}, timeout)
	return queryPresence(result, err)
}

func verifyFile(item inventory.Item) (bool, error) {
	path := altMatching(item, func(s string) bool { return strings.Contains(s, `\`) })
	if path == "" {
		return false, fmt.Errorf("no path to verify for %s", item.PrimaryName)
	}
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func psArgs(script string) []string {
	return []string{"-NoLogo", "-NoProfile", "-NonInteractive", "-Command", script}
}
