// pkg/action/methods.go - per-origin method chains.
//
// Each origin defines an ordered list of (name, fn) candidate methods. The
// executor iterates the list uniformly, so adding a fallback method for an
// origin is a table edit, not new control flow.

package action

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/windowsadmins/reclaim/pkg/command"
	"github.com/windowsadmins/reclaim/pkg/inventory"
)

// Method is one candidate removal or installation technique for an origin.
type Method struct {
	Name        string
	Tool        string // shared-tool serialization key; empty when safe to run concurrently
	LongRunning bool   // uses the long-operation timeout (servicing tools)
	Run         func(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error
}

// methodsFor returns the ordered method chain for an origin and mode.
func methodsFor(origin inventory.Origin, mode Mode) []Method {
	if mode == ModeInstall {
		return installMethods[origin]
	}
	return removeMethods[origin]
}

var removeMethods = map[inventory.Origin][]Method{
	inventory.OriginWinget: {
		{Name: "winget-uninstall", Tool: "winget", Run: wingetUninstall},
		{Name: "registry-uninstall-string", Run: registryUninstallString},
	},
	inventory.OriginChoco: {
		{Name: "choco-uninstall", Tool: "choco", Run: chocoUninstall},
		{Name: "registry-uninstall-string", Run: registryUninstallString},
	},
	inventory.OriginAppx: {
		{Name: "appx-remove", Tool: "powershell", Run: appxRemove},
		{Name: "provisioned-remove", Tool: "powershell", Run: provisionedRemove},
	},
	inventory.OriginProvisioned: {
		{Name: "provisioned-remove", Tool: "powershell", Run: provisionedRemove},
		{Name: "dism-remove-provisioned", Tool: "dism", LongRunning: true, Run: dismRemoveProvisioned},
		{Name: "appx-remove-allusers", Tool: "powershell", Run: appxRemove},
	},
	inventory.OriginRegistry: {
		{Name: "quiet-uninstall-string", Run: quietUninstallString},
		{Name: "uninstall-string", Run: registryUninstallString},
		{Name: "msiexec-uninstall", Tool: "msiexec", Run: msiexecUninstall},
	},
	inventory.OriginFeature: {
		{Name: "dism-disable-feature", Tool: "dism", LongRunning: true, Run: dismDisableFeature},
		{Name: "powershell-disable-feature", Tool: "powershell", LongRunning: true, Run: psDisableFeature},
	},
	inventory.OriginService: {
		{Name: "sc-stop-disable", Run: scStopDisable},
		{Name: "powershell-disable-service", Tool: "powershell", Run: psDisableService},
	},
	inventory.OriginTask: {
		{Name: "schtasks-disable", Run: schtasksDisable},
		{Name: "schtasks-delete", Run: schtasksDelete},
	},
	inventory.OriginShortcut: {
		{Name: "delete-shortcut", Run: deleteShortcut},
	},
	inventory.OriginStartup: {
		{Name: "remove-startup-entry", Run: removeStartupEntry},
	},
}

var installMethods = map[inventory.Origin][]Method{
	inventory.OriginWinget: {
		{Name: "winget-install", Tool: "winget", Run: wingetInstall},
		{Name: "choco-install", Tool: "choco", Run: chocoInstall},
	},
	inventory.OriginChoco: {
		{Name: "choco-install", Tool: "choco", Run: chocoInstall},
		{Name: "winget-install", Tool: "winget", Run: wingetInstall},
	},
}

// InstallCandidate synthesizes an item for an essential app that is missing
// from the inventory, so the install chain has something to act on.
func InstallCandidate(name string) inventory.Item {
	return inventory.Item{
		PrimaryName: name,
		Origin:      inventory.OriginWinget,
		Metadata:    map[string]string{"Id": name},
	}
}

// altMatching returns the first alternate identifier the predicate accepts.
func altMatching(item inventory.Item, pred func(string) bool) string {
	for _, alt := range item.AlternateIdentifiers {
		if pred(alt) {
			return alt
		}
	}
	return ""
}

// wingetIdentifier prefers the package Id over the display name; winget's
// --exact matching works on Ids. Ids have the Publisher.Name shape.
func wingetIdentifier(item inventory.Item) string {
	if id := item.Metadata["Id"]; id != "" {
		return id
	}
	if id := altMatching(item, func(s string) bool {
		return strings.Contains(s, ".") && !strings.ContainsAny(s, " \t")
	}); id != "" {
		return id
	}
	return item.PrimaryName
}

func wingetUninstall(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	args := []string{"uninstall", "--exact", "--id", wingetIdentifier(item),
		"--silent", "--accept-source-agreements", "--disable-interactivity"}
	_, err := runner.Run(ctx, "winget", args, timeout)
	return err
}

func wingetInstall(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	args := []string{"install", "--exact", "--id", wingetIdentifier(item),
		"--silent", "--accept-source-agreements", "--accept-package-agreements",
		"--disable-interactivity"}
	_, err := runner.Run(ctx, "winget", args, timeout)
	return err
}

func chocoUninstall(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	_, err := runner.Run(ctx, "choco",
		[]string{"uninstall", item.PrimaryName, "-y", "--limit-output"}, timeout)
	return err
}

func chocoInstall(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	_, err := runner.Run(ctx, "choco",
		[]string{"install", item.PrimaryName, "-y", "--limit-output"}, timeout)
	return err
}

// appxFullName finds the PackageFullName-shaped identifier (it carries the
// version and architecture separated by underscores).
func appxFullName(item inventory.Item) string {
	return altMatching(item, func(s string) bool {
		return strings.Count(s, "_") >= 2
	})
}

func appxRemove(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	if full := appxFullName(item); full != "" {
		script := fmt.Sprintf("Remove-AppxPackage -Package '%s' -AllUsers -ErrorAction Stop", psEscape(full))
		return runPS(ctx, runner, script, timeout)
	}
	script := fmt.Sprintf("Get-AppxPackage -AllUsers -Name '%s' | Remove-AppxPackage -AllUsers -ErrorAction Stop", psEscape(item.PrimaryName))
	return runPS(ctx, runner, script, timeout)
}

func provisionedRemove(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	if pkg := appxFullName(item); pkg != "" {
		script := fmt.Sprintf("Remove-AppxProvisionedPackage -Online -PackageName '%s' -ErrorAction Stop", psEscape(pkg))
		return runPS(ctx, runner, script, timeout)
	}
	script := fmt.Sprintf(
		"Get-AppxProvisionedPackage -Online | Where-Object {$_.DisplayName -eq '%s'} | Remove-AppxProvisionedPackage -Online -ErrorAction Stop",
		psEscape(item.PrimaryName))
	return runPS(ctx, runner, script, timeout)
}

func dismRemoveProvisioned(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	pkg := appxFullName(item)
	if pkg == "" {
		return fmt.Errorf("no provisioned package name for %s", item.PrimaryName)
	}
	_, err := runner.Run(ctx, "dism",
		[]string{"/Online", "/Remove-ProvisionedAppxPackage", "/PackageName:" + pkg}, timeout)
	return err
}

func dismDisableFeature(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	_, err := runner.Run(ctx, "dism",
		[]string{"/Online", "/Disable-Feature", "/FeatureName:" + item.PrimaryName, "/NoRestart"}, timeout)
	return err
}

func psDisableFeature(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	script := fmt.Sprintf("Disable-WindowsOptionalFeature -Online -FeatureName '%s' -NoRestart -ErrorAction Stop", psEscape(item.PrimaryName))
	return runPS(ctx, runner, script, timeout)
}

// quietUninstallString runs the registry QuietUninstallString, which already
// carries silent switches.
func quietUninstallString(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	quiet := item.Metadata["QuietUninstallString"]
	if quiet == "" {
		return fmt.Errorf("no QuietUninstallString for %s", item.PrimaryName)
	}
	_, err := runner.Run(ctx, "cmd", []string{"/c", quiet}, timeout)
	return err
}

func registryUninstallString(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	uninstall := item.Metadata["UninstallString"]
	if uninstall == "" {
		return fmt.Errorf("no UninstallString for %s", item.PrimaryName)
	}
	// msiexec entries are normalized to a silent /x invocation; other
	// uninstallers are run as-is through the shell.
	if code := productCodeFrom(uninstall); code != "" {
		_, err := runner.Run(ctx, "msiexec", []string{"/x", code, "/qn", "/norestart"}, timeout)
		return err
	}
	_, err := runner.Run(ctx, "cmd", []string{"/c", uninstall}, timeout)
	return err
}

func msiexecUninstall(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	code := productCodeFrom(item.Metadata["UninstallString"])
	if code == "" {
		code = productCodeFrom(item.Metadata["KeyName"])
	}
	if code == "" {
		return fmt.Errorf("no MSI product code for %s", item.PrimaryName)
	}
	_, err := runner.Run(ctx, "msiexec", []string{"/x", code, "/qn", "/norestart"}, timeout)
	return err
}

var productCodeRe = regexp.MustCompile(`\{[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}\}`)

func productCodeFrom(s string) string {
	return productCodeRe.FindString(s)
}

// serviceName returns the short service name. When both display name and
// service name were observed, the service name is the first alternate.
func serviceName(item inventory.Item) string {
	if len(item.AlternateIdentifiers) > 0 {
		return item.AlternateIdentifiers[0]
	}
	return item.PrimaryName
}

func scStopDisable(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	name := serviceName(item)
	// Stop may fail for an already-stopped service; disabling is what counts.
	runner.Run(ctx, "sc", []string{"stop", name}, timeout)
	_, err := runner.Run(ctx, "sc", []string{"config", name, "start=", "disabled"}, timeout)
	return err
}

func psDisableService(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	script := fmt.Sprintf(
		"Stop-Service -Name '%s' -Force -ErrorAction SilentlyContinue; Set-Service -Name '%s' -StartupType Disabled -ErrorAction Stop",
		psEscape(serviceName(item)), psEscape(serviceName(item)))
	return runPS(ctx, runner, script, timeout)
}

func taskPath(item inventory.Item) string {
	if path := altMatching(item, func(s string) bool { return strings.HasPrefix(s, `\`) }); path != "" {
		return path
	}
	return item.PrimaryName
}

func schtasksDisable(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	_, err := runner.Run(ctx, "schtasks", []string{"/Change", "/TN", taskPath(item), "/Disable"}, timeout)
	return err
}

func schtasksDelete(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	_, err := runner.Run(ctx, "schtasks", []string{"/Delete", "/TN", taskPath(item), "/F"}, timeout)
	return err
}

func deleteShortcut(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	path := altMatching(item, func(s string) bool { return strings.Contains(s, `\`) })
	if path == "" {
		return fmt.Errorf("no shortcut path for %s", item.PrimaryName)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func removeStartupEntry(ctx context.Context, runner command.Runner, item inventory.Item, timeout time.Duration) error {
	if keyPath := item.Metadata["KeyPath"]; keyPath != "" {
		// Registry Run entry: the value name is the item's primary name.
		_, err := runner.Run(ctx, "reg",
			[]string{"delete", `HKLM\` + keyPath, "/v", item.PrimaryName, "/f"}, timeout)
		if err != nil {
			_, err = runner.Run(ctx, "reg",
				[]string{"delete", `HKCU\` + keyPath, "/v", item.PrimaryName, "/f"}, timeout)
		}
		return err
	}
	// Startup folder entry: the alternate identifier is the file path.
	path := altMatching(item, func(s string) bool { return strings.Contains(s, `\`) })
	if path == "" {
		return fmt.Errorf("no startup entry location for %s", item.PrimaryName)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// runPS executes a one-line PowerShell script.
func runPS(ctx context.Context, runner command.Runner, script string, timeout time.Duration) error {
	_, err := runner.Run(ctx, "powershell.exe",
		[]string{"-NoLogo", "-NoProfile", "-NonInteractive", "-Command", script}, timeout)
	return err
}

// psEscape doubles single quotes for safe embedding in a single-quoted
// PowerShell string.
func psEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
