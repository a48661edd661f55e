//go:build windows

package inventory

import (
	"time"

	"github.com/windowsadmins/reclaim/pkg/command"
)

// DefaultSources assembles the full adapter set for a production run.
func DefaultSources(runner command.Runner, toolTimeout time.Duration) []Source {
	return []Source{
		NewWingetSource(runner, toolTimeout),
		NewChocoSource(runner, toolTimeout),
		NewAppxSource(runner, toolTimeout),
		NewProvisionedSource(runner, toolTimeout),
		NewRegistryUninstallSource(),
		NewFeatureSource(runner, toolTimeout),
		NewServiceSource(),
		NewScheduledTaskSource(runner, toolTimeout),
		NewShortcutSource(),
		NewStartupSource(),
	}
}
