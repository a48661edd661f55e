//go:build !windows

package inventory

import (
	"time"

	"github.com/windowsadmins/reclaim/pkg/command"
)

// DefaultSources returns only the tool-backed adapters on non-Windows
// builds; the registry, WMI and filesystem adapters are Windows-only.
func DefaultSources(runner command.Runner, toolTimeout time.Duration) []Source {
	return []Source{
		NewWingetSource(runner, toolTimeout),
		NewChocoSource(runner, toolTimeout),
		NewAppxSource(runner, toolTimeout),
		NewProvisionedSource(runner, toolTimeout),
		NewFeatureSource(runner, toolTimeout),
		NewScheduledTaskSource(runner, toolTimeout),
	}
}
