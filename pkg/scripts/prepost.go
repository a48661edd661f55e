// pkg/scripts/prepost.go - operator hook scripts around a run.
//
// Administrators can drop preflight.ps1 and postflight.ps1 into the scripts
// directory to run site-specific logic before and after a convergence run
// (e.g. closing kiosk software, refreshing a start layout). A missing script
// is not an error; a failing preflight aborts the run.

package scripts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/windowsadmins/reclaim/pkg/command"
	"github.com/windowsadmins/reclaim/pkg/logging"
)

// DefaultDir is where hook scripts are looked up in production.
const DefaultDir = `C:\ProgramData\Reclaim\scripts`

// Hooks runs the operator-supplied scripts.
type Hooks struct {
	dir     string
	runner  command.Runner
	timeout time.Duration
}

// NewHooks returns a Hooks rooted at dir.
func NewHooks(dir string, runner command.Runner, timeout time.Duration) *Hooks {
	return &Hooks{dir: dir, runner: runner, timeout: timeout}
}

// Preflight runs preflight.ps1 if present. Its failure is returned to the
// caller so the run can be aborted before any action is taken.
func (h *Hooks) Preflight(ctx context.Context) error {
	return h.run(ctx, "preflight")
}

// Postflight runs postflight.ps1 if present. Failures are logged only; the
// run's work is already done.
func (h *Hooks) Postflight(ctx context.Context) {
	if err := h.run(ctx, "postflight"); err != nil {
		logging.Warn("Postflight script failed", "error", err.Error())
	}
}

func (h *Hooks) run(ctx context.Context, name string) error {
	scriptPath := filepath.Join(h.dir, name+".ps1")
	if _, err := os.Stat(scriptPath); os.IsNotExist(err) {
		logging.Debug("Hook script not present", "script", name, "path", scriptPath)
		return nil
	}

	logging.Info("Running hook script", "script", name)
	result, err := h.runner.Run(ctx, "powershell.exe", []string{
		"-NoLogo", "-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass",
		"-File", scriptPath,
	}, h.timeout)

	for _, line := range strings.Split(result.Stdout, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "\ufeff"))
		if line != "" {
			logging.Info(line, "script", name)
		}
	}

	if err != nil {
		return fmt.Errorf("%s script: %w", name, err)
	}
	logging.Info("Hook script completed", "script", name)
	return nil
}
