//go:build windows

package command

import (
	"os/exec"
	"syscall"
)

// hideWindow prevents console windows from flashing when invoking tools
// from a background run.
func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow: true,
	}
}
