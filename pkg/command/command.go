// pkg/command/command.go - external tool invocation with timeouts.
//
// Reclaim shells out to winget, choco, PowerShell, DISM, sc and schtasks.
// All of those calls go through the Runner interface so the pipeline can be
// exercised in tests without touching the system.

package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Result carries the outcome of one external tool invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes an external command with a timeout. Implementations must
// treat the call as blocking and return once the process has exited or the
// timeout elapsed.
type Runner interface {
	Run(ctx context.Context, name string, args []string, timeout time.Duration) (Result, error)
}

// ErrTimeout is returned when a command exceeded its timeout and was killed.
var ErrTimeout = errors.New("command timed out")

type execRunner struct{}

// NewRunner returns the production Runner backed by os/exec.
func NewRunner() Runner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, name string, args []string, timeout time.Duration) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	hideWindow(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.ExitCode = -1
			return result, fmt.Errorf("%w: %s %s", ErrTimeout, name, strings.Join(args, " "))
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, fmt.Errorf("command %s exited with code %d | stderr: %s",
				name, result.ExitCode, strings.TrimSpace(result.Stderr))
		}
		result.ExitCode = -1
		return result, fmt.Errorf("command %s failed to start: %w", name, err)
	}

	return result, nil
}
