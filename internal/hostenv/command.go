package hostenv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const maxCommandError = 512

// ErrToolMissing is returned when a helper program is not on PATH.
var ErrToolMissing = errors.New("tool not found")

// Runner runs an external helper to completion. Implementations must honor
// ctx cancellation.
type Runner interface {
	Run(ctx context.Context, bin string, args ...string) error
}

// ExecRunner runs commands with os/exec, folding their output into the error
// on failure.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, bin string, args ...string) error {
	path, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrToolMissing, bin)
	}
	cmd := exec.CommandContext(ctx, path, args...) // #nosec G204 -- fixed helper names, arguments passed as argv
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", bin, ctx.Err())
		}
		return fmt.Errorf("%s %s: %s", bin, strings.Join(args, " "), TrimCommandOutput(combined.String()))
	}
	return nil
}

// TrimCommandOutput shortens tool output for inclusion in an error message.
func TrimCommandOutput(out string) string {
	clean := strings.TrimSpace(out)
	if clean == "" {
		return "command failed"
	}
	if len(clean) > maxCommandError {
		return clean[:maxCommandError] + "..."
	}
	return clean
}
