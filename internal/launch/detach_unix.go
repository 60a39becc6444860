//go:build unix

package launch

import (
	"os/exec"
	"syscall"
)

// detach puts the child in its own session.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
