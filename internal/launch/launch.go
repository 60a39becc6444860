// Package launch starts an AppImage as a detached process.
package launch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/3leaps/appimage-installer/internal/hostenv"
)

// ErrNoExec is returned when the archive lives on a mount that forbids
// execution.
var ErrNoExec = errors.New("archive is on a noexec mount")

// Launcher starts archives.
type Launcher struct {
	mounts func() hostenv.MountTable
}

func New() *Launcher {
	return &Launcher{mounts: hostenv.LoadMountTable}
}

// Launch makes archive executable if needed and starts it with args. The
// child is detached from this process and survives its exit; ctx only
// bounds the preparation.
func (l *Launcher) Launch(ctx context.Context, archive string, args ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := filepath.Abs(archive)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", archive, err)
	}
	if err := EnsureExecutable(abs); err != nil {
		return err
	}
	if m, ok := l.mounts().Lookup(abs); ok && m.Has("noexec") {
		return fmt.Errorf("%w: %s is mounted noexec; move the file elsewhere to run it", ErrNoExec, m.Point)
	}

	cmd := exec.Command(abs, args...) // #nosec G204 -- the user chose to run this archive
	cmd.Dir = filepath.Dir(abs)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", abs, err)
	}
	log.WithField("pid", cmd.Process.Pid).Infof("launched %s", abs)
	return cmd.Process.Release()
}

// EnsureExecutable adds execute permission wherever read permission is
// granted, so owner-only files stay owner-only.
func EnsureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	mode := info.Mode().Perm()
	want := mode | (mode&0o444)>>2
	if want == mode {
		return nil
	}
	if err := os.Chmod(path, want); err != nil {
		return fmt.Errorf("make %s executable: %w", path, err)
	}
	log.Debugf("set mode %o on %s", want, path)
	return nil
}
