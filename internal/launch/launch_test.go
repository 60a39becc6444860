//go:build unix

package launch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/appimage-installer/internal/hostenv"
)

func TestEnsureExecutable(t *testing.T) {
	t.Parallel()
	cases := map[os.FileMode]os.FileMode{
		0o644: 0o755,
		0o600: 0o700,
		0o640: 0o750,
		0o755: 0o755,
	}
	for in, want := range cases {
		p := filepath.Join(t.TempDir(), "app.AppImage")
		require.NoError(t, os.WriteFile(p, nil, in))
		require.NoError(t, os.Chmod(p, in))

		require.NoError(t, EnsureExecutable(p))
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Equal(t, want, info.Mode().Perm(), "from %o", in)
	}
}

func TestEnsureExecutableMissingFile(t *testing.T) {
	t.Parallel()
	require.Error(t, EnsureExecutable(filepath.Join(t.TempDir(), "nope")))
}

func TestLaunchRunsDetachedChild(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	script := filepath.Join(dir, "tool.AppImage")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"$1\" > \""+marker+"\"\n"), 0o644))

	l := &Launcher{mounts: func() hostenv.MountTable { return hostenv.NewMountTable() }}
	require.NoError(t, l.Launch(context.Background(), script, "hello"))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(marker)
		return err == nil && string(data) == "hello\n"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestLaunchRefusesNoexecMount(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	script := filepath.Join(dir, "tool.AppImage")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755))

	l := &Launcher{mounts: func() hostenv.MountTable {
		return hostenv.NewMountTable(
			hostenv.NewMount("/", "ext4", "rw"),
			hostenv.NewMount(dir, "tmpfs", "rw", "noexec"),
		)
	}}
	err := l.Launch(context.Background(), script)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoExec))
	assert.Contains(t, err.Error(), dir)
}

func TestLaunchCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, New().Launch(ctx, "/bin/true"), context.Canceled)
}
