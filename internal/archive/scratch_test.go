package archive

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/appimage-installer/internal/hostenv"
)

func TestScratchCreateAndRelease(t *testing.T) {
	t.Parallel()
	root := NewScratchRoot(filepath.Join(t.TempDir(), "scratch"))

	s, err := root.Create(context.Background())
	require.NoError(t, err)
	assert.DirExists(t, s.Dir)
	assert.FileExists(t, filepath.Join(s.Dir, ownerFile))

	require.NoError(t, s.Release())
	assert.NoDirExists(t, s.Dir)
	require.NoError(t, (*Scratch)(nil).Release())
}

func TestPurgeRemovesOnlyDeadOwners(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "scratch")
	root := NewScratchRoot(dir)
	root.alive = func(_ context.Context, o hostenv.Owner) bool { return o.PID == 100 }

	mk := func(name string, owner *hostenv.Owner) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(p, 0o700))
		if owner != nil {
			data, err := json.Marshal(owner)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(filepath.Join(p, ownerFile), data, 0o600))
		}
		return p
	}

	live := mk("100-aaaa", &hostenv.Owner{PID: 100})
	dead := mk("200-bbbb", &hostenv.Owner{PID: 200})
	fresh := mk("300-cccc", nil)
	old := mk("400-dddd", nil)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	removed, err := root.Purge(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{dead, old}, removed)
	assert.DirExists(t, live)
	assert.DirExists(t, fresh)
}

func TestPurgeMissingRoot(t *testing.T) {
	t.Parallel()
	removed, err := NewScratchRoot(filepath.Join(t.TempDir(), "nope")).Purge(context.Background())
	require.NoError(t, err)
	assert.Empty(t, removed)
}
