package archive_test

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/appimage-installer/internal/archive"
	"github.com/3leaps/appimage-installer/internal/archive/archivetest"
	"github.com/3leaps/appimage-installer/internal/hostenv"
	"github.com/3leaps/appimage-installer/internal/model"
)

func buildFixture(t *testing.T, app archivetest.App) string {
	t.Helper()
	dir := t.TempDir()
	appDir := filepath.Join(dir, "AppDir")
	require.NoError(t, archivetest.WriteAppDir(appDir, app))
	dst := filepath.Join(dir, app.Name+".AppImage")
	err := archivetest.Build(context.Background(), hostenv.ExecRunner{}, appDir, dst)
	if errors.Is(err, archivetest.ErrNoMksquashfs) {
		t.Skip("mksquashfs not installed")
	}
	require.NoError(t, err)
	return dst
}

func TestBackendsReadRealImage(t *testing.T) {
	t.Parallel()
	path := buildFixture(t, archivetest.App{ID: "org.example.Foo", Name: "Foo", Version: "1.2", Categories: []string{"Graphics"}})

	for _, name := range []string{archive.ExtractorNative, archive.ExtractorUnsquashfs, archive.ExtractorAuto} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if name == archive.ExtractorUnsquashfs {
				if _, err := exec.LookPath("unsquashfs"); err != nil {
					t.Skip("unsquashfs not installed")
				}
			}
			backend, err := archive.NewBackend(name, "")
			require.NoError(t, err)
			scratch := archive.NewScratchRoot(filepath.Join(t.TempDir(), "scratch"))
			desc, err := archive.NewInspector(scratch, archive.WithBackend(backend)).Inspect(context.Background(), path)
			require.NoError(t, err)

			assert.Equal(t, "Foo", desc.Name)
			assert.Equal(t, "1.2", desc.Version)
			assert.Equal(t, "org.example.Foo", desc.DesktopID)
			assert.Equal(t, []string{"Graphics"}, desc.Categories)
			assert.Equal(t, model.ProvenanceEmbedded, desc.Icon.Provenance)
			assert.NotEmpty(t, desc.Icon.Bytes)
			assert.NotEmpty(t, desc.Digest)
		})
	}
}

func TestRealImageWithoutDesktopEntry(t *testing.T) {
	t.Parallel()
	path := buildFixture(t, archivetest.App{Name: "Bare", NoDesktop: true})
	scratch := archive.NewScratchRoot(filepath.Join(t.TempDir(), "scratch"))
	_, err := archive.NewInspector(scratch).Inspect(context.Background(), path)
	require.ErrorIs(t, err, model.ErrMissingDescriptor)
}
