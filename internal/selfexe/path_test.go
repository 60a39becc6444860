package selfexe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolvePrefersRunningAppImage(t *testing.T) {
	t.Parallel()

	appimage := filepath.Join(t.TempDir(), "Installer.AppImage")
	if err := os.WriteFile(appimage, []byte("x"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := resolve(appimage, func() (string, error) { return "/tmp/.mount_abc/usr/bin/appimage-installer", nil })
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != appimage {
		t.Fatalf("path: got %q want %q", got, appimage)
	}
}

func TestResolveIgnoresMissingAppImage(t *testing.T) {
	t.Parallel()

	exe := filepath.Join(t.TempDir(), "appimage-installer")
	if err := os.WriteFile(exe, []byte("x"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, env := range []string{"", "relative.AppImage", "/nonexistent/Installer.AppImage"} {
		got, err := resolve(env, func() (string, error) { return exe, nil })
		if err != nil {
			t.Fatalf("resolve(%q): %v", env, err)
		}
		want, _ := filepath.EvalSymlinks(exe)
		if got != want {
			t.Fatalf("resolve(%q): got %q want %q", env, got, want)
		}
	}
}

func TestResolveFollowsSymlinks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	if err := os.WriteFile(target, []byte("x"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	got, err := resolve("", func() (string, error) { return link, nil })
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want, _ := filepath.EvalSymlinks(target)
	if got != want {
		t.Fatalf("path: got %q want %q", got, want)
	}
}

func TestResolveExecutableError(t *testing.T) {
	t.Parallel()

	if _, err := resolve("", func() (string, error) { return "", errors.New("boom") }); err == nil {
		t.Fatal("expected error")
	}
}

func TestPathKeepsExecutableBasename(t *testing.T) {
	t.Setenv("APPIMAGE", "")
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	got, err := Path()
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if filepath.Base(got) != filepath.Base(exe) {
		resolved, _ := filepath.EvalSymlinks(exe)
		if filepath.Base(got) != filepath.Base(resolved) {
			t.Fatalf("basename: got %q want %q", filepath.Base(got), filepath.Base(exe))
		}
	}
}
