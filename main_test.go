package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/3leaps/appimage-installer/internal/cli"
)

// isolate points every per-user directory into a temp dir and turns off
// anything interactive.
func isolate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("HOME", root)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(root, "cache"))
	t.Setenv("APPIMAGE_INSTALLER_DIALOG", "none")
	t.Setenv("APPIMAGE_INSTALLER_NOTIFY", "false")
	t.Setenv("APPIMAGE_INSTALLER_OFFLINE", "true")
	t.Setenv("APPIMAGE_INSTALLER_LOG_LEVEL", "error")
	return root
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := cli.Run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "--version")
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	if strings.TrimSpace(out) != "appimage-installer "+version {
		t.Fatalf("version output %q", out)
	}
}

func TestHelp(t *testing.T) {
	code, out, _ := runCLI(t, "--help")
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	for _, want := range []string{"--register", "--unregister", "list", "uninstall", "launch", "recover"} {
		if !strings.Contains(out, want) {
			t.Errorf("help does not mention %s", want)
		}
	}
}

func TestHelpExtended(t *testing.T) {
	code, out, _ := runCLI(t, "--helpextended")
	if code != 0 || !strings.Contains(out, "appimage-installer --register") {
		t.Fatalf("exit %d output %q", code, out)
	}
}

func TestUsageErrors(t *testing.T) {
	isolate(t)
	tests := []struct {
		name string
		args []string
	}{
		{"no arguments", nil},
		{"unknown flag", []string{"--bogus"}},
		{"two archives", []string{"a.AppImage", "b.AppImage"}},
		{"register and unregister", []string{"--register", "--unregister"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runCLI(t, tt.args...)
			if code == 0 {
				t.Fatalf("expected failure, stderr %q", errOut)
			}
			if !strings.Contains(errOut, "error:") {
				t.Fatalf("stderr %q", errOut)
			}
		})
	}
}

func TestMissingArchiveFails(t *testing.T) {
	root := isolate(t)
	code, _, errOut := runCLI(t, filepath.Join(root, "Missing.AppImage"))
	if code != exitFailed {
		t.Fatalf("exit code %d, stderr %q", code, errOut)
	}
	if !strings.Contains(errOut, "Missing.AppImage") {
		t.Fatalf("stderr %q", errOut)
	}
}

func TestNotAnAppImageFails(t *testing.T) {
	root := isolate(t)
	path := filepath.Join(root, "notes.AppImage")
	if err := os.WriteFile(path, []byte("just text, long enough to not be cut short by the header check......"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, _, errOut := runCLI(t, path)
	if code != exitFailed {
		t.Fatalf("exit code %d, stderr %q", code, errOut)
	}
	entries, _ := filepath.Glob(filepath.Join(root, "data", "applications", "*.desktop"))
	if len(entries) != 0 {
		t.Fatalf("launchers written for a bad archive: %v", entries)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	isolate(t)
	t.Setenv("APPIMAGE_INSTALLER_EXTRACTOR", "magic")
	code, _, errOut := runCLI(t, "list")
	if code != exitFailed || !strings.Contains(errOut, "extractor") {
		t.Fatalf("exit %d stderr %q", code, errOut)
	}
}

func TestListEmpty(t *testing.T) {
	isolate(t)
	code, out, _ := runCLI(t, "list")
	if code != 0 || !strings.Contains(out, "no AppImages installed") {
		t.Fatalf("exit %d output %q", code, out)
	}

	code, out, _ = runCLI(t, "list", "--json")
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	var apps []listedApp
	if err := json.Unmarshal([]byte(out), &apps); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(apps) != 0 {
		t.Fatalf("apps: %v", apps)
	}
}

func TestRecoverNothing(t *testing.T) {
	isolate(t)
	code, out, _ := runCLI(t, "recover")
	if code != 0 || !strings.Contains(out, "nothing to recover") {
		t.Fatalf("exit %d output %q", code, out)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	root := isolate(t)
	path := filepath.Join(root, "config", "appimage-installer", "config.yaml")

	code, out, errOut := runCLI(t, "config", "init")
	if code != 0 {
		t.Fatalf("exit %d stderr %q", code, errOut)
	}
	if !strings.Contains(out, path) {
		t.Fatalf("output %q", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	code, _, errOut = runCLI(t, "config", "init")
	if code == 0 || !strings.Contains(errOut, "already exists") {
		t.Fatalf("second init: exit %d stderr %q", code, errOut)
	}
	if code, _, _ = runCLI(t, "config", "init", "--force"); code != 0 {
		t.Fatalf("forced init: exit %d", code)
	}

	code, out, _ = runCLI(t, "config", "show", "--offline")
	if code != 0 || !strings.Contains(out, "offline: true") || !strings.Contains(out, "dialog: none") {
		t.Fatalf("exit %d output %q", code, out)
	}
}

func TestRegisterAndUnregister(t *testing.T) {
	root := isolate(t)
	// Keep the desktop database tools away from the real system.
	t.Setenv("PATH", filepath.Join(root, "bin"))

	code, out, errOut := runCLI(t, "--register")
	if code != 0 {
		t.Fatalf("register: exit %d stderr %q", code, errOut)
	}
	if !strings.Contains(out, "now open with") {
		t.Fatalf("output %q", out)
	}
	handler := filepath.Join(root, "data", "applications", "appimage-installer.desktop")
	if _, err := os.Stat(handler); err != nil {
		t.Fatalf("handler entry: %v", err)
	}

	if code, _, errOut = runCLI(t, "--unregister"); code != 0 {
		t.Fatalf("unregister: exit %d stderr %q", code, errOut)
	}
	if _, err := os.Stat(handler); !os.IsNotExist(err) {
		t.Fatalf("handler entry still present: %v", err)
	}
}

func TestUninstallUnknownIdentityFails(t *testing.T) {
	isolate(t)
	code, _, errOut := runCLI(t, "uninstall", "nope")
	if code != exitFailed || !strings.Contains(errOut, "not installed") {
		t.Fatalf("exit %d stderr %q", code, errOut)
	}
}
