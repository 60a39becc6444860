// Package selfexe locates the installer itself so other programs can be
// pointed at it.
package selfexe

import (
	"fmt"
	"os"
	"path/filepath"
)

// Path returns the command file managers should run to open an archive
// with this installer. When the installer is itself running from an
// AppImage, that is the AppImage rather than the transient mounted binary.
func Path() (string, error) {
	return resolve(os.Getenv("APPIMAGE"), os.Executable)
}

func resolve(appimage string, executable func() (string, error)) (string, error) {
	if appimage != "" && filepath.IsAbs(appimage) {
		if _, err := os.Stat(appimage); err == nil {
			return appimage, nil
		}
	}
	exePath, err := executable()
	if err != nil {
		return "", fmt.Errorf("determine current executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exePath); err == nil {
		exePath = resolved
	}
	return exePath, nil
}
