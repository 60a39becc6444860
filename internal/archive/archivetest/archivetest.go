// Package archivetest builds small real AppImages for tests and fixtures.
package archivetest

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/3leaps/appimage-installer/internal/archive"
	"github.com/3leaps/appimage-installer/internal/desktopentry"
	"github.com/3leaps/appimage-installer/internal/hostenv"
)

// ErrNoMksquashfs is returned when mksquashfs is not installed.
var ErrNoMksquashfs = errors.New("mksquashfs not found in PATH")

// App describes the contents of a generated AppDir.
type App struct {
	ID         string // desktop file basename without extension
	Name       string
	Version    string
	Categories []string
	IconName   string
	Icon       []byte // PNG; a generated one when nil
	NoDesktop  bool
}

// Runtime returns a header-only ELF64 file that satisfies the runtime
// layout rules. It cannot be executed.
func Runtime() []byte {
	b := make([]byte, 64)
	copy(b, "\x7fELF")
	b[4] = 2 // ELFCLASS64
	b[5] = 1 // little endian
	b[6] = 1
	binary.LittleEndian.PutUint16(b[0x10:], 2)    // ET_EXEC
	binary.LittleEndian.PutUint16(b[0x12:], 0x3E) // x86-64
	binary.LittleEndian.PutUint64(b[0x28:], 0)    // shoff
	binary.LittleEndian.PutUint16(b[0x34:], 64)   // ehsize
	binary.LittleEndian.PutUint16(b[0x3A:], 64)   // shentsize
	binary.LittleEndian.PutUint16(b[0x3C:], 1)    // shnum
	return b
}

// WriteAppDir lays out app under dir the way appimagetool expects.
func WriteAppDir(dir string, app App) error {
	if app.ID == "" {
		app.ID = "demo"
	}
	if app.Name == "" {
		app.Name = "Demo"
	}
	if app.IconName == "" {
		app.IconName = app.ID
	}
	if app.Icon == nil {
		var err error
		if app.Icon, err = SolidPNG(32, color.NRGBA{0x20, 0x80, 0xd0, 0xff}); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create appdir: %w", err)
	}

	if !app.NoDesktop {
		e := desktopentry.New()
		e.Set("Type", "Application")
		e.Set("Name", app.Name)
		e.Set("Exec", "AppRun")
		e.Set("Icon", app.IconName)
		if len(app.Categories) > 0 {
			e.SetList("Categories", app.Categories)
		}
		if app.Version != "" {
			e.Set("X-AppImage-Version", app.Version)
		}
		data, err := e.Bytes()
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, app.ID+".desktop"), data, 0o644); err != nil {
			return fmt.Errorf("write desktop entry: %w", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, app.IconName+".png"), app.Icon, 0o644); err != nil {
		return fmt.Errorf("write icon: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "AppRun"), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		return fmt.Errorf("write AppRun: %w", err)
	}
	return nil
}

// Build packs appDir with mksquashfs and writes runtime plus image to dst.
func Build(ctx context.Context, runner hostenv.Runner, appDir, dst string) error {
	if _, err := exec.LookPath("mksquashfs"); err != nil {
		return ErrNoMksquashfs
	}
	tmp, err := os.MkdirTemp("", "archivetest-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	imgPath := filepath.Join(tmp, "image.squashfs")
	if err := runner.Run(ctx, "mksquashfs", appDir, imgPath, "-root-owned", "-noappend", "-quiet", "-no-progress"); err != nil {
		return fmt.Errorf("mksquashfs: %w", err)
	}
	img, err := os.Open(imgPath) // #nosec G304 -- our temp file
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer img.Close()

	var out bytes.Buffer
	if err := archive.Assemble(&out, Runtime(), img); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(dst, out.Bytes(), 0o755); err != nil { // #nosec G306 -- AppImages are executable
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

// SolidPNG encodes a size x size square of c.
func SolidPNG(size int, c color.Color) ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
