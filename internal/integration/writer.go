// Package integration writes and removes the files a desktop shell reads to
// show an installed application: a launcher entry and an icon.
package integration

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/3leaps/appimage-installer/internal/atomicfile"
	"github.com/3leaps/appimage-installer/internal/desktopentry"
	"github.com/3leaps/appimage-installer/internal/hostenv"
	"github.com/3leaps/appimage-installer/internal/icon"
	"github.com/3leaps/appimage-installer/internal/model"
)

// FilePrefix starts the name of every file this package writes.
const FilePrefix = icon.InstalledPrefix

// Layout resolves where artifacts for an identity live under a data dir.
type Layout struct {
	DataDir  string
	IconSize int
}

func (l Layout) iconSize() int {
	if l.IconSize > 0 {
		return l.IconSize
	}
	return icon.DefaultSize
}

// ApplicationsDir is where launchers are written.
func (l Layout) ApplicationsDir() string {
	return filepath.Join(l.DataDir, "applications")
}

func (l Layout) LauncherPath(id string) string {
	return filepath.Join(l.ApplicationsDir(), FilePrefix+id+".desktop")
}

func (l Layout) IconPath(id string) string {
	n := strconv.Itoa(l.iconSize())
	return filepath.Join(l.DataDir, "icons", "hicolor", n+"x"+n, "apps", FilePrefix+id+".png")
}

// Launcher holds the values rendered into a launcher entry.
type Launcher struct {
	Identity    string
	Name        string
	Comment     string
	Version     string
	ArchivePath string
	IconPath    string
	Categories  []string
	MimeTypes   []string
	Terminal    bool
}

// Render produces the desktop entry for l. The archive itself is the
// command; %U lets the shell pass opened files through.
func Render(l Launcher) ([]byte, error) {
	if l.Identity == "" || l.ArchivePath == "" {
		return nil, errors.New("launcher needs an identity and an archive path")
	}
	e := desktopentry.New()
	e.Set("Version", "1.0")
	e.Set("Name", l.Name)
	if l.Comment != "" {
		e.Set("Comment", l.Comment)
	}
	e.Set("Exec", desktopentry.QuoteExecArg(l.ArchivePath)+" %U")
	e.Set("TryExec", l.ArchivePath)
	e.Set("Icon", l.IconPath)
	categories := l.Categories
	if len(categories) == 0 {
		categories = []string{"Utility"}
	}
	e.SetList("Categories", categories)
	e.SetList("MimeType", l.MimeTypes)
	e.SetBool("Terminal", l.Terminal)
	e.SetBool("StartupNotify", true)
	if l.Version != "" {
		e.Set("X-AppImage-Version", l.Version)
	}
	e.Set("X-AppImage-Path", l.ArchivePath)
	e.Set("X-AppImage-Identity", l.Identity)
	e.SetBool("X-AppImage-Installer", true)
	return e.Bytes()
}

// Writer materializes launchers and icons.
type Writer struct {
	layout Layout
	runner hostenv.Runner
}

// NewWriter returns a Writer for layout. A nil runner disables the
// desktop database refresh.
func NewWriter(layout Layout, runner hostenv.Runner) *Writer {
	return &Writer{layout: layout, runner: runner}
}

func (w *Writer) Layout() Layout { return w.layout }

// WriteIcon stores a normalized PNG for id and returns its path.
func (w *Writer) WriteIcon(ctx context.Context, id string, png []byte) (string, error) {
	path := w.layout.IconPath(id)
	if err := atomicfile.Write(ctx, path, png, 0o644); err != nil {
		return "", &model.WriteError{Path: path, Err: err}
	}
	return path, nil
}

// WriteLauncher renders and stores the launcher entry and returns its path.
func (w *Writer) WriteLauncher(ctx context.Context, l Launcher) (string, error) {
	path := w.layout.LauncherPath(l.Identity)
	data, err := Render(l)
	if err != nil {
		return "", &model.WriteError{Path: path, Err: err}
	}
	if err := atomicfile.Write(ctx, path, data, 0o644); err != nil {
		return "", &model.WriteError{Path: path, Err: err}
	}
	return path, nil
}

// Remove deletes every path, attempting all of them. Missing files are not
// an error.
func (w *Writer) Remove(paths ...string) error {
	var result *multierror.Error
	for _, p := range paths {
		if err := atomicfile.Remove(p); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Refresh asks the desktop to re-read its launcher directory. Failures are
// logged only; shells that watch the directory pick up changes anyway.
func (w *Writer) Refresh(ctx context.Context) {
	if w.runner == nil {
		return
	}
	dir := w.layout.ApplicationsDir()
	if err := w.runner.Run(ctx, "update-desktop-database", dir); err != nil {
		if errors.Is(err, hostenv.ErrToolMissing) {
			log.Debugf("skip desktop database refresh: %v", err)
			return
		}
		log.Warnf("refresh desktop database %s: %v", dir, err)
	}
}
