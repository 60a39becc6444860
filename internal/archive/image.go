package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/CalebQ42/squashfs"
	log "github.com/sirupsen/logrus"

	"github.com/3leaps/appimage-installer/internal/hostenv"
	"github.com/3leaps/appimage-installer/internal/model"
)

// Source is an opened archive positioned at its filesystem image.
type Source struct {
	Path   string
	File   *os.File
	Offset int64
	Size   int64

	// Scratch creates the inspection's scratch area on first use.
	Scratch func(context.Context) (string, error)
}

// Backend exposes the filesystem image of an archive read-only.
type Backend interface {
	Name() string
	Open(ctx context.Context, src Source) (fs.FS, error)
}

// Extractor names accepted in configuration.
const (
	ExtractorAuto       = "auto"
	ExtractorNative     = "native"
	ExtractorUnsquashfs = "unsquashfs"
)

// NewBackend returns the backend for an extractor name.
func NewBackend(name, unsquashfsBin string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ExtractorAuto:
		return fallbackBackend{primary: NativeBackend{}, secondary: UnsquashfsBackend{Bin: unsquashfsBin}}, nil
	case ExtractorNative:
		return NativeBackend{}, nil
	case ExtractorUnsquashfs:
		return UnsquashfsBackend{Bin: unsquashfsBin}, nil
	default:
		return nil, fmt.Errorf("unknown extractor %q (want auto, native or unsquashfs)", name)
	}
}

// NativeBackend reads the squashfs image in process.
type NativeBackend struct{}

func (NativeBackend) Name() string { return ExtractorNative }

func (NativeBackend) Open(_ context.Context, src Source) (fs.FS, error) {
	r, err := squashfs.NewReader(io.NewSectionReader(src.File, src.Offset, src.Size-src.Offset))
	if err != nil {
		return nil, fmt.Errorf("%w: open squashfs image: %w", model.ErrMalformedArchive, err)
	}
	return nativeImage{r: r}, nil
}

type nativeImage struct {
	r *squashfs.Reader
}

func (n nativeImage) Open(name string) (fs.File, error) {
	return n.r.Open(name)
}

// UnsquashfsBackend extracts the files the inspector needs with the
// unsquashfs tool into the scratch area.
type UnsquashfsBackend struct {
	Bin string
}

func (UnsquashfsBackend) Name() string { return ExtractorUnsquashfs }

// Only metadata is extracted; the application payload stays in the archive.
var extractPatterns = []string{"*.desktop", ".DirIcon", "*.png", "*.svg", "*.svgz", "*.xpm", "usr/share/icons", "usr/share/pixmaps"}

func (b UnsquashfsBackend) Open(ctx context.Context, src Source) (fs.FS, error) {
	bin := b.Bin
	if bin == "" {
		bin = "unsquashfs"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%s not found in PATH: %w", bin, err)
	}
	scratch, err := src.Scratch(ctx)
	if err != nil {
		return nil, err
	}
	dest := filepath.Join(scratch, "image")

	args := []string{"-no-progress", "-no-xattrs", "-o", strconv.FormatInt(src.Offset, 10), "-d", dest, src.Path}
	args = append(args, extractPatterns...)
	cmd := exec.CommandContext(ctx, path, args...) // #nosec G204 -- fixed tool, archive path passed as argument
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	log.Debugf("running %s %s", path, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// unsquashfs exits 2 when some requested patterns matched nothing.
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 2 {
			return nil, fmt.Errorf("%w: unsquashfs: %v: %s", model.ErrMalformedArchive, err, hostenv.TrimCommandOutput(stderr.String()))
		}
	}
	if _, err := os.Stat(dest); err != nil {
		return nil, fmt.Errorf("%w: unsquashfs produced no output", model.ErrMalformedArchive)
	}
	return os.DirFS(dest), nil
}

// fallbackBackend tries primary and, when it cannot read the image, secondary.
type fallbackBackend struct {
	primary   Backend
	secondary Backend
}

func (f fallbackBackend) Name() string { return ExtractorAuto }

func (f fallbackBackend) Open(ctx context.Context, src Source) (fs.FS, error) {
	fsys, err := f.primary.Open(ctx, src)
	if err == nil {
		return fsys, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	log.Debugf("%s backend failed (%v); trying %s", f.primary.Name(), err, f.secondary.Name())
	fsys, serr := f.secondary.Open(ctx, src)
	if serr != nil {
		return nil, fmt.Errorf("%w (%s: %v)", err, f.secondary.Name(), serr)
	}
	return fsys, nil
}
