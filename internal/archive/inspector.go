// Package archive reads application metadata out of AppImage files without
// executing them.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	log "github.com/sirupsen/logrus"

	"github.com/3leaps/appimage-installer/internal/desktopentry"
	"github.com/3leaps/appimage-installer/internal/identity"
	"github.com/3leaps/appimage-installer/internal/model"
)

const DefaultTimeout = 30 * time.Second

// Largest icon payload read out of an image.
const maxIconBytes = 8 << 20

// Inspector extracts Descriptors from archives.
type Inspector struct {
	backend Backend
	scratch *ScratchRoot
	timeout time.Duration
}

type Option func(*Inspector)

// WithBackend selects how the filesystem image is read.
func WithBackend(b Backend) Option {
	return func(i *Inspector) { i.backend = b }
}

// WithTimeout bounds a whole inspection.
func WithTimeout(d time.Duration) Option {
	return func(i *Inspector) { i.timeout = d }
}

func NewInspector(scratch *ScratchRoot, opts ...Option) *Inspector {
	i := &Inspector{
		backend: fallbackBackend{primary: NativeBackend{}, secondary: UnsquashfsBackend{}},
		scratch: scratch,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Inspect opens the archive at archivePath read-only and returns its
// Descriptor. Any scratch area created along the way is removed before
// returning.
func (i *Inspector) Inspect(ctx context.Context, archivePath string) (desc model.Descriptor, err error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	abs, err := filepath.Abs(archivePath)
	if err != nil {
		return desc, fmt.Errorf("%w: resolve %s: %w", model.ErrUnreadableArchive, archivePath, err)
	}
	f, err := os.Open(abs) // #nosec G304 -- archive path chosen by the user
	if err != nil {
		return desc, fmt.Errorf("%w: %w", model.ErrUnreadableArchive, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return desc, fmt.Errorf("%w: stat %s: %w", model.ErrUnreadableArchive, abs, err)
	}
	if info.IsDir() {
		return desc, fmt.Errorf("%w: %s is a directory", model.ErrUnreadableArchive, abs)
	}

	offset, err := ImageOffset(f)
	if err != nil {
		return desc, fmt.Errorf("inspect %s: %w", abs, err)
	}

	var (
		mu       sync.Mutex
		scratch  *Scratch
		released bool
	)
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		released = true
		if rerr := scratch.Release(); rerr != nil {
			log.Warnf("release scratch area: %v", rerr)
		}
	}()

	src := Source{
		Path:   abs,
		File:   f,
		Offset: offset,
		Size:   info.Size(),
		Scratch: func(ctx context.Context) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			if released {
				return "", errors.New("inspection already finished")
			}
			if scratch == nil {
				s, err := i.scratch.Create(ctx)
				if err != nil {
					return "", err
				}
				scratch = s
			}
			return scratch.Dir, nil
		},
	}

	type result struct {
		desc model.Descriptor
		err  error
	}
	done := make(chan result, 1)
	go func() {
		d, err := i.read(ctx, src)
		done <- result{d, err}
	}()

	select {
	case <-ctx.Done():
		// Closing the file stops a native read and ctx kills an extractor
		// child. The reader must be gone before the scratch area goes.
		_ = f.Close()
		<-done
		return desc, contextError(ctx, abs)
	case r := <-done:
		if r.err != nil && ctx.Err() != nil {
			return desc, contextError(ctx, abs)
		}
		if r.err != nil {
			return desc, fmt.Errorf("inspect %s: %w", abs, r.err)
		}
		return r.desc, nil
	}
}

func contextError(ctx context.Context, path string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", model.ErrExtractionTimeout, path)
	}
	return fmt.Errorf("inspect %s: %w", path, ctx.Err())
}

func (i *Inspector) read(ctx context.Context, src Source) (model.Descriptor, error) {
	digest, err := identity.Digest(ctx, src.Path)
	if err != nil {
		if ctx.Err() != nil {
			return model.Descriptor{}, err
		}
		return model.Descriptor{}, fmt.Errorf("%w: %w", model.ErrUnreadableArchive, err)
	}

	fsys, err := i.backend.Open(ctx, src)
	if err != nil {
		return model.Descriptor{}, err
	}

	desc, err := readDescriptor(fsys)
	if err != nil {
		return model.Descriptor{}, err
	}
	if desc.Name == "" {
		desc.Name = identity.DisplayNameFromFile(src.Path)
	}
	desc.Digest = digest
	desc.ArchivePath = src.Path
	desc.Icon = findIcon(fsys, desc.IconName)
	if desc.Icon.Empty() {
		log.Debugf("no embedded icon found for %q", desc.Name)
	}
	return desc, nil
}

// readDescriptor parses the first root-level desktop entry of the image.
func readDescriptor(fsys fs.FS) (model.Descriptor, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return model.Descriptor{}, fmt.Errorf("%w: list image root: %w", model.ErrMalformedArchive, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".desktop") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			log.Debugf("skip unreadable %s: %v", name, err)
			continue
		}
		entry, err := desktopentry.Parse(data)
		if err != nil {
			log.Debugf("skip %s: %v", name, err)
			continue
		}
		return model.Descriptor{
			Name:       entry.Get("Name"),
			Version:    entry.Get("X-AppImage-Version"),
			Comment:    entry.Get("Comment"),
			Categories: entry.List("Categories"),
			MimeTypes:  entry.List("MimeType"),
			IconName:   entry.Get("Icon"),
			Exec:       entry.Get("Exec"),
			Terminal:   entry.Bool("Terminal"),
			DesktopID:  strings.TrimSuffix(name, ".desktop"),
		}, nil
	}
	return model.Descriptor{}, model.ErrMissingDescriptor
}

var sizeDir = regexp.MustCompile(`/(\d+)x\d+(@\d+)?/`)

// findIcon looks for the declared icon at the image root, then in the
// bundled hicolor tree preferring the largest size, then at .DirIcon.
func findIcon(fsys fs.FS, iconName string) model.IconCandidate {
	name := strings.TrimPrefix(path.Clean("/"+iconName), "/")
	if iconName != "" && name != "" && name != "." {
		candidates := []string{name}
		if path.Ext(name) == "" || !knownIconExt(path.Ext(name)) {
			candidates = []string{name + ".png", name + ".svg", name + ".svgz", name + ".xpm", name}
		}
		for _, c := range candidates {
			if ic, ok := readIcon(fsys, c); ok {
				return ic
			}
		}

		base := path.Base(name)
		if knownIconExt(path.Ext(base)) {
			base = strings.TrimSuffix(base, path.Ext(base))
		}
		pattern := "usr/share/{icons,pixmaps}/**/" + escapeGlob(base) + ".{png,svg,svgz,xpm}"
		matches, _ := doublestar.Glob(fsys, pattern)
		sort.SliceStable(matches, func(a, b int) bool { return iconRank(matches[a]) > iconRank(matches[b]) })
		for _, m := range matches {
			if ic, ok := readIcon(fsys, m); ok {
				return ic
			}
		}
	}

	if ic, ok := readIcon(fsys, ".DirIcon"); ok {
		return ic
	}
	return model.IconCandidate{Provenance: model.ProvenanceEmbedded}
}

func knownIconExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".png", ".svg", ".svgz", ".xpm", ".jpg", ".jpeg", ".bmp", ".webp", ".gif", ".ico":
		return true
	}
	return false
}

// iconRank orders bundled icons: bigger raster sizes first, scalable art
// ahead of everything else.
func iconRank(p string) int {
	if strings.Contains(p, "/scalable/") {
		return 1 << 16
	}
	if m := sizeDir.FindStringSubmatch(p); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 0
}

func readIcon(fsys fs.FS, name string) (model.IconCandidate, bool) {
	f, err := fsys.Open(name)
	if err != nil {
		return model.IconCandidate{}, false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() || info.Size() == 0 || info.Size() > maxIconBytes {
		return model.IconCandidate{}, false
	}
	data, err := fs.ReadFile(fsys, name)
	if err != nil || len(data) == 0 {
		return model.IconCandidate{}, false
	}
	return model.IconCandidate{Bytes: data, Provenance: model.ProvenanceEmbedded, Origin: name}, true
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[]{}\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
