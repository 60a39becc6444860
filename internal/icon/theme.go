package icon

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
)

// InstalledPrefix marks icons this tool wrote itself; theme lookup skips them.
const InstalledPrefix = "appimage-installer-"

var themeIndexCache = cache.New(5*time.Minute, 10*time.Minute)

type themeFile struct {
	base string // file name without extension, original case
	path string
}

// ThemeIndex finds icons in locally installed icon themes.
type ThemeIndex struct {
	roots []string
}

// NewThemeIndex searches roots in order; for the same name, a file under an
// earlier root wins over one under a later root.
func NewThemeIndex(roots []string) *ThemeIndex {
	return &ThemeIndex{roots: roots}
}

// DefaultThemeRoots lists the icon directories the desktop consults.
func DefaultThemeRoots(dataHome string, dataDirs []string, home string) []string {
	roots := []string{filepath.Join(dataHome, "icons")}
	if home != "" {
		roots = append(roots, filepath.Join(home, ".icons"))
	}
	for _, d := range dataDirs {
		roots = append(roots, filepath.Join(d, "icons"))
	}
	for _, d := range dataDirs {
		roots = append(roots, filepath.Join(d, "pixmaps"))
	}
	return roots
}

// Lookup returns candidate files for names, best first. Each name is tried
// as an exact match, then case-insensitively; if neither finds anything the
// first word of each name is matched as a prefix of icon names. Within a
// tier, earlier names come first, then earlier roots, then larger sizes.
func (t *ThemeIndex) Lookup(names []string) []string {
	indexes := make([]map[string][]themeFile, 0, len(t.roots))
	for _, root := range t.roots {
		if idx := loadIndex(root); len(idx) > 0 {
			indexes = append(indexes, idx)
		}
	}

	var exact, folded, prefix []string
	for _, name := range names {
		if name == "" {
			continue
		}
		lower := strings.ToLower(name)
		token := firstToken(lower)
		for _, idx := range indexes {
			var e, f []string
			for _, tf := range idx[lower] {
				if tf.base == name {
					e = append(e, tf.path)
				} else {
					f = append(f, tf.path)
				}
			}
			exact = append(exact, bySize(e)...)
			folded = append(folded, bySize(f)...)
			if len(token) >= 3 {
				prefix = append(prefix, bySize(prefixMatches(idx, token))...)
			}
		}
	}

	for _, group := range [][]string{exact, folded, prefix} {
		if len(group) > 0 {
			return dedupe(group)
		}
	}
	return nil
}

func bySize(paths []string) []string {
	sort.SliceStable(paths, func(a, b int) bool { return sizeRank(paths[a]) > sizeRank(paths[b]) })
	return paths
}

func prefixMatches(idx map[string][]themeFile, token string) []string {
	keys := make([]string, 0)
	for k := range idx {
		if k == token {
			continue
		}
		if strings.HasPrefix(k, token) && len(k) > len(token) && strings.ContainsRune("-_.", rune(k[len(token)])) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var out []string
	for _, k := range keys {
		for _, f := range idx[k] {
			out = append(out, f.path)
		}
	}
	return out
}

func firstToken(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return strings.ContainsRune(" -_.", r) })
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, p := range in {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

var themeSizeDir = regexp.MustCompile(`/(\d+)x\d+(@(\d+)x?)?/`)

// sizeRank prefers scalable art, then larger raster sizes.
func sizeRank(p string) int {
	p = filepath.ToSlash(p)
	if strings.Contains(p, "/scalable/") {
		return 1 << 16
	}
	if m := themeSizeDir.FindStringSubmatch(p); m != nil {
		n, _ := strconv.Atoi(m[1])
		if scale, err := strconv.Atoi(m[3]); err == nil && scale > 1 {
			n *= scale
		}
		return n
	}
	return 0
}

func loadIndex(root string) map[string][]themeFile {
	if v, ok := themeIndexCache.Get(root); ok {
		return v.(map[string][]themeFile)
	}
	idx := buildIndex(root)
	themeIndexCache.Set(root, idx, cache.DefaultExpiration)
	return idx
}

func buildIndex(root string) map[string][]themeFile {
	idx := make(map[string][]themeFile)
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return idx
	}

	var mu sync.Mutex
	conf := fastwalk.Config{Follow: true}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext != ".png" && ext != ".svg" && ext != ".svgz" {
			return nil
		}
		base := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		if strings.HasPrefix(base, InstalledPrefix) {
			return nil
		}
		key := strings.ToLower(base)
		mu.Lock()
		idx[key] = append(idx[key], themeFile{base: base, path: path})
		mu.Unlock()
		return nil
	})
	if err != nil {
		log.Debugf("index icon theme %s: %v", root, err)
	}
	for k := range idx {
		files := idx[k]
		sort.Slice(files, func(a, b int) bool { return files[a].path < files[b].path })
	}
	return idx
}
