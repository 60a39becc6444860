// Package hostenv probes the host for facts that decide whether an archive
// can be run and whether a leftover scratch area still has a living owner.
package hostenv

import (
	"path/filepath"
	"strings"
)

// Mount is one row of the kernel mount table.
type Mount struct {
	Point   string
	FSType  string
	options map[string]struct{}
}

// Has reports whether the mount carries option opt.
func (m Mount) Has(opt string) bool {
	_, ok := m.options[opt]
	return ok
}

// NewMount builds a Mount carrying opts.
func NewMount(point, fsType string, opts ...string) Mount {
	m := Mount{Point: point, FSType: fsType, options: make(map[string]struct{}, len(opts))}
	for _, o := range opts {
		m.options[o] = struct{}{}
	}
	return m
}

// MountTable answers "which mount holds this path".
type MountTable struct {
	mounts []Mount
}

func NewMountTable(mounts ...Mount) MountTable {
	return MountTable{mounts: mounts}
}

// Lookup returns the mount with the longest mount point containing path.
func (t MountTable) Lookup(path string) (Mount, bool) {
	p := filepath.ToSlash(filepath.Clean(path))
	if p == "." || p == "" {
		return Mount{}, false
	}

	best := -1
	for i, m := range t.mounts {
		point := filepath.ToSlash(filepath.Clean(m.Point))
		if point == "." || point == "" || !pathHasPrefix(p, point) {
			continue
		}
		if best < 0 || len(point) > len(filepath.Clean(t.mounts[best].Point)) {
			best = i
		}
	}
	if best < 0 {
		return Mount{}, false
	}
	return t.mounts[best], true
}

// NoExec reports whether path lives on a mount that forbids execution.
// Unknown paths are assumed executable.
func (t MountTable) NoExec(path string) bool {
	m, ok := t.Lookup(path)
	return ok && m.Has("noexec")
}

func parseMountinfo(content string) MountTable {
	var out []Mount
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		sep := -1
		for i, f := range fields {
			if f == "-" {
				sep = i
				break
			}
		}
		// id parent major:minor root mountpoint options [optional...] - fstype source superopts
		if sep < 6 || len(fields) < sep+2 {
			continue
		}

		m := Mount{
			Point:   unescapeMountPath(fields[4]),
			FSType:  fields[sep+1],
			options: parseMountOptions(fields[5]),
		}
		if sep+3 < len(fields) {
			for k := range parseMountOptions(fields[sep+3]) {
				m.options[k] = struct{}{}
			}
		}
		out = append(out, m)
	}
	return MountTable{mounts: out}
}

func parseProcMounts(content string) MountTable {
	var out []Mount
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		out = append(out, Mount{
			Point:   unescapeMountPath(fields[1]),
			FSType:  fields[2],
			options: parseMountOptions(fields[3]),
		})
	}
	return MountTable{mounts: out}
}

func parseMountOptions(opt string) map[string]struct{} {
	m := make(map[string]struct{})
	for _, part := range strings.Split(opt, ",") {
		if part = strings.TrimSpace(part); part != "" {
			m[part] = struct{}{}
		}
	}
	return m
}

// Procfs encodes whitespace and backslashes in mount points as octal escapes.
var mountPathUnescaper = strings.NewReplacer(
	"\\040", " ",
	"\\011", "\t",
	"\\012", "\n",
	"\\134", "\\",
)

func unescapeMountPath(value string) string {
	return mountPathUnescaper.Replace(value)
}

func pathHasPrefix(path, prefix string) bool {
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
