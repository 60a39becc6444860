//go:build linux

package hostenv

import "os"

// LoadMountTable reads the mount table of the calling process. It prefers
// mountinfo because it also exposes superblock options; any failure yields an
// empty table.
func LoadMountTable() MountTable {
	if data, err := os.ReadFile("/proc/self/mountinfo"); err == nil { // #nosec G304 -- fixed procfs path
		if t := parseMountinfo(string(data)); len(t.mounts) > 0 {
			return t
		}
	}
	data, err := os.ReadFile("/proc/mounts") // #nosec G304 -- fixed procfs path
	if err != nil {
		return MountTable{}
	}
	return parseProcMounts(string(data))
}
