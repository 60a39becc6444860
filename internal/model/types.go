package model

import "time"

// Provenance records which step of the icon chain produced an icon.
type Provenance string

const (
	ProvenanceEmbedded        Provenance = "embedded"
	ProvenanceThemeLookup     Provenance = "theme-lookup"
	ProvenanceRemoteFallback  Provenance = "remote-fallback"
	ProvenanceCategoryDefault Provenance = "category-default"
)

// IconCandidate is a raw icon payload and where it came from.
type IconCandidate struct {
	Bytes      []byte
	Provenance Provenance
	Origin     string // path inside the image, theme file, or URL
}

// Empty reports whether the candidate carries no payload.
func (c IconCandidate) Empty() bool {
	return len(c.Bytes) == 0
}

// Descriptor is the application metadata read out of an archive.
// It only lives for the duration of one invocation.
type Descriptor struct {
	Name        string
	Version     string
	Comment     string
	Categories  []string
	MimeTypes   []string
	IconName    string
	Icon        IconCandidate
	Exec        string // entry point declared inside the image
	Terminal    bool
	DesktopID   string // basename of the embedded .desktop file, without extension
	Digest      string // sha256 of the archive, hex
	ArchivePath string
}

// Record is a persisted installation. Records are replaced whole, never patched.
type Record struct {
	Identity     string     `json:"identity"`
	ArchivePath  string     `json:"archivePath"`
	Name         string     `json:"name"`
	Version      string     `json:"version,omitempty"`
	IconPath     string     `json:"iconPath"`
	LauncherPath string     `json:"launcherPath"`
	InstalledAt  time.Time  `json:"installedAt" hash:"ignore"`
	Digest       string     `json:"digest,omitempty"`
	IconSource   Provenance `json:"iconSource,omitempty"`
	Categories   []string   `json:"categories,omitempty"`
	Txn          string     `json:"txn,omitempty" hash:"ignore"` // transaction that committed the record
}

// Status is the result of a registry lookup.
type Status string

const (
	StatusAbsent   Status = "absent"
	StatusPresent  Status = "present"
	StatusOrphaned Status = "orphaned" // record exists but its launcher file is gone
)
