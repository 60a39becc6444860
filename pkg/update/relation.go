package update

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

// Relation is how an opened archive's version relates to the installed one.
type Relation string

const (
	RelationSame    Relation = "same"    // same version as installed
	RelationNewer   Relation = "newer"   // opened archive is newer
	RelationOlder   Relation = "older"   // opened archive is older
	RelationUnknown Relation = "unknown" // at least one side is not comparable
)

var rollingLabels = map[string]struct{}{
	"dev":        {},
	"0.0.0-dev":  {},
	"continuous": {},
	"nightly":    {},
	"latest":     {},
}

// FormatVersionDisplay formats a version string for display, adding a "v"
// prefix to numeric versions.
func FormatVersionDisplay(v string) string {
	v = strings.TrimSpace(v)
	if _, ok := NormalizeVersion(v); !ok {
		return v
	}
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// NormalizeVersion strips a leading "v" and reports whether the result can
// be compared. Rolling labels and unparseable strings return ("", false).
func NormalizeVersion(v string) (string, bool) {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "", false
	}
	if _, rolling := rollingLabels[strings.ToLower(trimmed)]; rolling {
		return "", false
	}
	normalized := strings.TrimPrefix(trimmed, "v")
	if _, err := version.NewVersion(normalized); err != nil {
		return "", false
	}
	return normalized, true
}

// Compare relates candidate (the opened archive) to installed.
func Compare(installed, candidate string) Relation {
	in, inOK := NormalizeVersion(installed)
	cand, candOK := NormalizeVersion(candidate)
	if !inOK || !candOK {
		if strings.TrimSpace(installed) != "" && strings.TrimSpace(installed) == strings.TrimSpace(candidate) {
			return RelationSame
		}
		return RelationUnknown
	}
	a, err := version.NewVersion(in)
	if err != nil {
		return RelationUnknown
	}
	b, err := version.NewVersion(cand)
	if err != nil {
		return RelationUnknown
	}
	switch b.Compare(a) {
	case 1:
		return RelationNewer
	case -1:
		return RelationOlder
	default:
		return RelationSame
	}
}

// DescribeRelation phrases the state of an installed application for the
// prompt shown when its archive is opened again.
func DescribeRelation(name, installed, candidate string) string {
	shownIn := FormatVersionDisplay(installed)
	shownCand := FormatVersionDisplay(candidate)
	switch Compare(installed, candidate) {
	case RelationNewer:
		return fmt.Sprintf("%s %s is installed; this file has the newer %s.", name, shownIn, shownCand)
	case RelationOlder:
		return fmt.Sprintf("%s %s is installed; this file has the older %s.", name, shownIn, shownCand)
	case RelationSame:
		return fmt.Sprintf("%s %s is already installed.", name, shownIn)
	}
	if shownIn == "" || shownCand == "" {
		return fmt.Sprintf("%s is already installed.", name)
	}
	return fmt.Sprintf("%s %q is installed; this file is %q.", name, shownIn, shownCand)
}
