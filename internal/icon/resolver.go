// Package icon produces the icon installed for an application by walking a
// fixed chain of sources until one yields a decodable image.
package icon

import (
	"context"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/3leaps/appimage-installer/internal/identity"
	"github.com/3leaps/appimage-installer/internal/model"
)

// Request describes the application an icon is needed for.
type Request struct {
	Name       string
	IconName   string
	DesktopID  string
	Categories []string
	Embedded   model.IconCandidate
}

// Result is a normalized PNG and the chain step that produced it.
type Result struct {
	PNG        []byte
	Provenance model.Provenance
	Origin     string
	Category   Category
}

// Resolver runs the icon chain: embedded, theme lookup, remote fallback,
// category default.
type Resolver struct {
	theme   *ThemeIndex
	remote  *Remote
	offline bool
	size    int
}

type Option func(*Resolver)

// WithTheme enables local theme lookup.
func WithTheme(t *ThemeIndex) Option { return func(r *Resolver) { r.theme = t } }

// WithRemote enables the remote fallback. A nil Remote disables it.
func WithRemote(rm *Remote) Option { return func(r *Resolver) { r.remote = rm } }

// WithOffline skips every network step.
func WithOffline(offline bool) Option { return func(r *Resolver) { r.offline = offline } }

// WithSize sets the edge length of the produced icon.
func WithSize(size int) Option {
	return func(r *Resolver) {
		if size > 0 {
			r.size = size
		}
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{size: DefaultSize}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve always produces an icon unless ctx is cancelled; failures of the
// first three steps are logged and the chain moves on.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	logger := log.WithField("app", req.Name)
	cat := InferCategory(req.Categories)

	if !req.Embedded.Empty() {
		res, err := r.normalize(req.Embedded, cat)
		if err == nil {
			return res, nil
		}
		logger.Warnf("embedded icon %s unusable: %v", req.Embedded.Origin, err)
	}

	names := lookupNames(req)

	if r.theme != nil {
		for _, path := range r.theme.Lookup(names) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			data, err := os.ReadFile(path) // #nosec G304 -- path from the local icon theme index
			if err != nil {
				logger.Debugf("theme icon %s: %v", path, err)
				continue
			}
			res, err := r.normalize(model.IconCandidate{Bytes: data, Provenance: model.ProvenanceThemeLookup, Origin: path}, cat)
			if err != nil {
				logger.Debugf("theme icon %s: %v", path, err)
				continue
			}
			return res, nil
		}
	}

	if r.remote != nil && !r.offline {
		var res Result
		_, err := r.remote.Fetch(ctx, names, func(c model.IconCandidate) error {
			var nerr error
			res, nerr = r.normalize(c, cat)
			return nerr
		})
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		logger.Debugf("remote icon lookup skipped: %v", err)
	}

	png, err := Normalize(DefaultImage(cat, r.size), r.size)
	if err != nil {
		return Result{}, fmt.Errorf("render default icon: %w", err)
	}
	return Result{PNG: png, Provenance: model.ProvenanceCategoryDefault, Origin: string(cat), Category: cat}, nil
}

func (r *Resolver) normalize(c model.IconCandidate, cat Category) (Result, error) {
	img, err := Decode(c.Bytes, r.size)
	if err != nil {
		return Result{}, err
	}
	png, err := Normalize(img, r.size)
	if err != nil {
		return Result{}, err
	}
	return Result{PNG: png, Provenance: c.Provenance, Origin: c.Origin, Category: cat}, nil
}

// lookupNames lists the names an icon may be filed under, most specific
// first.
func lookupNames(req Request) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if !strings.Contains(req.IconName, "/") {
		add(req.IconName)
	}
	add(req.DesktopID)
	add(req.Name)
	add(identity.Slug(req.Name))
	return out
}
