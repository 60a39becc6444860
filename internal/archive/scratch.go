package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/3leaps/appimage-installer/internal/hostenv"
)

const (
	ownerFile = ".owner"
	// A scratch dir without a readable owner file is only reclaimed once it
	// is older than this, so a dir being created right now is left alone.
	ownerlessGrace = 10 * time.Minute
)

// ScratchRoot is the parent of every per-inspection scratch area.
type ScratchRoot struct {
	dir   string
	alive func(context.Context, hostenv.Owner) bool
	now   func() time.Time
}

func NewScratchRoot(dir string) *ScratchRoot {
	return &ScratchRoot{dir: dir, alive: hostenv.Alive, now: time.Now}
}

// Dir is the root directory.
func (r *ScratchRoot) Dir() string { return r.dir }

// Scratch is a private working directory for one inspection.
type Scratch struct {
	Dir string
}

// Create purges stale areas and then makes a new one owned by this process.
func (r *ScratchRoot) Create(ctx context.Context) (*Scratch, error) {
	if _, err := r.Purge(ctx); err != nil {
		log.Warnf("purge stale scratch areas: %v", err)
	}
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}

	owner := hostenv.Self(ctx)
	dir := filepath.Join(r.dir, fmt.Sprintf("%d-%s", owner.PID, uuid.NewString()[:8]))
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	data, err := json.Marshal(owner)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("encode scratch owner: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ownerFile), data, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("write scratch owner: %w", err)
	}
	log.Debugf("created scratch area %s", dir)
	return &Scratch{Dir: dir}, nil
}

// Release removes the scratch area and everything in it.
func (s *Scratch) Release() error {
	if s == nil || s.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("remove scratch %s: %w", s.Dir, err)
	}
	return nil
}

// Purge removes scratch areas whose owning process is gone. It returns the
// removed directories.
func (r *ScratchRoot) Purge(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read scratch root: %w", err)
	}

	var removed []string
	var errs *multierror.Error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(r.dir, entry.Name())
		if !r.stale(ctx, dir, entry) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("remove stale scratch %s: %w", dir, err))
			continue
		}
		log.Infof("removed stale scratch area %s", dir)
		removed = append(removed, dir)
	}
	return removed, errs.ErrorOrNil()
}

func (r *ScratchRoot) stale(ctx context.Context, dir string, entry os.DirEntry) bool {
	data, err := os.ReadFile(filepath.Join(dir, ownerFile)) // #nosec G304 -- inside our scratch root
	if err == nil {
		var owner hostenv.Owner
		if json.Unmarshal(data, &owner) == nil && owner.PID > 0 {
			return !r.alive(ctx, owner)
		}
	}
	if !strings.Contains(entry.Name(), "-") {
		return false
	}
	info, err := entry.Info()
	if err != nil {
		return false
	}
	return r.now().Sub(info.ModTime()) > ownerlessGrace
}
