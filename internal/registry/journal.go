package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/3leaps/appimage-installer/internal/atomicfile"
	"github.com/3leaps/appimage-installer/internal/hostenv"
)

// IntentKind says which registry change an intent precedes.
type IntentKind string

const (
	IntentInstall   IntentKind = "install"
	IntentUninstall IntentKind = "uninstall"
)

// Intent announces files a transaction is about to write or delete before
// its registry change lands. If the process dies in between, Recover uses
// the intent to bring the files back in line with the registry.
//
// An install intent counts as committed only when the identity's record
// carries the intent ID in its Txn field. An uninstall intent counts as
// committed once the record is gone.
type Intent struct {
	ID        string        `json:"id"`
	Kind      IntentKind    `json:"kind,omitempty"`
	Identity  string        `json:"identity"`
	Owner     hostenv.Owner `json:"owner"`
	Paths     []string      `json:"paths"`
	CreatedAt time.Time     `json:"createdAt"`
}

// RecoveryReport lists what a recovery pass did.
type RecoveryReport struct {
	Settled []string // intents whose install had committed
	Cleaned []string // intents whose artifacts were deleted
	Removed []string // artifact paths deleted
	Pending []string // intents still owned by a live process
}

func (s *Store) journalPath(id string) string {
	return filepath.Join(s.dir, journalDir, id+".json")
}

// Announce records intent under the held lock.
func (t *Txn) Announce(ctx context.Context, intent Intent) error {
	if intent.ID == "" {
		return errors.New("intent without id")
	}
	if intent.Kind == "" {
		intent.Kind = IntentInstall
	}
	if intent.Owner.PID == 0 {
		intent.Owner = hostenv.Self(ctx)
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}
	if err := atomicfile.Write(ctx, t.store.journalPath(intent.ID), data, 0o600); err != nil {
		return fmt.Errorf("write intent: %w", err)
	}
	return nil
}

// Settle discards an intent once its install committed or rolled back.
func (t *Txn) Settle(id string) error {
	return atomicfile.Remove(t.store.journalPath(id))
}

// Recover finishes or undoes installs whose owning process died between
// writing artifacts and committing the record.
func (s *Store) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	entries, err := os.ReadDir(filepath.Join(s.dir, journalDir))
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(entries) == 0) {
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("read journal: %w", err)
	}

	txn, err := s.Begin(ctx)
	if err != nil {
		return report, err
	}
	defer txn.Close()

	owner := make(map[string]string)
	for _, rec := range txn.Records() {
		owner[rec.LauncherPath] = rec.Identity
		owner[rec.IconPath] = rec.Identity
	}

	var errs *multierror.Error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, journalDir, entry.Name())
		intent, err := readIntent(path)
		if err != nil {
			// An unreadable intent cannot name artifacts; drop it.
			log.Warnf("discarding unreadable install intent %s: %v", path, err)
			errs = multierror.Append(errs, atomicfile.Remove(path))
			continue
		}
		if s.alive(ctx, intent.Owner) {
			report.Pending = append(report.Pending, intent.ID)
			continue
		}

		logger := log.WithField("identity", intent.Identity)
		rec, ok := txn.doc.Records[intent.Identity]
		switch {
		case intent.Kind == IntentUninstall && ok:
			// The record was never removed, so its files stay.
			report.Cleaned = append(report.Cleaned, intent.ID)
			logger.Infof("abandoned interrupted uninstall %s", intent.ID)
		case intent.Kind == IntentUninstall:
			errs = multierror.Append(errs, removeArtifacts(&report, intent, owner))
			report.Settled = append(report.Settled, intent.ID)
			logger.Infof("finished interrupted uninstall %s", intent.ID)
		case ok && rec.Txn == intent.ID,
			// Records written before transactions were stamped.
			ok && rec.Txn == "" && !rec.InstalledAt.Before(intent.CreatedAt):
			report.Settled = append(report.Settled, intent.ID)
		default:
			// Files of an older record for the same identity were either
			// overwritten by this install or belong to a record that is
			// already orphaned, so they go too.
			errs = multierror.Append(errs, removeArtifacts(&report, intent, owner))
			report.Cleaned = append(report.Cleaned, intent.ID)
			logger.Infof("rolled back interrupted install %s", intent.ID)
		}
		errs = multierror.Append(errs, txn.Settle(intent.ID))
	}
	return report, errs.ErrorOrNil()
}

// removeArtifacts deletes the intent's paths, skipping files that a record
// of another identity points at.
func removeArtifacts(report *RecoveryReport, intent Intent, owner map[string]string) error {
	var errs *multierror.Error
	for _, p := range intent.Paths {
		if id, ok := owner[p]; ok && id != intent.Identity {
			continue
		}
		if _, err := os.Lstat(p); err != nil {
			continue
		}
		if err := atomicfile.Remove(p); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		report.Removed = append(report.Removed, p)
	}
	return errs.ErrorOrNil()
}

func readIntent(path string) (Intent, error) {
	var intent Intent
	data, err := os.ReadFile(path) // #nosec G304 -- journal path under the registry dir
	if err != nil {
		return intent, err
	}
	if err := json.Unmarshal(data, &intent); err != nil {
		return intent, err
	}
	if intent.ID == "" {
		return intent, errors.New("intent without id")
	}
	return intent, nil
}
