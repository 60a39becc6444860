// Package registry persists which applications are installed. It is the only
// authority on "is this archive installed".
package registry

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	log "github.com/sirupsen/logrus"

	"github.com/3leaps/appimage-installer/internal/atomicfile"
	"github.com/3leaps/appimage-installer/internal/hostenv"
	"github.com/3leaps/appimage-installer/internal/model"
)

const (
	FileName     = "registry.json"
	lockFileName = "registry.lock"
	journalDir   = "journal"
	formatV1     = 1

	DefaultLockTimeout = 2 * time.Second
)

//go:embed schema.json
var schemaJSON []byte

type document struct {
	Version int                     `json:"version"`
	Records map[string]model.Record `json:"records"`
}

func emptyDocument() *document {
	return &document{Version: formatV1, Records: map[string]model.Record{}}
}

// Store is a JSON-file registry guarded by an advisory lock file.
type Store struct {
	dir         string
	lockTimeout time.Duration
	schema      *jsonschema.Schema
	alive       func(context.Context, hostenv.Owner) bool
}

type Option func(*Store)

// WithLockTimeout bounds how long mutations wait for a held lock before
// failing with model.ErrRegistryBusy.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithLiveness replaces the process liveness probe used by Recover.
func WithLiveness(fn func(context.Context, hostenv.Owner) bool) Option {
	return func(s *Store) { s.alive = fn }
}

// New returns a Store rooted at dir. Nothing is created until the first
// mutation.
func New(dir string, opts ...Option) (*Store, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	s := &Store{
		dir:         dir,
		lockTimeout: DefaultLockTimeout,
		schema:      schema,
		alive:       hostenv.Alive,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse registry schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("registry.schema.json", doc); err != nil {
		return nil, fmt.Errorf("add registry schema: %w", err)
	}
	schema, err := c.Compile("registry.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile registry schema: %w", err)
	}
	return schema, nil
}

// Path is the registry file location.
func (s *Store) Path() string { return filepath.Join(s.dir, FileName) }

func (s *Store) lockPath() string { return filepath.Join(s.dir, lockFileName) }

func (s *Store) load() (*document, error) {
	path := s.Path()
	data, err := os.ReadFile(path) // #nosec G304 -- registry path derived from config
	if errors.Is(err, os.ErrNotExist) {
		return emptyDocument(), nil
	}
	if err != nil {
		return nil, &model.CorruptError{Path: path, Err: err}
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, &model.CorruptError{Path: path, Err: err}
	}
	if err := s.schema.Validate(inst); err != nil {
		return nil, &model.CorruptError{Path: path, Err: err}
	}

	doc := emptyDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, &model.CorruptError{Path: path, Err: err}
	}
	if doc.Records == nil {
		doc.Records = map[string]model.Record{}
	}
	for key, rec := range doc.Records {
		if key != rec.Identity {
			return nil, &model.CorruptError{Path: path, Err: fmt.Errorf("record %q is filed under key %q", rec.Identity, key)}
		}
	}
	return doc, nil
}

func (s *Store) save(ctx context.Context, doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := atomicfile.Write(ctx, s.Path(), append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("%w: %w", model.ErrWriteFailure, err)
	}
	return nil
}

// Lookup reads the current record for id without taking the lock. Writers
// replace the file atomically, so an unlocked read sees a complete state.
func (s *Store) Lookup(_ context.Context, id string) (model.Record, model.Status, error) {
	doc, err := s.load()
	if err != nil {
		return model.Record{}, model.StatusAbsent, err
	}
	rec, status := lookup(doc, id)
	return rec, status, nil
}

// List returns every record ordered by identity.
func (s *Store) List(_ context.Context) ([]model.Record, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return sortedRecords(doc), nil
}

// Commit inserts or replaces rec under its own lock.
func (s *Store) Commit(ctx context.Context, rec model.Record) (err error) {
	txn, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := txn.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()
	return txn.Commit(ctx, rec)
}

// Remove deletes the record for id under its own lock.
func (s *Store) Remove(ctx context.Context, id string) (err error) {
	txn, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := txn.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()
	return txn.Remove(ctx, id)
}

// Begin takes the registry lock and loads the current state. The caller must
// Close the transaction.
func (s *Store) Begin(ctx context.Context) (*Txn, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create registry dir: %w", model.ErrWriteFailure, err)
	}
	lock, err := acquireLock(ctx, s.lockPath(), s.lockTimeout)
	if err != nil {
		return nil, err
	}
	doc, err := s.load()
	if err != nil {
		_ = releaseLock(lock)
		return nil, err
	}
	return &Txn{store: s, lock: lock, doc: doc}, nil
}

// Txn is a locked view of the registry. Mutations are written through
// immediately.
type Txn struct {
	store  *Store
	lock   *os.File
	doc    *document
	closed bool
}

// Lookup is the locked counterpart of Store.Lookup.
func (t *Txn) Lookup(id string) (model.Record, model.Status) {
	return lookup(t.doc, id)
}

// Records returns every record ordered by identity.
func (t *Txn) Records() []model.Record {
	return sortedRecords(t.doc)
}

func (t *Txn) Commit(ctx context.Context, rec model.Record) error {
	if t.closed {
		return errors.New("commit on closed registry transaction")
	}
	if rec.Identity == "" {
		return errors.New("commit record without identity")
	}
	if rec.InstalledAt.IsZero() {
		rec.InstalledAt = time.Now().UTC()
	}
	next := t.doc.clone()
	next.Records[rec.Identity] = rec
	if err := t.store.save(ctx, next); err != nil {
		return err
	}
	t.doc = next
	log.WithField("identity", rec.Identity).Debug("registry record committed")
	return nil
}

func (t *Txn) Remove(ctx context.Context, id string) error {
	if t.closed {
		return errors.New("remove on closed registry transaction")
	}
	if _, ok := t.doc.Records[id]; !ok {
		return nil
	}
	next := t.doc.clone()
	delete(next.Records, id)
	if err := t.store.save(ctx, next); err != nil {
		return err
	}
	t.doc = next
	log.WithField("identity", id).Debug("registry record removed")
	return nil
}

// Close releases the lock. It is safe to call more than once.
func (t *Txn) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return releaseLock(t.lock)
}

func (d *document) clone() *document {
	out := &document{Version: formatV1, Records: make(map[string]model.Record, len(d.Records)+1)}
	for k, v := range d.Records {
		out.Records[k] = v
	}
	return out
}

func lookup(doc *document, id string) (model.Record, model.Status) {
	rec, ok := doc.Records[id]
	if !ok {
		return model.Record{}, model.StatusAbsent
	}
	if _, err := os.Stat(rec.LauncherPath); errors.Is(err, os.ErrNotExist) {
		return rec, model.StatusOrphaned
	}
	return rec, model.StatusPresent
}

func sortedRecords(doc *document) []model.Record {
	out := make([]model.Record, 0, len(doc.Records))
	for _, rec := range doc.Records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Fingerprint hashes the parts of a record that describe what is installed.
// The install timestamp is excluded, so reinstalling the same archive yields
// the same fingerprint.
func Fingerprint(rec model.Record) (uint64, error) {
	return hashstructure.Hash(rec, hashstructure.FormatV2, nil)
}
