// Package orchestrator runs one install, launch or uninstall transaction for
// an archive the user opened.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/3leaps/appimage-installer/internal/dialog"
	"github.com/3leaps/appimage-installer/internal/icon"
	"github.com/3leaps/appimage-installer/internal/identity"
	"github.com/3leaps/appimage-installer/internal/integration"
	"github.com/3leaps/appimage-installer/internal/model"
	"github.com/3leaps/appimage-installer/internal/registry"
	"github.com/3leaps/appimage-installer/pkg/update"
)

// DefaultPromptTimeout bounds how long a question waits for an answer.
const DefaultPromptTimeout = 2 * time.Minute

// Inspector reads application metadata out of an archive.
type Inspector interface {
	Inspect(ctx context.Context, path string) (model.Descriptor, error)
}

// IconResolver produces the icon installed for an application.
type IconResolver interface {
	Resolve(ctx context.Context, req icon.Request) (icon.Result, error)
}

// Launcher starts an archive detached from this process.
type Launcher interface {
	Launch(ctx context.Context, archive string, args ...string) error
}

// Options tune behavior that is not a collaborator.
type Options struct {
	PromptTimeout      time.Duration
	ConfirmInstall     bool
	LaunchAfterInstall bool
}

// Orchestrator sequences the inspector, icon resolver, registry and
// integration writer into one transaction per Run.
type Orchestrator struct {
	inspector Inspector
	store     *registry.Store
	icons     IconResolver
	writer    *integration.Writer
	dialog    dialog.Dialog
	launcher  Launcher
	opts      Options
	now       func() time.Time

	// afterWrite runs between the artifact writes and the commit.
	afterWrite func(ctx context.Context) error
}

func New(inspector Inspector, store *registry.Store, icons IconResolver, writer *integration.Writer,
	dlg dialog.Dialog, launcher Launcher, opts Options,
) *Orchestrator {
	if opts.PromptTimeout <= 0 {
		opts.PromptTimeout = DefaultPromptTimeout
	}
	if dlg == nil {
		dlg = dialog.Silent{}
	}
	return &Orchestrator{
		inspector: inspector,
		store:     store,
		icons:     icons,
		writer:    writer,
		dialog:    dlg,
		launcher:  launcher,
		opts:      opts,
		now:       time.Now,
	}
}

// Run handles one opened archive. It never returns an error directly: the
// Outcome carries the terminal state and, on failure, the wrapped cause.
// Failures are also summarized to the user through the dialog.
func (o *Orchestrator) Run(ctx context.Context, archivePath string) Outcome {
	out := Outcome{TxID: uuid.NewString(), ArchivePath: archivePath}
	logger := log.WithField("tx", out.TxID[:8])
	out.advance(StateStart)

	return o.finish(ctx, logger, out, o.run(ctx, logger, &out))
}

// Uninstall removes the installed application id using only its registry
// record, so it works after the archive has been deleted or moved away.
func (o *Orchestrator) Uninstall(ctx context.Context, id string) Outcome {
	return o.manage(ctx, id, func(ctx context.Context, logger *log.Entry, out *Outcome, _ model.Record) error {
		return o.uninstall(ctx, logger, out)
	})
}

// Launch starts the installed application id from the archive its record
// names.
func (o *Orchestrator) Launch(ctx context.Context, id string) Outcome {
	return o.manage(ctx, id, func(ctx context.Context, _ *log.Entry, out *Outcome, rec model.Record) error {
		return o.launch(ctx, out, rec.ArchivePath)
	})
}

func (o *Orchestrator) manage(ctx context.Context, id string,
	fn func(context.Context, *log.Entry, *Outcome, model.Record) error,
) Outcome {
	out := Outcome{TxID: uuid.NewString(), Identity: id}
	logger := log.WithFields(log.Fields{"tx": out.TxID[:8], "identity": id})
	out.advance(StateStart)

	err := func() error {
		o.recover(ctx, logger)
		rec, status, err := o.store.Lookup(ctx, id)
		if err != nil {
			return err
		}
		if status == model.StatusAbsent {
			return fmt.Errorf("%w: %s", model.ErrNotInstalled, id)
		}
		out.Name = rec.Name
		out.ArchivePath = rec.ArchivePath
		return fn(ctx, logger, &out, rec)
	}()
	return o.finish(ctx, logger, out, err)
}

func (o *Orchestrator) finish(ctx context.Context, logger *log.Entry, out Outcome, err error) Outcome {
	switch {
	case err == nil && out.State == StateCancelled:
	case err == nil:
		out.advance(StateSucceeded)
	case isCancellation(err) && !out.mutated:
		logger.Infof("cancelled: %v", err)
		out.advance(StateCancelled)
	default:
		out.Err = err
		out.advance(StateFailed)
	}
	logger.WithFields(log.Fields{"state": out.State, "action": out.Action, "identity": out.Identity}).Info("transaction finished")
	o.report(ctx, out)
	return out
}

func (o *Orchestrator) run(ctx context.Context, logger *log.Entry, out *Outcome) error {
	o.recover(ctx, logger)

	out.advance(StateInspecting)
	abs, err := filepath.Abs(out.ArchivePath)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", out.ArchivePath, err)
	}
	out.ArchivePath = abs
	desc, err := o.inspector.Inspect(ctx, abs)
	if err != nil {
		return err
	}
	out.Name = desc.Name
	id := identity.Key(desc.DesktopID, desc.Name)
	if id == "" {
		return fmt.Errorf("%w: no usable name or desktop id in %s", model.ErrMissingDescriptor, abs)
	}
	out.Identity = id
	logger = logger.WithField("identity", id)

	rec, status, err := o.store.Lookup(ctx, id)
	if err != nil {
		return err
	}
	logger.Debugf("registry status %s", status)
	if status == model.StatusPresent {
		return o.prompt(ctx, logger, out, desc, rec)
	}
	if status == model.StatusOrphaned {
		logger.Infof("record for %s has no launcher; reinstalling", id)
	}
	return o.install(ctx, logger, out, desc)
}

// recover cleans up after earlier runs that died mid-install. A busy
// registry is left for the next run; a corrupt one surfaces at lookup.
func (o *Orchestrator) recover(ctx context.Context, logger *log.Entry) {
	report, err := o.store.Recover(ctx)
	if err != nil {
		logger.Warnf("crash recovery skipped: %v", err)
		return
	}
	if len(report.Cleaned) > 0 {
		logger.Infof("rolled back %d interrupted install(s)", len(report.Cleaned))
	}
}

func (o *Orchestrator) prompt(ctx context.Context, logger *log.Entry, out *Outcome, desc model.Descriptor, rec model.Record) error {
	out.advance(StatePrompting)
	text := update.DescribeRelation(rec.Name, rec.Version, desc.Version)
	if sameBuild(logger, rec, desc, out.ArchivePath) {
		text += " This is the file it was installed from."
	}
	choice, err := o.ask(ctx, dialog.Prompt{
		Title:   rec.Name,
		Text:    text + " What would you like to do?",
		Choices: []dialog.Choice{dialog.ChoiceLaunch, dialog.ChoiceUninstall, dialog.ChoiceCancel},
	})
	if err != nil {
		return err
	}
	logger.Infof("user chose %s", choice)

	switch choice {
	case dialog.ChoiceLaunch:
		return o.launch(ctx, out, out.ArchivePath)
	case dialog.ChoiceUninstall:
		return o.uninstall(ctx, logger, out)
	default:
		out.Action = ActionNone
		out.advance(StateCancelled)
		return nil
	}
}

// ask bounds a prompt with the prompt timeout. Running out of time counts
// as cancelling.
func (o *Orchestrator) ask(ctx context.Context, p dialog.Prompt) (dialog.Choice, error) {
	pctx, cancel := context.WithTimeout(ctx, o.opts.PromptTimeout)
	defer cancel()
	choice, err := o.dialog.Ask(pctx, p)
	if err != nil {
		if ctx.Err() != nil {
			return dialog.ChoiceCancel, ctx.Err()
		}
		if pctx.Err() != nil {
			return dialog.ChoiceCancel, nil
		}
		return dialog.ChoiceCancel, fmt.Errorf("ask user: %w", err)
	}
	return choice, nil
}

func (o *Orchestrator) launch(ctx context.Context, out *Outcome, archive string) error {
	out.advance(StateLaunching)
	if out.Action == "" {
		out.Action = ActionLaunch
	}
	if o.launcher == nil {
		return errors.New("no launcher configured")
	}
	if err := o.launcher.Launch(ctx, archive); err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	out.Launched = true
	return nil
}

func (o *Orchestrator) install(ctx context.Context, logger *log.Entry, out *Outcome, desc model.Descriptor) error {
	if o.opts.ConfirmInstall {
		out.advance(StatePrompting)
		choice, err := o.ask(ctx, dialog.Prompt{
			Title:   desc.Name,
			Text:    fmt.Sprintf("Install %s and add it to your applications menu?", displayName(desc)),
			Choices: []dialog.Choice{dialog.ChoiceInstall, dialog.ChoiceCancel},
		})
		if err != nil {
			return err
		}
		if choice != dialog.ChoiceInstall {
			out.Action = ActionNone
			out.advance(StateCancelled)
			return nil
		}
	}

	out.advance(StateInstalling)
	res, err := o.icons.Resolve(ctx, icon.Request{
		Name:       desc.Name,
		IconName:   desc.IconName,
		DesktopID:  desc.DesktopID,
		Categories: desc.Categories,
		Embedded:   desc.Icon,
	})
	if err != nil {
		return fmt.Errorf("resolve icon: %w", err)
	}
	logger.Debugf("icon from %s (%s)", res.Provenance, res.Origin)

	txn, err := o.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := txn.Close(); err != nil {
			logger.Warnf("release registry lock: %v", err)
		}
	}()

	id := out.Identity
	prior, status := txn.Lookup(id)
	if status == model.StatusPresent {
		logger.Info("installed by a concurrent run; nothing to do")
		out.Action = ActionNone
		out.Record = prior
		return nil
	}

	layout := o.writer.Layout()
	intent := registry.Intent{
		ID:       out.TxID,
		Kind:     registry.IntentInstall,
		Identity: id,
		Paths:    []string{layout.IconPath(id), layout.LauncherPath(id)},
	}
	if err := txn.Announce(ctx, intent); err != nil {
		return err
	}

	var written []string
	rollback := func(cause error) error {
		result := multierror.Append(nil, cause)
		if err := o.writer.Remove(written...); err != nil {
			// The intent stays so a later run can finish the cleanup.
			out.mutated = true
			result = multierror.Append(result, fmt.Errorf("roll back: %w", err))
			return result.ErrorOrNil()
		}
		if err := txn.Settle(intent.ID); err != nil {
			logger.Warnf("settle intent: %v", err)
		}
		if len(written) > 0 {
			logger.Infof("rolled back %d file(s)", len(written))
		}
		return cause
	}

	iconPath, err := o.writer.WriteIcon(ctx, id, res.PNG)
	if err != nil {
		return rollback(err)
	}
	written = append(written, iconPath)

	launcherPath, err := o.writer.WriteLauncher(ctx, integration.Launcher{
		Identity:    id,
		Name:        desc.Name,
		Comment:     desc.Comment,
		Version:     desc.Version,
		ArchivePath: out.ArchivePath,
		IconPath:    iconPath,
		Categories:  desc.Categories,
		MimeTypes:   desc.MimeTypes,
		Terminal:    desc.Terminal,
	})
	if err != nil {
		return rollback(err)
	}
	written = append(written, launcherPath)

	if o.afterWrite != nil {
		if err := o.afterWrite(ctx); err != nil {
			return rollback(err)
		}
	}

	rec := model.Record{
		Identity:     id,
		ArchivePath:  out.ArchivePath,
		Name:         desc.Name,
		Version:      desc.Version,
		IconPath:     iconPath,
		LauncherPath: launcherPath,
		InstalledAt:  o.now().UTC(),
		Digest:       desc.Digest,
		IconSource:   res.Provenance,
		Categories:   desc.Categories,
		Txn:          out.TxID,
	}
	if err := txn.Commit(ctx, rec); err != nil {
		return rollback(err)
	}
	out.mutated = true
	if err := txn.Settle(intent.ID); err != nil {
		logger.Warnf("settle intent: %v", err)
	}

	if prior.IconPath != "" && prior.IconPath != iconPath {
		if err := o.writer.Remove(prior.IconPath); err != nil {
			logger.Warnf("remove previous icon: %v", err)
		}
	}
	o.writer.Refresh(ctx)

	out.Action = ActionInstall
	out.Record = rec
	out.advance(StateInstalled)
	logger.Infof("installed %s", displayName(desc))

	if o.opts.LaunchAfterInstall {
		if err := o.launch(ctx, out, out.ArchivePath); err != nil {
			// The install stands; only the launch failed.
			logger.Warnf("launch after install: %v", err)
			out.LaunchErr = err
		}
	}
	return nil
}

func (o *Orchestrator) uninstall(ctx context.Context, logger *log.Entry, out *Outcome) error {
	out.advance(StateUninstalling)
	txn, err := o.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := txn.Close(); err != nil {
			logger.Warnf("release registry lock: %v", err)
		}
	}()

	rec, status := txn.Lookup(out.Identity)
	if status == model.StatusAbsent {
		logger.Info("removed by a concurrent run; nothing to do")
		out.Action = ActionNone
		return nil
	}

	intent := registry.Intent{
		ID:       out.TxID,
		Kind:     registry.IntentUninstall,
		Identity: out.Identity,
		Paths:    []string{rec.IconPath, rec.LauncherPath},
	}
	if err := txn.Announce(ctx, intent); err != nil {
		return err
	}
	if err := txn.Remove(ctx, out.Identity); err != nil {
		if serr := txn.Settle(intent.ID); serr != nil {
			logger.Warnf("settle intent: %v", serr)
		}
		return err
	}
	out.mutated = true
	if err := o.writer.Remove(rec.LauncherPath, rec.IconPath); err != nil {
		// The record is gone; the intent lets recovery delete the files.
		return fmt.Errorf("remove launcher files: %w", err)
	}
	if err := txn.Settle(intent.ID); err != nil {
		logger.Warnf("settle intent: %v", err)
	}
	o.writer.Refresh(ctx)

	out.Action = ActionUninstall
	out.Record = rec
	logger.Infof("uninstalled %s", rec.Name)
	return nil
}

// report tells the user how the transaction ended. It runs even when ctx
// is already cancelled.
func (o *Orchestrator) report(ctx context.Context, out Outcome) {
	msg, ok := out.message()
	if !ok {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.PromptTimeout)
	defer cancel()
	if err := o.dialog.Inform(rctx, msg); err != nil {
		log.Debugf("show result: %v", err)
	}
}

// sameBuild reports whether opening archive would install exactly what rec
// describes. The descriptor's fields are laid over the stored record and
// the two fingerprints compared.
func sameBuild(logger *log.Entry, rec model.Record, desc model.Descriptor, archive string) bool {
	candidate := rec
	candidate.ArchivePath = archive
	candidate.Name = desc.Name
	candidate.Version = desc.Version
	candidate.Digest = desc.Digest
	candidate.Categories = desc.Categories
	want, err := registry.Fingerprint(rec)
	if err != nil {
		logger.Debugf("fingerprint record: %v", err)
		return false
	}
	got, err := registry.Fingerprint(candidate)
	if err != nil {
		logger.Debugf("fingerprint candidate: %v", err)
		return false
	}
	return want == got
}

func displayName(desc model.Descriptor) string {
	if desc.Version != "" {
		return desc.Name + " " + desc.Version
	}
	return desc.Name
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) && !errors.Is(err, model.ErrExtractionTimeout)
}
