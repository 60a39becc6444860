package main

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/3leaps/appimage-installer/internal/archive"
	"github.com/3leaps/appimage-installer/internal/association"
	"github.com/3leaps/appimage-installer/internal/config"
	"github.com/3leaps/appimage-installer/internal/dialog"
	"github.com/3leaps/appimage-installer/internal/hostenv"
	"github.com/3leaps/appimage-installer/internal/icon"
	"github.com/3leaps/appimage-installer/internal/integration"
	"github.com/3leaps/appimage-installer/internal/launch"
	"github.com/3leaps/appimage-installer/internal/logging"
	"github.com/3leaps/appimage-installer/internal/orchestrator"
	"github.com/3leaps/appimage-installer/internal/registry"
)

// environment is the resolved configuration plus the collaborators built
// from it for one invocation.
type environment struct {
	cfg    config.Config
	logs   io.Closer
	runner hostenv.Runner
}

func setup(cmd *cobra.Command, configFile string) (*environment, error) {
	v := viper.New()
	for key, flag := range boundFlags(cmd) {
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("bind --%s: %w", flag.Name, err)
		}
	}
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, err
	}
	logs, err := logging.Init(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}
	log.WithField("version", version).Debug("starting")
	return &environment{cfg: cfg, logs: logs, runner: hostenv.ExecRunner{}}, nil
}

func (e *environment) Close() error {
	return e.logs.Close()
}

func (e *environment) store() (*registry.Store, error) {
	return registry.New(e.cfg.StateDir, registry.WithLockTimeout(e.cfg.LockTimeout))
}

func (e *environment) registrar() *association.Registrar {
	return association.New(e.cfg.DataDir, config.ConfigHome(), e.runner)
}

func (e *environment) writer() *integration.Writer {
	return integration.NewWriter(integration.Layout{DataDir: e.cfg.DataDir, IconSize: e.cfg.IconSize}, e.runner)
}

func (e *environment) inspector() (*archive.Inspector, error) {
	backend, err := archive.NewBackend(e.cfg.Extractor, "")
	if err != nil {
		return nil, err
	}
	return archive.NewInspector(
		archive.NewScratchRoot(e.cfg.ScratchDir),
		archive.WithBackend(backend),
		archive.WithTimeout(e.cfg.ExtractionTimeout),
	), nil
}

func (e *environment) icons() *icon.Resolver {
	roots := icon.DefaultThemeRoots(config.DataHome(), config.DataDirs(), config.HomeDir())
	return icon.NewResolver(
		icon.WithSize(e.cfg.IconSize),
		icon.WithTheme(icon.NewThemeIndex(roots)),
		icon.WithRemote(icon.NewRemote(e.cfg.RemoteIconURLs, e.cfg.RemoteIconTimeout, "appimage-installer/"+version)),
		icon.WithOffline(e.cfg.Offline),
	)
}

func (e *environment) dialog() (dialog.Dialog, error) {
	d, err := dialog.New(e.cfg.Dialog)
	if err != nil {
		return nil, err
	}
	if e.cfg.Notify {
		d = dialog.WithNotifications(d, dialog.DBusNotifier{AppName: "AppImage Installer"})
	}
	return d, nil
}

func (e *environment) orchestrator() (*orchestrator.Orchestrator, error) {
	inspector, err := e.inspector()
	if err != nil {
		return nil, err
	}
	store, err := e.store()
	if err != nil {
		return nil, err
	}
	dlg, err := e.dialog()
	if err != nil {
		return nil, err
	}
	return orchestrator.New(inspector, store, e.icons(), e.writer(), dlg, launch.New(), orchestrator.Options{
		PromptTimeout:      e.cfg.PromptTimeout,
		ConfirmInstall:     e.cfg.ConfirmInstall,
		LaunchAfterInstall: e.cfg.LaunchAfterInstall,
	}), nil
}
