package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/3leaps/appimage-installer/internal/association"
	"github.com/3leaps/appimage-installer/internal/selfexe"
)

var version = "dev"

//go:embed docs/quickstart.txt
var quickstartDoc string

// Exit codes.
const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	exitAborted = 130
)

// exitError carries a specific exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

type rootOptions struct {
	configFile   string
	register     bool
	unregister   bool
	extendedHelp bool
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintf(stderr, "error: %v\n", exit.err)
		}
		return exit.code
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	var usage *usageError
	if errors.As(err, &usage) {
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", root.Name())
		return exitUsage
	}
	if errors.Is(err, context.Canceled) {
		return exitAborted
	}
	return exitFailed
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "appimage-installer [archive]",
		Short: "Add AppImages to the applications menu and remove them again",
		Long: `Opening an AppImage with appimage-installer adds it to the desktop's
applications menu with its own icon. Opening the same AppImage again offers to
launch or uninstall it.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, opts, args)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configFile, "config", "c", "", "config file (default: $XDG_CONFIG_HOME/appimage-installer/config.yaml)")
	pf.String("log-level", "", "log level: trace, debug, info, warn or error")
	pf.String("log-file", "", "write logs to this file instead of stderr")
	pf.String("dialog", "", "prompt backend: auto, zenity, kdialog, terminal or none")
	pf.String("extractor", "", "image reader: auto, native or unsquashfs")
	pf.Bool("offline", false, "never fetch icons over the network")

	f := cmd.Flags()
	f.BoolVar(&opts.register, "register", false, "make this installer the handler for AppImage files")
	f.BoolVar(&opts.unregister, "unregister", false, "remove the AppImage file association")
	f.BoolVar(&opts.extendedHelp, "helpextended", false, "print quickstart & examples")
	cmd.MarkFlagsMutuallyExclusive("register", "unregister")

	cmd.AddCommand(newListCommand(), newUninstallCommand(), newLaunchCommand(), newRecoverCommand(), newConfigCommand())
	return cmd
}

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"log-level": "log_level",
	"log-file":  "log_file",
	"dialog":    "dialog",
	"extractor": "extractor",
	"offline":   "offline",
}

func boundFlags(cmd *cobra.Command) map[string]*pflag.Flag {
	out := make(map[string]*pflag.Flag, len(flagKeys))
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			out[key] = f
		}
	}
	return out
}

func runRoot(cmd *cobra.Command, opts *rootOptions, args []string) error {
	if opts.extendedHelp {
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(quickstartDoc))
		return nil
	}
	if len(args) == 0 && !opts.register && !opts.unregister {
		return &usageError{err: errors.New("an AppImage path, --register or --unregister is required")}
	}

	env, err := setup(cmd, opts.configFile)
	if err != nil {
		return err
	}
	defer env.Close()
	ctx := cmd.Context()

	switch {
	case opts.register:
		handler, err := selfexe.Path()
		if err != nil {
			return err
		}
		if err := env.registrar().EnsureAssociationRegistered(ctx, association.DefaultExt, handler); err != nil {
			return fmt.Errorf("register file association: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "AppImage files now open with %s\n", handler)
	case opts.unregister:
		if err := env.registrar().Unregister(ctx); err != nil {
			return fmt.Errorf("unregister file association: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "AppImage file association removed")
	}
	if len(args) == 0 {
		return nil
	}

	orch, err := env.orchestrator()
	if err != nil {
		return err
	}
	out := orch.Run(ctx, args[0])
	log.WithField("trace", out.Trace).Debug("state trace")
	if out.Failed() {
		return &exitError{code: exitFailed, err: out.Err}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", displayTarget(out.Name, args[0]), out.Action, out.State)
	if out.LaunchErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: installed but not started: %v\n", out.LaunchErr)
	}
	return nil
}

func displayTarget(name, path string) string {
	if name != "" {
		return name
	}
	return path
}
