package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/3leaps/appimage-installer/internal/config"
	"github.com/3leaps/appimage-installer/internal/model"
	"github.com/3leaps/appimage-installer/internal/orchestrator"
	"github.com/3leaps/appimage-installer/pkg/update"
)

type listedApp struct {
	model.Record
	Status model.Status `json:"status"`
}

func newListCommand() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show installed AppImages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd, configFlag(cmd))
			if err != nil {
				return err
			}
			defer env.Close()
			store, err := env.store()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			records, err := store.List(ctx)
			if err != nil {
				return err
			}
			apps := make([]listedApp, 0, len(records))
			for _, rec := range records {
				_, status, err := store.Lookup(ctx, rec.Identity)
				if err != nil {
					return err
				}
				apps = append(apps, listedApp{Record: rec, Status: status})
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(apps)
			}
			if len(apps) == 0 {
				fmt.Fprintln(out, "no AppImages installed")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "IDENTITY\tNAME\tVERSION\tSTATUS\tARCHIVE")
			for _, app := range apps {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", app.Identity, app.Name,
					update.FormatVersionDisplay(app.Version), app.Status, app.ArchivePath)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "JSON output")
	return cmd
}

// newManageCommand builds a command that acts on an installed application
// by identity, without opening its archive.
func newManageCommand(use, short string, act func(*orchestrator.Orchestrator, context.Context, string) orchestrator.Outcome) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <identity>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd, configFlag(cmd))
			if err != nil {
				return err
			}
			defer env.Close()
			orch, err := env.orchestrator()
			if err != nil {
				return err
			}
			out := act(orch, cmd.Context(), args[0])
			if out.Failed() {
				return &exitError{code: exitFailed, err: out.Err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", displayTarget(out.Name, args[0]), out.Action, out.State)
			return nil
		},
	}
}

func newUninstallCommand() *cobra.Command {
	return newManageCommand("uninstall", "Remove an installed AppImage from the applications menu",
		(*orchestrator.Orchestrator).Uninstall)
}

func newLaunchCommand() *cobra.Command {
	return newManageCommand("launch", "Start an installed AppImage",
		(*orchestrator.Orchestrator).Launch)
}

func newRecoverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Clean up after installs that were interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd, configFlag(cmd))
			if err != nil {
				return err
			}
			defer env.Close()
			store, err := env.store()
			if err != nil {
				return err
			}

			report, err := store.Recover(cmd.Context())
			out := cmd.OutOrStdout()
			if len(report.Settled)+len(report.Cleaned)+len(report.Pending) == 0 && err == nil {
				fmt.Fprintln(out, "nothing to recover")
				return nil
			}
			fmt.Fprintf(out, "completed: %d\nrolled back: %d\nstill running: %d\n",
				len(report.Settled), len(report.Cleaned), len(report.Pending))
			return err
		},
	}
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	var path string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				path = configFlag(cmd)
			}
			if path == "" {
				path = config.FilePath()
			}
			if err := config.WriteFile(cmd.Context(), path, config.Defaults(), force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	initCmd.Flags().StringVar(&path, "path", "", "where to write (default: the --config path or the standard location)")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd, configFlag(cmd))
			if err != nil {
				return err
			}
			defer env.Close()
			data, err := config.Render(env.cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func configFlag(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("config")
	return v
}
