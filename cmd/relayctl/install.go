package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relaystack/relayctl/internal/install"
	"github.com/relaystack/relayctl/internal/update"
)

func newInstallCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Provision the host end to end",
		Long: "Runs the full provisioning sequence: prerequisites, release checkout,\n" +
			"environment file, database schema, cache probe, proxy vhost, TLS\n" +
			"certificate, service units, service startup and firewall rules.\n" +
			"Every step is re-runnable; a second install on a provisioned host\n" +
			"only applies intentional changes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(root)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			ins, err := install.New(app.cfg, install.Deps{
				Runner:     app.run,
				Controller: app.control,
				Mutator:    app.mutator,
				Executor:   app.executor,
				Log:        app.log,
				DryRun:     root.dryRun,
				EnsureSchema: func(ctx context.Context) error {
					client, err := app.connectDatabase(ctx)
					if err != nil {
						return err
					}
					defer client.Close(ctx) //nolint:errcheck
					return client.EnsureSchema(ctx)
				},
				ProbeCache: app.probeCache,
				SyncRelease: func(ctx context.Context) (bool, error) {
					return update.Sync(ctx, app.cfg.Release.Repo, app.cfg.Release.Branch, app.cfg.ReleaseDir(), app.log)
				},
			})
			if err != nil {
				return err
			}

			report, runErr := ins.Run(ctx)
			if report != nil {
				printRunReport(cmd, report)
			}
			return runErr
		},
	}

	return cmd
}

func printRunReport(cmd *cobra.Command, report *install.RunReport) {
	out := cmd.OutOrStdout()
	for _, s := range report.Steps {
		switch s.State {
		case install.StateSucceeded:
			fmt.Fprintf(out, "  ok      %s\n", s.Label)
		case install.StateFailed:
			fmt.Fprintf(out, "  failed  %s: %v\n", s.Label, s.Err)
		default:
			fmt.Fprintf(out, "  -       %s\n", s.Label)
		}
	}
}
