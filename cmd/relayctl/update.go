package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaystack/relayctl/internal/lockfile"
	"github.com/relaystack/relayctl/internal/update"
)

func newUpdateCmd(root *rootFlags) *cobra.Command {
	var maintenance bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Pull the latest release and restart the app services",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(root)
			if err != nil {
				return err
			}

			ctx, cancel := lifecycleContext()
			defer cancel()

			release, err := lockfile.Acquire(app.cfg.LockPath())
			if err != nil {
				return err
			}
			defer release() //nolint:errcheck

			changed, err := update.Sync(ctx, app.cfg.Release.Repo, app.cfg.Release.Branch, app.cfg.ReleaseDir(), app.log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !changed {
				fmt.Fprintln(out, "release checkout already up to date")
			} else {
				fmt.Fprintln(out, "release checkout updated, restarting app services")
				for _, svc := range app.cfg.AppServices() {
					if err := app.control.Restart(ctx, svc); err != nil {
						return err
					}
				}
			}

			if maintenance {
				client, err := app.connectDatabase(ctx)
				if err != nil {
					return err
				}
				defer client.Close(ctx) //nolint:errcheck
				if err := client.Maintenance(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "database maintenance complete")
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&maintenance, "maintenance", false, "Run database maintenance after the update")
	return cmd
}
