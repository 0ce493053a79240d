package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

func lifecycleContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newStartCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the full stack in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(root)
			if err != nil {
				return err
			}
			ctx, cancel := lifecycleContext()
			defer cancel()
			return app.control.StartAll(ctx, app.cfg.StartOrder())
		},
	}
}

func newStopCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the full stack in reverse dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(root)
			if err != nil {
				return err
			}
			ctx, cancel := lifecycleContext()
			defer cancel()
			return app.control.StopAll(ctx, app.cfg.StartOrder())
		},
	}
}

func newRestartCmd(root *rootFlags) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the app services (or the full stack with --all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(root)
			if err != nil {
				return err
			}
			ctx, cancel := lifecycleContext()
			defer cancel()

			services := app.cfg.AppServices()
			if all {
				services = app.cfg.StartOrder()
			}
			for _, svc := range services {
				if err := app.control.Restart(ctx, svc); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Restart the data tier and proxy as well")
	return cmd
}

func newStatusCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the activation state of every managed service",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(root)
			if err != nil {
				return err
			}
			ctx, cancel := lifecycleContext()
			defer cancel()

			inactive := 0
			out := cmd.OutOrStdout()
			for _, svc := range app.cfg.StartOrder() {
				active, err := app.control.IsActive(ctx, svc)
				if err != nil {
					return err
				}
				state := "active"
				if !active {
					state = "inactive"
					inactive++
				}
				fmt.Fprintf(out, "  %-28s %s\n", svc, state)

				if root.verbose {
					if summary, err := app.control.StatusSummary(ctx, svc); err == nil {
						fmt.Fprintln(out, summary)
					}
				}
			}

			if inactive > 0 {
				return relayerrors.NewValidationError(
					"status",
					fmt.Sprintf("%d of %d services inactive", inactive, len(app.cfg.StartOrder())),
					nil,
				)
			}
			return nil
		},
	}
}
