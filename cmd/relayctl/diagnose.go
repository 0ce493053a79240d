package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/relaystack/relayctl/internal/database"
	"github.com/relaystack/relayctl/internal/diagnose"
	"github.com/relaystack/relayctl/internal/install"
	"github.com/relaystack/relayctl/internal/lockfile"
	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

func newDiagnoseCmd(root *rootFlags) *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Check the host for drift, optionally repairing it",
		Long: "Evaluates the standard check set: directories, environment file,\n" +
			"proxy vhost, unit files, service activation, listeners and the data\n" +
			"tier. Without --repair nothing on the host is touched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(cmd, root, repair)
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Repair detected drift after confirmation")
	return cmd
}

func newRepairCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Diagnose the host and repair detected drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(cmd, root, true)
		},
	}
}

func runDiagnose(cmd *cobra.Command, root *rootFlags, repair bool) error {
	app, err := newAppContext(root)
	if err != nil {
		return err
	}

	ctx, cancel := lifecycleContext()
	defer cancel()

	// Repairs mutate, so they contend with installs for the run lock.
	if repair {
		release, err := lockfile.Acquire(app.cfg.LockPath())
		if err != nil {
			return err
		}
		defer release() //nolint:errcheck
	}

	ins, err := install.New(app.cfg, install.Deps{
		Runner:     app.run,
		Controller: app.control,
		Mutator:    app.mutator,
		Executor:   app.executor,
		Log:        app.log,
		DryRun:     root.dryRun,
	})
	if err != nil {
		return err
	}

	checks := diagnose.Checks(app.cfg, ins.Domains(), diagnose.Deps{
		Controller: app.control,
		Mutator:    app.mutator,
		PingDatabase: func(ctx context.Context) error {
			client, err := app.connectDatabase(ctx)
			if err != nil {
				return err
			}
			defer client.Close(ctx) //nolint:errcheck
			return client.Ping(ctx)
		},
		MissingTables: func(ctx context.Context) ([]string, error) {
			client, err := app.connectDatabase(ctx)
			if err != nil {
				return nil, err
			}
			defer client.Close(ctx) //nolint:errcheck

			var missing []string
			for _, table := range database.RequiredTables {
				exists, err := client.TableExists(ctx, table)
				if err != nil {
					return nil, err
				}
				if !exists {
					missing = append(missing, table)
				}
			}
			return missing, nil
		},
		PingCache:   app.probeCache,
		RepairVhost: ins.ReapplyVhost,
		RepairUnits: ins.ReinstallUnits,
	})

	var confirm diagnose.Confirmer = diagnose.ConfirmAll{}
	if app.interactive {
		confirm = newPromptConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr())
	}

	engine := diagnose.NewEngine(checks, app.log)
	report := engine.Run(ctx, repair, confirm)

	styled := term.IsTerminal(int(os.Stdout.Fd()))
	fmt.Fprint(cmd.OutOrStdout(), report.Render(styled))

	if report.Failed() {
		return relayerrors.NewValidationError("diagnose", "one or more checks failed", nil)
	}
	return nil
}

// promptConfirmer asks the operator before each individual repair. It
// holds a single scanner for its lifetime: a fresh scanner per question
// would buffer-consume input meant for the next one.
type promptConfirmer struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func newPromptConfirmer(in io.Reader, out io.Writer) *promptConfirmer {
	return &promptConfirmer{scanner: bufio.NewScanner(in), out: out}
}

func (p *promptConfirmer) Confirm(check, evidence string) bool {
	fmt.Fprintf(p.out, "check %q failed: %s\n", check, evidence)
	fmt.Fprint(p.out, "repair? [y/N] ")

	if !p.scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(p.scanner.Text()))
	return answer == "y" || answer == "yes"
}
