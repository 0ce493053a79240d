package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	verbose    bool
	dryRun     bool
	yes        bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "relayctl",
		Short:         "relayctl installs and operates a Relay host",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "/etc/relay/relayctl.yaml", "Path to host configuration file")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().BoolVar(&flags.dryRun, "dry-run", false, "Preview every change without touching the host")
	cmd.PersistentFlags().BoolVarP(&flags.yes, "yes", "y", false, "Assume yes: never prompt, abort failed steps immediately")

	cmd.AddCommand(newInstallCmd(flags))
	cmd.AddCommand(newStartCmd(flags))
	cmd.AddCommand(newStopCmd(flags))
	cmd.AddCommand(newRestartCmd(flags))
	cmd.AddCommand(newStatusCmd(flags))
	cmd.AddCommand(newDiagnoseCmd(flags))
	cmd.AddCommand(newRepairCmd(flags))
	cmd.AddCommand(newUpdateCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
