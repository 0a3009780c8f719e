package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// options holds the persistent flags shared by every subcommand.
type options struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "traverse",
		Short: "traverse framework CLI",
		Long: `traverse bootstraps an application from its config file and runs
one-off tasks against it: listing routes, generating URLs, rendering
templates and inspecting settings.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "app.yaml", "Application config file (.yaml or .toml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(
		newRoutesCmd(opts),
		newURLCmd(opts),
		newRenderCmd(opts),
		newSettingsCmd(opts),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
