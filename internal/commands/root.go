// Package commands implements the overviewctl command line.
package commands

import (
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "overviewctl",
		Short:   "Inspect and seed transaction ledgers",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newAggregateCommand())
	rootCmd.AddCommand(newFetchCommand())
	rootCmd.AddCommand(newImportCommand())
	rootCmd.AddCommand(newSimulateCommand())

	return rootCmd
}
