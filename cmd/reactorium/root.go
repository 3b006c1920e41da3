package main

import (
	"github.com/spf13/cobra"

	"github.com/oakmoth/reactorium/log"
)

// rootFlags holds the persistent flags every subcommand reads.
type rootFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "reactorium",
		Short: "A message-passing reactor runtime and game-match orchestrator",
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a config file (env REACTORIUM_* always applies)")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newEchoCmd(flags))

	return root
}

func newLogger() log.Logger {
	return log.NewLogfmtLogger()
}
