package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "connectome",
		Short: "Build, inspect and snapshot spiking network connectivity",
		Long: `connectome builds the connections of a spiking neural network from a
YAML description and lets you inspect them.

Networks are split over simulated processes and threads the way a
distributed simulator would place them. Connection tables can be saved as
snapshots, exported to archives and served to agents over MCP.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("log-level", "", "Override logging.level (error, warn, info, debug, trace)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newBuildCmd(),
		newStatusCmd(),
		newModelsCmd(),
		newConnectionsCmd(),
		newGraphCmd(),
		newSnapshotCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}
