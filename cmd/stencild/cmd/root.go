// Package cmd implements the stencild command-line tool: a cobra CLI that
// runs a single rank's solve (`run`), or spins up a whole mesh of ranks
// in one process for local experimentation (`local`).
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/latticeforge/stencilmesh/pkg/telemetry"
	"github.com/latticeforge/stencilmesh/pkg/utils"
)

var (
	verbose    bool
	configPath string
	logger     utils.Logger

	telemetryShutdown telemetry.ShutdownFunc
)

var rootCmd = &cobra.Command{
	Use:   "stencild",
	Short: "Distributed iterative stencil solver",
	Long: `stencild solves the discrete 2D Laplace equation over a grid split
across a square mesh of worker ranks, exchanging ghost cells between
neighbors on every iteration (or every few, in the time-skewed design).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := utils.LevelInfo
		if verbose {
			level = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(level, os.Stdout)

		shutdown, err := telemetry.Init(cmd.Context())
		if err != nil {
			return err
		}
		telemetryShutdown = shutdown
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if telemetryShutdown != nil {
			return telemetryShutdown(cmd.Context())
		}
		return nil
	},
}

// Execute runs the root command, exiting the process with a non-zero code
// on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a stencil config file (YAML)")
}
