package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	logLevel  string
	logFormat string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "flowguard",
		Short: "FlowGuard - Workflow Run Supervisor",
		Long: `FlowGuard supervises long-running analytics workflow executions.

Features:
  - Config-driven supervised runs with timeout and error policies
  - Line-by-line engine output capture into a SQLite log sink
  - Mail and chat webhook failure notifications
  - Retry, polling, and parallel execution primitives
  - SFTP transfer of workflow inputs and outputs`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newLogsCommand())
	rootCmd.AddCommand(newFetchCommand())
	rootCmd.AddCommand(newPushCommand())

	return rootCmd
}
