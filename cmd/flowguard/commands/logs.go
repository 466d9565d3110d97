package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowguard/flowguard/pkg/stores"
)

func newLogsCommand() *cobra.Command {
	var (
		dbPath string
		table  string
		source string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show stored workflow logs",
		Long:  `Show log records captured from previous supervised runs.`,
		Example: `  # Latest records across all workflows
  flowguard logs --db /var/lib/flowguard/logs.db

  # Records for one workflow
  flowguard logs --db /var/lib/flowguard/logs.db --source daily_report_PRODUCTION --limit 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath, Table: table})
			if err != nil {
				return err
			}
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.ListLogs(ctx, source, limit)
			if err != nil {
				return err
			}

			for _, e := range entries {
				fmt.Printf("%s  %-7s  %-30s  %s\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"), e.Level, e.Source, e.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "log database path")
	cmd.Flags().StringVar(&table, "table", "", "log table name")
	cmd.Flags().StringVar(&source, "source", "", "filter by workflow source name")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum records shown")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}
