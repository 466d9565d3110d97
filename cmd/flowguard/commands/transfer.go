package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowguard/flowguard/pkg/execution"
	"github.com/flowguard/flowguard/pkg/telemetry"
	"github.com/flowguard/flowguard/pkg/transfer"
)

// transferFlags are the connection flags shared by fetch and push.
type transferFlags struct {
	host     string
	port     int
	username string
	password string
	keyFile  string
	retries  int
	workers  int
}

func (f *transferFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.host, "host", "", "SFTP host")
	cmd.Flags().IntVar(&f.port, "port", 22, "SFTP port")
	cmd.Flags().StringVar(&f.username, "user", "", "SFTP username")
	cmd.Flags().StringVar(&f.password, "password", "", "SFTP password")
	cmd.Flags().StringVar(&f.keyFile, "key-file", "", "SSH private key file")
	cmd.Flags().IntVar(&f.retries, "retries", 3, "connection retry attempts")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("user")
}

func (f *transferFlags) client() (*transfer.Client, error) {
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  logLevel,
		Format: logFormat,
		Output: "stderr",
	})
	if err != nil {
		return nil, err
	}

	return transfer.NewClient(transfer.Config{
		Host:     f.host,
		Port:     f.port,
		Username: f.username,
		Password: f.password,
		KeyFile:  f.keyFile,
		Retry: execution.RetrySpec{
			MaxRetries: f.retries,
			Enabled:    f.retries > 0,
		},
	}, logger)
}

func newFetchCommand() *cobra.Command {
	flags := &transferFlags{}
	var destDir string

	cmd := &cobra.Command{
		Use:   "fetch <remote-path>...",
		Short: "Download files from an SFTP endpoint",
		Long:  `Download one or more remote files into a local directory.`,
		Example: `  # Single file
  flowguard fetch /in/report.csv --host sftp.example.com --user svc --password secret --dest ./inputs

  # Several files concurrently
  flowguard fetch /in/a.csv /in/b.csv /in/c.csv --host sftp.example.com --user svc \
    --key-file ~/.ssh/id_ed25519 --dest ./inputs --workers 4`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := flags.client()
			if err != nil {
				return err
			}
			if err := client.Connect(ctx); err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			outcomes, _ := client.DownloadAll(ctx, args, destDir, flags.workers)

			var failed int
			for i, outcome := range outcomes {
				if outcome.Err != nil {
					failed++
					fmt.Printf("failed   %s: %v\n", args[i], outcome.Err)
					continue
				}
				fmt.Printf("fetched  %s\n", args[i])
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d downloads failed", failed, len(args))
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&destDir, "dest", ".", "local destination directory")
	cmd.Flags().IntVar(&flags.workers, "workers", 4, "concurrent downloads")

	return cmd
}

func newPushCommand() *cobra.Command {
	flags := &transferFlags{}

	cmd := &cobra.Command{
		Use:   "push <local-path> <remote-path>",
		Short: "Upload a file to an SFTP endpoint",
		Long:  `Upload a local file to a remote path.`,
		Example: `  flowguard push ./outputs/report.csv /out/report.csv \
    --host sftp.example.com --user svc --password secret`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := flags.client()
			if err != nil {
				return err
			}
			if err := client.Connect(ctx); err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			if err := client.Upload(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("pushed  %s -> %s\n", args[0], args[1])
			return nil
		},
	}

	flags.register(cmd)

	return cmd
}
