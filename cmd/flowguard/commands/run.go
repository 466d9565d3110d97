package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/flowguard/flowguard/pkg/config"
	"github.com/flowguard/flowguard/pkg/notify"
	"github.com/flowguard/flowguard/pkg/runner"
	"github.com/flowguard/flowguard/pkg/telemetry"
)

func newRunCommand() *cobra.Command {
	var (
		smtpHost     string
		smtpPort     int
		smtpFrom     string
		channelsFile string
		channel      string
		metricsAddr  string
	)

	cmd := &cobra.Command{
		Use:   "run <config-file>",
		Short: "Run a workflow under supervision",
		Long: `Run a workflow described by a run configuration file.

This command:
  - Loads and validates the configuration (fail-fast, all violations reported)
  - Verifies the log sink is reachable before anything launches
  - Starts the workflow engine and captures its output line by line
  - Enforces the configured timeout and error-handling policies
  - Notifies the configured admins when the run does not complete
  - Always tears the engine process down before exiting`,
		Example: `  # Supervised run
  flowguard run daily_report.yaml

  # With mail notifications and a chat channel
  flowguard run daily_report.yaml --smtp-host smtp.example.com --smtp-from ops@example.com \
    --channels /etc/flowguard/channels.yaml --channel ops

  # With a Prometheus endpoint
  flowguard run daily_report.yaml --metrics-listen :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.NewLoader().Load(args[0])
			if err != nil {
				return err
			}

			logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
				Level:  logLevel,
				Format: logFormat,
				Output: "stderr",
			})
			if err != nil {
				return err
			}

			metrics := telemetry.NewMetrics(telemetry.MetricsConfig{
				Enabled:    metricsAddr != "",
				Namespace:  "flowguard",
				ListenAddr: metricsAddr,
			})
			if metricsAddr != "" {
				go func() {
					if err := metrics.Serve(); err != nil {
						logger.WithError(err).Error("metrics endpoint stopped")
					}
				}()
			}

			var routerOpts []notify.RouterOption
			if smtpHost != "" {
				routerOpts = append(routerOpts, notify.WithMailer(notify.NewMailer(notify.MailerConfig{
					Host: smtpHost,
					Port: smtpPort,
					From: smtpFrom,
				}, logger)))
			}
			if channelsFile != "" {
				webhook, err := notify.NewWebhookNotifier(channelsFile, logger)
				if err != nil {
					return err
				}
				if err := webhook.Watch(ctx); err != nil {
					return err
				}
				routerOpts = append(routerOpts, notify.WithWebhook(webhook))
			}
			routerOpts = append(routerOpts, notify.WithMetrics(metrics))

			r := runner.New(runner.Options{
				Notifier: notify.NewRouter(routerOpts...),
				Channel:  channel,
				Logger:   logger,
				Metrics:  metrics,
			})

			res, err := r.Run(ctx, cfg)
			if res != nil {
				log.Info().
					Str("run_id", res.RunID).
					Str("status", string(res.Status)).
					Dur("duration", res.Duration).
					Msg("Run finished")
			}
			return err
		},
	}

	cmd.Flags().StringVar(&smtpHost, "smtp-host", "", "SMTP host for mail notifications")
	cmd.Flags().IntVar(&smtpPort, "smtp-port", 25, "SMTP port")
	cmd.Flags().StringVar(&smtpFrom, "smtp-from", "", "mail notification sender address")
	cmd.Flags().StringVar(&channelsFile, "channels", "", "chat channel registry file (hot-reloaded)")
	cmd.Flags().StringVar(&channel, "channel", "", "chat channel notified alongside the configured admins")
	cmd.Flags().StringVar(&metricsAddr, "metrics-listen", "", "Prometheus metrics listen address")

	return cmd
}
