// Package telemetry provides structured logging and Prometheus metrics for
// supervised workflow runs.
package telemetry

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error, fatal).
	Level string

	// Format specifies the log format (console, json).
	Format string

	// Output specifies where logs are written (stdout, stderr, file path).
	Output string

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool
}

// MetricsConfig configures Prometheus metrics collection.
type MetricsConfig struct {
	// Enabled toggles metrics collection entirely.
	Enabled bool

	// Namespace is the metric name prefix.
	Namespace string

	// ListenAddr is the address the metrics HTTP endpoint binds to.
	ListenAddr string
}

// DefaultLoggingConfig returns the logging configuration used when no
// explicit configuration is provided.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// DefaultMetricsConfig returns the metrics configuration used when no
// explicit configuration is provided.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "flowguard",
	}
}
