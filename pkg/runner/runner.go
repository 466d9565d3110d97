// Package runner drives a complete supervised workflow run from a
// validated configuration: it builds the log sink, launches the engine
// under the configured timeout and error-handling policies, and records
// the run outcome.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowguard/flowguard/pkg/config"
	"github.com/flowguard/flowguard/pkg/engine"
	"github.com/flowguard/flowguard/pkg/execution"
	"github.com/flowguard/flowguard/pkg/stores"
	"github.com/flowguard/flowguard/pkg/telemetry"
)

// RunStore is the persistence surface a run needs: the live log sink
// plus run bookkeeping.
type RunStore interface {
	engine.LogSink
	CreateRun(ctx context.Context, run *stores.Run) error
	UpdateRunStatus(ctx context.Context, id string, status stores.RunStatus, errMsg *string) error
	Close() error
}

// Result describes a finished run.
type Result struct {
	RunID    string
	Status   stores.RunStatus
	State    engine.State
	Duration time.Duration
}

// Options configures a Runner.
type Options struct {
	// Notifier receives timeout and failure notifications. Nil disables
	// notification delivery.
	Notifier execution.Notifier

	// Channel is the chat channel addressed alongside the configured
	// admin recipients. Empty skips chat delivery.
	Channel string

	// Logger is the structured logger for run events.
	Logger *telemetry.Logger

	// Metrics records run outcomes. Nil disables recording.
	Metrics *telemetry.Metrics

	// OpenStore overrides log sink construction, for tests.
	OpenStore func(ctx context.Context, logTo config.LogTo) (RunStore, error)

	// NewEngine overrides engine construction, for tests.
	NewEngine func(opts engine.Options) engine.Scaffold
}

// Runner executes supervised workflow runs described by RunConfig
// documents.
type Runner struct {
	notifier  execution.Notifier
	channel   string
	logger    *telemetry.Logger
	metrics   *telemetry.Metrics
	loader    *config.Loader
	openStore func(ctx context.Context, logTo config.LogTo) (RunStore, error)
	newEngine func(opts engine.Options) engine.Scaffold
}

// New creates a Runner.
func New(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}

	r := &Runner{
		notifier:  opts.Notifier,
		channel:   opts.Channel,
		logger:    logger.NewComponentLogger("runner"),
		metrics:   opts.Metrics,
		loader:    config.NewLoader(),
		openStore: opts.OpenStore,
		newEngine: opts.NewEngine,
	}
	if r.openStore == nil {
		r.openStore = openSQLiteStore
	}
	if r.newEngine == nil {
		r.newEngine = func(opts engine.Options) engine.Scaffold {
			return engine.New(opts)
		}
	}
	return r
}

// openSQLiteStore builds the default SQLite-backed sink from the log_to
// settings and brings it up.
func openSQLiteStore(ctx context.Context, logTo config.LogTo) (RunStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:  logTo.ConnectionString,
		Table: logTo.Table,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// Run executes one supervised workflow run. The configuration is
// validated and the log sink verified reachable before anything
// launches; a config that does not validate or a sink that cannot be
// reached aborts the run without touching the engine. The engine
// process is always torn down before Run returns, whatever the exit
// path.
func (r *Runner) Run(ctx context.Context, cfg *config.RunConfig) (*Result, error) {
	if err := r.loader.Validate(cfg); err != nil {
		return nil, err
	}

	store, err := r.openStore(ctx, cfg.LogTo)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	if err := store.Ping(ctx); err != nil {
		return nil, execution.NewError(execution.KindLoggingConfiguration,
			"log sink is not reachable", err)
	}

	runID := uuid.NewString()
	logger := r.logger.WithRunID(runID)

	run := &stores.Run{
		ID:           runID,
		WorkflowPath: cfg.PathToExecutable,
		Mode:         string(cfg.Mode),
		Status:       stores.RunStatusPending,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	var sink engine.LogSink = store
	if r.metrics != nil {
		sink = &meteredSink{LogSink: store, metrics: r.metrics}
	}

	eng := r.newEngine(engine.Options{
		PathToWorkflow: cfg.PathToExecutable,
		Mode:           cfg.Mode,
		Sink:           sink,
		Logger:         logger,
	})

	op := r.buildOperation(cfg, eng)
	notify := r.notifyArgs(cfg)

	logger.WithField("workflow", cfg.PathToExecutable).WithField("mode", string(cfg.Mode)).Info("run starting")
	if r.metrics != nil {
		r.metrics.RunStarted(string(cfg.Mode))
	}
	if err := store.UpdateRunStatus(ctx, runID, stores.RunStatusRunning, nil); err != nil {
		logger.WithError(err).Warn("run status not recorded")
	}

	start := time.Now()
	result, runErr := op(ctx)

	// Teardown covers every exit path; a process already exited makes
	// this a no-op, an abandoned timed-out process gets terminated.
	if stopErr := eng.StopJob(ctx); stopErr != nil {
		logger.WithError(stopErr).Error("workflow process not terminated")
		if runErr == nil {
			runErr = stopErr
		}
	}

	duration := time.Since(start)
	status := runStatus(result, runErr)

	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}
	if err := store.UpdateRunStatus(ctx, runID, status, errMsg); err != nil {
		logger.WithError(err).Warn("run status not recorded")
	}
	if r.metrics != nil {
		r.metrics.RunCompleted(string(cfg.Mode), string(status), duration)
	}

	res := &Result{
		RunID:    runID,
		Status:   status,
		Duration: duration,
	}
	if e, ok := eng.(*engine.Engine); ok {
		res.State = e.State()
	}

	// The stored status reflects what actually happened; the returned
	// error follows the configured error-handling disposition.
	guarded := execution.NotifyOnFailure(execution.FailureSpec{
		OnError: cfg.OnError(),
		Enabled: true,
		Notify:  notify,
	}, r.notifier, func(context.Context) (any, error) {
		return result, runErr
	})
	_, finalErr := guarded(ctx)

	logger.WithField("status", string(status)).Info("run finished")
	return res, finalErr
}

// buildOperation wraps the engine launch in the configured timeout
// policy.
func (r *Runner) buildOperation(cfg *config.RunConfig, eng engine.Scaffold) execution.Operation {
	op := func(ctx context.Context) (any, error) {
		return nil, eng.RunJob(ctx)
	}

	if spec, ok := cfg.Timeout(); ok {
		spec.Notify = r.notifyArgs(cfg)
		op = execution.Timeout(spec, r.notifier, op)
	}
	return op
}

// notifyArgs builds the notification payload for a run that did not
// complete cleanly.
func (r *Runner) notifyArgs(cfg *config.RunConfig) execution.Args {
	return execution.Args{
		Recipients: cfg.Admins,
		Channel:    r.channel,
		Subject:    fmt.Sprintf("Workflow %s did not complete", cfg.PathToExecutable),
		Message:    fmt.Sprintf("Workflow %s (mode %s) did not complete.", cfg.PathToExecutable, cfg.Mode),
	}
}

// meteredSink counts stored log lines by severity on the way through.
type meteredSink struct {
	engine.LogSink
	metrics *telemetry.Metrics
}

func (s *meteredSink) Record(ctx context.Context, rec engine.Record) error {
	if err := s.LogSink.Record(ctx, rec); err != nil {
		return err
	}
	s.metrics.LogLine(string(rec.Level))
	return nil
}

// runStatus maps an operation outcome to the stored run status. A
// deadline exhaustion counts as a timeout whatever the disposition; no
// retry policy wraps the run, so the kind is unambiguous here. The
// sentinel is checked before the generic error branch: a warned timeout
// whose notification failed delivery is still a timeout.
func runStatus(result any, err error) stores.RunStatus {
	switch {
	case execution.IsRetryExhausted(err):
		return stores.RunStatusTimedOut
	case result == execution.TimedOut:
		return stores.RunStatusTimedOut
	case err != nil:
		return stores.RunStatusFailed
	default:
		return stores.RunStatusCompleted
	}
}
