package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flowguard/flowguard/pkg/config"
	"github.com/flowguard/flowguard/pkg/engine"
	"github.com/flowguard/flowguard/pkg/execution"
	"github.com/flowguard/flowguard/pkg/stores"
)

type fakeStore struct {
	mu       sync.Mutex
	pingErr  error
	records  []engine.Record
	runs     []*stores.Run
	statuses []stores.RunStatus
	lastErr  *string
	closed   bool
}

func (f *fakeStore) Record(_ context.Context, rec engine.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) CreateRun(_ context.Context, run *stores.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeStore) UpdateRunStatus(_ context.Context, _ string, status stores.RunStatus, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	f.lastErr = errMsg
	return nil
}

func (f *fakeStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeEngine struct {
	mu       sync.Mutex
	runErr   error
	runDelay time.Duration
	runs     int
	stops    int
}

func (f *fakeEngine) RunJob(ctx context.Context) error {
	f.mu.Lock()
	f.runs++
	delay := f.runDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.runErr
}

func (f *fakeEngine) StopJob(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeEngine) LogRecord(context.Context, string, engine.Level) error { return nil }

func (f *fakeEngine) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeEngine) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []execution.Args
	err   error
}

func (f *fakeNotifier) Notify(_ context.Context, args execution.Args) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testConfig() *config.RunConfig {
	return &config.RunConfig{
		PathToExecutable: "/workflows/daily_report.flow",
		Mode:             engine.ModeProduction,
		Admins:           []string{"admin@example.com"},
		LogTo: config.LogTo{
			Table:            "run_logs",
			ConnectionString: "/var/lib/flowguard/logs.db",
		},
	}
}

func newTestRunner(store *fakeStore, eng *fakeEngine, notifier *fakeNotifier) *Runner {
	return New(Options{
		Notifier: notifier,
		OpenStore: func(context.Context, config.LogTo) (RunStore, error) {
			return store, nil
		},
		NewEngine: func(engine.Options) engine.Scaffold {
			return eng
		},
	})
}

func TestRunCompletesAndRecordsLifecycle(t *testing.T) {
	store := &fakeStore{}
	eng := &fakeEngine{}
	notifier := &fakeNotifier{}

	res, err := newTestRunner(store, eng, notifier).Run(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Status != stores.RunStatusCompleted {
		t.Errorf("expected completed status, got %s", res.Status)
	}
	if res.RunID == "" {
		t.Error("expected a run identifier")
	}
	if len(store.runs) != 1 {
		t.Fatalf("expected one run record, got %d", len(store.runs))
	}
	if store.runs[0].Status != stores.RunStatusPending {
		t.Errorf("run should be created pending, got %s", store.runs[0].Status)
	}
	want := []stores.RunStatus{stores.RunStatusRunning, stores.RunStatusCompleted}
	if len(store.statuses) != len(want) {
		t.Fatalf("expected statuses %v, got %v", want, store.statuses)
	}
	for i, s := range want {
		if store.statuses[i] != s {
			t.Errorf("status %d: expected %s, got %s", i, s, store.statuses[i])
		}
	}
	if eng.stopCount() != 1 {
		t.Errorf("expected exactly one teardown, got %d", eng.stopCount())
	}
	if !store.closed {
		t.Error("store was not closed")
	}
	if notifier.count() != 0 {
		t.Errorf("no notification expected, got %d", notifier.count())
	}
}

func TestRunAbortsWhenSinkUnreachable(t *testing.T) {
	store := &fakeStore{pingErr: errors.New("locked")}
	eng := &fakeEngine{}

	_, err := newTestRunner(store, eng, nil).Run(context.Background(), testConfig())
	if !execution.IsKind(err, execution.KindLoggingConfiguration) {
		t.Fatalf("expected logging configuration error, got %v", err)
	}
	if eng.runs != 0 {
		t.Error("engine must not launch when the sink is unreachable")
	}
	if len(store.runs) != 0 {
		t.Error("no run record expected when the sink is unreachable")
	}
}

func TestRunRejectsInvalidConfigBeforeLaunch(t *testing.T) {
	store := &fakeStore{}
	eng := &fakeEngine{}
	notifier := &fakeNotifier{}

	cfg := testConfig()
	cfg.LogTo.Table = ""
	cfg.Admins = nil
	cfg.FlowExecution = &config.FlowExecution{
		ErrorHandlingSettings: &config.ErrorHandlingSettings{OnError: "warn"},
	}

	_, err := newTestRunner(store, eng, notifier).Run(context.Background(), cfg)
	var verr *config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected a validation failure, got %v", err)
	}
	if eng.runCount() != 0 {
		t.Errorf("engine must never launch for an invalid config, got %d runs", eng.runCount())
	}
	if len(store.runs) != 0 {
		t.Errorf("no run must be recorded for an invalid config, got %d", len(store.runs))
	}
	if notifier.count() != 0 {
		t.Errorf("no notification must be sent for an invalid config, got %d", notifier.count())
	}
}

func TestRunFailureRaisesAndNotifies(t *testing.T) {
	store := &fakeStore{}
	eng := &fakeEngine{runErr: execution.NewError(execution.KindEngineFailure, "exit status 2", nil)}
	notifier := &fakeNotifier{}

	_, err := newTestRunner(store, eng, notifier).Run(context.Background(), testConfig())
	if !execution.IsKind(err, execution.KindEngineFailure) {
		t.Fatalf("expected the engine failure to propagate, got %v", err)
	}

	last := store.statuses[len(store.statuses)-1]
	if last != stores.RunStatusFailed {
		t.Errorf("expected failed status, got %s", last)
	}
	if store.lastErr == nil {
		t.Error("expected the failure message to be recorded")
	}
	if notifier.count() != 1 {
		t.Errorf("expected one notification, got %d", notifier.count())
	}
	if eng.stopCount() != 1 {
		t.Errorf("teardown must run on the failure path, got %d stops", eng.stopCount())
	}
}

func TestRunFailureWarnSwallowsError(t *testing.T) {
	store := &fakeStore{}
	eng := &fakeEngine{runErr: execution.NewError(execution.KindEngineFailure, "exit status 2", nil)}
	notifier := &fakeNotifier{}

	cfg := testConfig()
	cfg.FlowExecution = &config.FlowExecution{
		ErrorHandlingSettings: &config.ErrorHandlingSettings{OnError: "warn"},
	}

	res, err := newTestRunner(store, eng, notifier).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("warn disposition must swallow the failure, got %v", err)
	}
	if res.Status != stores.RunStatusFailed {
		t.Errorf("stored status must still reflect the failure, got %s", res.Status)
	}
	if notifier.count() != 1 {
		t.Errorf("expected one notification, got %d", notifier.count())
	}
}

func TestRunTimeoutWarnReturnsTimedOut(t *testing.T) {
	store := &fakeStore{}
	eng := &fakeEngine{runDelay: 5 * time.Second}
	notifier := &fakeNotifier{}

	cfg := testConfig()
	cfg.FlowExecution = &config.FlowExecution{
		TimeoutSettings: &config.TimeoutSettings{
			OnTimeout:       "warn",
			TimeoutDuration: config.Duration(50 * time.Millisecond),
		},
	}

	res, err := newTestRunner(store, eng, notifier).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("warn timeout must not fail the run, got %v", err)
	}
	if res.Status != stores.RunStatusTimedOut {
		t.Errorf("expected timed_out status, got %s", res.Status)
	}
	if notifier.count() != 1 {
		t.Errorf("expected one timeout notification, got %d", notifier.count())
	}
	if eng.stopCount() != 1 {
		t.Errorf("abandoned process must be torn down, got %d stops", eng.stopCount())
	}
}

func TestRunTimeoutWarnKeepsTimedOutWhenDeliveryFails(t *testing.T) {
	store := &fakeStore{}
	eng := &fakeEngine{runDelay: 5 * time.Second}
	notifier := &fakeNotifier{err: errors.New("smtp down")}

	cfg := testConfig()
	cfg.FlowExecution = &config.FlowExecution{
		TimeoutSettings: &config.TimeoutSettings{
			OnTimeout:       "warn",
			TimeoutDuration: config.Duration(50 * time.Millisecond),
		},
	}

	res, err := newTestRunner(store, eng, notifier).Run(context.Background(), cfg)
	if res.Status != stores.RunStatusTimedOut {
		t.Errorf("a failed delivery must not reclassify the timeout, got %s", res.Status)
	}
	last := store.statuses[len(store.statuses)-1]
	if last != stores.RunStatusTimedOut {
		t.Errorf("expected timed_out stored, got %s", last)
	}
	if !execution.IsKind(err, execution.KindNotificationDelivery) {
		t.Errorf("the delivery failure must still surface, got %v", err)
	}
}

func TestRunTimeoutRaiseFailsRun(t *testing.T) {
	store := &fakeStore{}
	eng := &fakeEngine{runDelay: 5 * time.Second}
	notifier := &fakeNotifier{}

	cfg := testConfig()
	cfg.FlowExecution = &config.FlowExecution{
		TimeoutSettings: &config.TimeoutSettings{
			OnTimeout:       "raise",
			TimeoutDuration: config.Duration(50 * time.Millisecond),
		},
	}

	res, err := newTestRunner(store, eng, notifier).Run(context.Background(), cfg)
	if !execution.IsRetryExhausted(err) {
		t.Fatalf("expected deadline exhaustion to propagate, got %v", err)
	}
	if res.Status != stores.RunStatusTimedOut {
		t.Errorf("expected timed_out status, got %s", res.Status)
	}
}
