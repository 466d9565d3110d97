package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/flowguard/flowguard/pkg/execution"
	"github.com/flowguard/flowguard/pkg/telemetry"
)

// WorkflowExt is the file extension every runnable workflow must carry.
const WorkflowExt = ".flow"

const (
	defaultEngineBinary = "/opt/flowworks/bin/flowenginecmd"
	defaultGracePeriod  = 10 * time.Second
	gracePollInterval   = 250 * time.Millisecond

	// maxLineBytes bounds a single line of engine output. Lines past
	// this are a capture failure, never a reason to stop draining the
	// pipe.
	maxLineBytes = 1024 * 1024
)

// modeArgs maps an execution mode to the engine's invocation flags.
var modeArgs = map[Mode][]string{
	ModeProduction: {"-m", "production"},
	ModeTest:       {"-m", "test", "--no-publish"},
	ModeRelease:    {"-m", "release", "--publish"},
}

// Options configures a workflow supervisor.
type Options struct {
	// PathToWorkflow is the workflow file to run. It must exist and end
	// in WorkflowExt.
	PathToWorkflow string

	// Mode selects the engine invocation arguments.
	Mode Mode

	// Sink receives every classified line of engine output.
	Sink LogSink

	// EngineBinary overrides the engine executable path.
	EngineBinary string

	// GracePeriod bounds the wait between the graceful and the forceful
	// termination signal.
	GracePeriod time.Duration

	// Logger is the structured logger for supervisor events.
	Logger *telemetry.Logger
}

// Engine owns the lifecycle of one external workflow process. A single
// Engine supervises a single run; it is not reusable after the process
// reaches a terminal state.
type Engine struct {
	path   string
	mode   Mode
	sink   LogSink
	binary string
	grace  time.Duration
	logger *telemetry.Logger
	name   string

	mu    sync.Mutex
	state State
	cmd   *exec.Cmd
	// stopping is set once StopJob has claimed the termination path, so
	// a signal-driven exit is not misread as an engine failure.
	stopping bool
	// done is closed once the process has been reaped.
	done chan struct{}
}

var _ Scaffold = (*Engine)(nil)

// New creates a workflow supervisor. Target validation happens in RunJob so
// a missing file is reported by the run, not the constructor.
func New(opts Options) *Engine {
	binary := opts.EngineBinary
	if binary == "" {
		binary = defaultEngineBinary
	}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}

	base := strings.TrimSuffix(filepath.Base(opts.PathToWorkflow), WorkflowExt)
	return &Engine{
		path:   opts.PathToWorkflow,
		mode:   opts.Mode,
		sink:   opts.Sink,
		binary: binary,
		grace:  grace,
		logger: logger.NewComponentLogger("engine").WithField("workflow", base),
		name:   fmt.Sprintf("%s_%s", base, opts.Mode),
		state:  StateUnstarted,
		done:   make(chan struct{}),
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Name returns the workflow identifier used as the log record source.
func (e *Engine) Name() string {
	return e.name
}

// validateTarget checks that the workflow file exists and looks like a
// workflow before anything is launched.
func (e *Engine) validateTarget() error {
	if _, err := os.Stat(e.path); err != nil {
		return execution.NewError(execution.KindProcessNotFound,
			fmt.Sprintf("workflow file %s does not exist", e.path), err)
	}
	if !strings.HasSuffix(e.path, WorkflowExt) {
		return execution.NewError(execution.KindInvalidExecutable,
			fmt.Sprintf("%s is not a %s workflow file", e.path, WorkflowExt), nil)
	}
	if !e.mode.Valid() {
		return execution.NewError(execution.KindInvalidExecutable,
			fmt.Sprintf("unknown execution mode %q", e.mode), nil)
	}
	return nil
}

// RunJob validates the target, launches the engine process, forwards every
// line of its output to the sink, and blocks until it exits. A clean exit
// transitions to GracefullyStopped; a launch failure or non-zero exit
// transitions to Failed unless a concurrent StopJob already claimed the
// terminal state.
func (e *Engine) RunJob(ctx context.Context) error {
	if err := e.validateTarget(); err != nil {
		e.setState(StateFailed)
		return err
	}

	args := append([]string{}, modeArgs[e.mode]...)
	args = append(args, e.path)
	cmd := exec.Command(e.binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.setState(StateFailed)
		return fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		e.setState(StateFailed)
		return fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	e.mu.Lock()
	if e.state != StateUnstarted {
		e.mu.Unlock()
		return fmt.Errorf("supervisor already used (state=%s)", e.state)
	}
	if err := cmd.Start(); err != nil {
		e.state = StateFailed
		e.mu.Unlock()
		close(e.done)
		return execution.NewError(execution.KindEngineFailure,
			"failed to launch workflow engine", err)
	}
	e.cmd = cmd
	e.state = StateRunning
	e.mu.Unlock()

	e.logger.WithField("pid", cmd.Process.Pid).Info("workflow engine started")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.consume(ctx, stdout)
	}()
	go func() {
		defer wg.Done()
		e.consume(ctx, stderr)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	close(e.done)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopping || e.state != StateRunning {
		// StopJob owns the terminal state; the signal-driven exit is
		// not a failure.
		return nil
	}
	if waitErr != nil {
		e.state = StateFailed
		return execution.NewError(execution.KindEngineFailure,
			"workflow engine exited with failure", waitErr)
	}
	e.state = StateGracefullyStopped
	e.logger.Info("workflow completed")
	return nil
}

// consume forwards one output stream line by line until it is exhausted.
// The stream is drained to the end even when line capture fails, so the
// engine process never blocks on a full pipe.
func (e *Engine) consume(ctx context.Context, stream io.Reader) {
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := sanitizeLine(scanner.Text())
		if line == "" {
			continue
		}
		level := Classify(line)
		if err := e.LogRecord(ctx, line, level); err != nil {
			e.logger.WithError(err).Warn("log record dropped")
		}
	}
	if err := scanner.Err(); err != nil {
		e.logger.WithError(err).Warn("output capture aborted, draining stream")
		_, _ = io.Copy(io.Discard, stream)
	}
}

// StopJob terminates the workflow process. Unstarted and already-terminal
// supervisors are a no-op. A running process is sent the graceful signal
// and given the grace period to exit; a survivor is sent the forceful
// signal; a process that survives both is reported as a fatal termination
// failure and never silently retried.
func (e *Engine) StopJob(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateRunning || e.cmd == nil || e.cmd.Process == nil {
		e.mu.Unlock()
		return nil
	}
	e.stopping = true
	proc := e.cmd.Process
	e.mu.Unlock()

	e.logger.Info("stopping workflow engine")
	_ = proc.Signal(syscall.SIGTERM)

	if e.awaitExit(ctx, e.grace) {
		e.finishStop(ctx, StateGracefullyStopped)
		return nil
	}

	_ = proc.Kill()
	if e.awaitExit(ctx, e.grace) {
		e.finishStop(ctx, StateForciblyStopped)
		return nil
	}

	err := execution.NewError(execution.KindProcessTermination,
		fmt.Sprintf("workflow process pid %d survived forced termination", proc.Pid), nil).
		WithOperation("stop")
	if lerr := e.LogRecord(ctx, err.Message, LevelError); lerr != nil {
		e.logger.WithError(lerr).Warn("termination failure not recorded in sink")
	}
	return err
}

// awaitExit polls for process reap for at most the given budget.
func (e *Engine) awaitExit(ctx context.Context, budget time.Duration) bool {
	_, err := execution.Poll(ctx,
		execution.PollSpec{MaxDuration: budget, Interval: gracePollInterval},
		func(ctx context.Context) (any, error) {
			select {
			case <-e.done:
				return true, nil
			default:
				return false, nil
			}
		},
		func(result any) (bool, error) {
			return result.(bool), nil
		})
	return err == nil
}

// finishStop records the terminal state exactly once; a concurrent RunJob
// exit or a second StopJob call never re-claims it.
func (e *Engine) finishStop(ctx context.Context, state State) {
	e.mu.Lock()
	if e.state.Terminal() {
		e.mu.Unlock()
		return
	}
	e.state = state
	e.mu.Unlock()

	if err := e.LogRecord(ctx, "workflow process stopped", LevelInfo); err != nil {
		e.logger.WithError(err).Warn("stop record dropped")
	}
	e.logger.WithField("state", string(state)).Info("workflow engine stopped")
}

// LogRecord forwards one classified message to the sink with the workflow
// identifier and the current timestamp attached.
func (e *Engine) LogRecord(ctx context.Context, message string, level Level) error {
	if e.sink == nil {
		return nil
	}
	return e.sink.Record(ctx, Record{
		Message:   message,
		Level:     level,
		Source:    e.name,
		Timestamp: time.Now().UTC(),
	})
}
