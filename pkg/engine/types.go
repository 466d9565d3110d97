// Package engine supervises one externally-executed analytics workflow:
// launch, line-by-line log capture and classification, and graceful-then-
// forceful termination.
package engine

import (
	"context"
	"time"
)

// State is the lifecycle state of a supervised workflow process.
type State string

const (
	// StateUnstarted means no process has been launched yet.
	StateUnstarted State = "unstarted"

	// StateRunning means the workflow process is alive and its output is
	// being consumed.
	StateRunning State = "running"

	// StateGracefullyStopped means the process exited cleanly or stopped
	// on the graceful signal.
	StateGracefullyStopped State = "gracefully_stopped"

	// StateForciblyStopped means the process only stopped after the
	// forceful signal.
	StateForciblyStopped State = "forcibly_stopped"

	// StateFailed means the launch failed or the process exited non-zero.
	StateFailed State = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateGracefullyStopped, StateForciblyStopped, StateFailed:
		return true
	}
	return false
}

// Mode selects the invocation arguments passed to the workflow engine.
type Mode string

const (
	ModeProduction Mode = "PRODUCTION"
	ModeTest       Mode = "TEST"
	ModeRelease    Mode = "RELEASE"
)

// Valid reports whether m is a recognized execution mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeProduction, ModeTest, ModeRelease:
		return true
	}
	return false
}

// Level is the severity assigned to one line of workflow output.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Record is one classified log record forwarded to the sink. Lines are
// classified and forwarded as they arrive and never retained afterwards.
type Record struct {
	Message   string    `json:"message"`
	Level     Level     `json:"level"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// LogSink receives classified workflow output. Implementations must create
// their storage lazily when it is absent and signal a logging-configuration
// failure when the underlying location is structurally incompatible.
type LogSink interface {
	// Record stores one classified log record.
	Record(ctx context.Context, rec Record) error

	// Ping reports whether the sink is reachable. It is consulted before
	// a job starts.
	Ping(ctx context.Context) error
}

// Scaffold is the capability set of a workflow supervisor.
type Scaffold interface {
	// RunJob launches the workflow and blocks until it exits.
	RunJob(ctx context.Context) error

	// StopJob terminates the workflow, gracefully first, forcefully if
	// needed.
	StopJob(ctx context.Context) error

	// LogRecord forwards one classified message to the log sink.
	LogRecord(ctx context.Context, message string, level Level) error
}
