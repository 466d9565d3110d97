// Package config loads and validates the declarative run configuration. A
// configuration is validated once at load time and is immutable afterwards;
// nothing executes against a config that failed validation.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flowguard/flowguard/pkg/engine"
	"github.com/flowguard/flowguard/pkg/execution"
)

// Duration is a time.Duration that decodes from either a duration string
// ("30m") or a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var seconds int64
	if err := value.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}

	var text string
	if err := value.Decode(&text); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// LogTo specifies where workflow output records are stored.
type LogTo struct {
	// Table is the log table name.
	Table string `yaml:"table" json:"table" validate:"required"`

	// ConnectionString locates the log database.
	ConnectionString string `yaml:"connection_string" json:"connection_string" validate:"required"`
}

// TimeoutSettings bounds a run's wall-clock duration.
type TimeoutSettings struct {
	// OnTimeout is the disposition applied when the budget elapses.
	OnTimeout string `yaml:"on_timeout" json:"on_timeout" validate:"required,oneof=skip warn raise"`

	// TimeoutDuration is the wall-clock budget.
	TimeoutDuration Duration `yaml:"timeout_duration" json:"timeout_duration" validate:"required,gt=0"`
}

// ErrorHandlingSettings selects the reaction to a failed run.
type ErrorHandlingSettings struct {
	// OnError is the disposition applied to a failure of the supervised
	// run.
	OnError string `yaml:"on_error" json:"on_error" validate:"required,oneof=skip warn raise"`
}

// FlowExecution groups the optional execution-control settings.
type FlowExecution struct {
	TimeoutSettings       *TimeoutSettings       `yaml:"timeout_settings,omitempty" json:"timeout_settings,omitempty"`
	ErrorHandlingSettings *ErrorHandlingSettings `yaml:"error_handling_settings,omitempty" json:"error_handling_settings,omitempty"`
}

// RunConfig is the validated aggregate describing one supervised run. It is
// constructed by Load and never mutated afterwards.
type RunConfig struct {
	// PathToExecutable is the workflow file to run.
	PathToExecutable string `yaml:"path_to_executable" json:"path_to_executable" validate:"required"`

	// Mode is the engine execution mode.
	Mode engine.Mode `yaml:"mode" json:"mode" validate:"required,oneof=PRODUCTION TEST RELEASE"`

	// Admins are the failure-notification recipients. Required when the
	// effective error disposition is warn.
	Admins []string `yaml:"admins,omitempty" json:"admins,omitempty" validate:"omitempty,min=1,dive,email"`

	// LogTo configures the log sink.
	LogTo LogTo `yaml:"log_to" json:"log_to" validate:"required"`

	// FlowExecution carries optional timeout and error-handling settings.
	FlowExecution *FlowExecution `yaml:"flow_execution,omitempty" json:"flow_execution,omitempty"`
}

// OnError returns the effective error disposition, defaulting to raise.
func (c *RunConfig) OnError() execution.Disposition {
	if c.FlowExecution != nil && c.FlowExecution.ErrorHandlingSettings != nil {
		return execution.Disposition(c.FlowExecution.ErrorHandlingSettings.OnError)
	}
	return execution.DispositionRaise
}

// Timeout returns the effective timeout settings; enabled is false when the
// configuration carries none.
func (c *RunConfig) Timeout() (execution.TimeoutSpec, bool) {
	if c.FlowExecution == nil || c.FlowExecution.TimeoutSettings == nil {
		return execution.TimeoutSpec{}, false
	}
	ts := c.FlowExecution.TimeoutSettings
	return execution.TimeoutSpec{
		Max:       time.Duration(ts.TimeoutDuration),
		OnTimeout: execution.Disposition(ts.OnTimeout),
		Enabled:   true,
	}, true
}
