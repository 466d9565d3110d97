package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/flowguard/flowguard/pkg/engine"
	"github.com/flowguard/flowguard/pkg/execution"
)

// Loader parses and validates run configuration documents.
type Loader struct {
	validate *validator.Validate
}

// NewLoader creates a configuration loader with all validation rules
// registered.
func NewLoader() *Loader {
	v := validator.New()

	// Report violations under the document field names, not Go names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Loader{validate: v}
}

// Load reads, parses, and validates the configuration document at path.
// Every violation in the document is reported in one ValidationError; a
// config that does not validate never reaches execution.
func (l *Loader) Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return l.Parse(data)
}

// Parse parses and validates a configuration document.
func (l *Loader) Parse(data []byte) (*RunConfig, error) {
	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := l.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks a parsed configuration against every rule, structural and
// cross-field alike.
func (l *Loader) Validate(cfg *RunConfig) error {
	verr := &ValidationError{}

	if err := l.validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("config validation failed: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.add(documentPath(fe), fe.Tag(), violationMessage(fe))
		}
	}

	if cfg.PathToExecutable != "" && !strings.HasSuffix(cfg.PathToExecutable, engine.WorkflowExt) {
		verr.add("path_to_executable", "workflow_ext",
			fmt.Sprintf("path_to_executable must end with %s", engine.WorkflowExt))
	}

	if cfg.OnError() == execution.DispositionWarn && len(cfg.Admins) == 0 {
		verr.add("admins", "required_for_warn",
			"admins is required when on_error is warn")
	}

	return verr.orNil()
}

// documentPath rewrites validator's struct namespace into the document
// notation used in error messages.
func documentPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

// violationMessage renders one failed rule for humans.
func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", documentPath(fe))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", documentPath(fe), fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", documentPath(fe))
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", documentPath(fe), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", documentPath(fe), fe.Param())
	default:
		return fmt.Sprintf("%s failed rule %s", documentPath(fe), fe.Tag())
	}
}

