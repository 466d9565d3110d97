package config

import (
	"strings"
	"testing"
	"time"

	"github.com/flowguard/flowguard/pkg/execution"
)

const validDocument = `
path_to_executable: /flows/daily_sales.flow
mode: PRODUCTION
admins:
  - ops@example.com
log_to:
  table: run_logs
  connection_string: /var/lib/flowguard/flowguard.db
flow_execution:
  timeout_settings:
    on_timeout: warn
    timeout_duration: 30m
  error_handling_settings:
    on_error: warn
`

func TestParseValidDocument(t *testing.T) {
	cfg, err := NewLoader().Parse([]byte(validDocument))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PathToExecutable != "/flows/daily_sales.flow" {
		t.Fatalf("unexpected path: %s", cfg.PathToExecutable)
	}
	if cfg.OnError() != execution.DispositionWarn {
		t.Fatalf("unexpected error disposition: %s", cfg.OnError())
	}
	spec, enabled := cfg.Timeout()
	if !enabled {
		t.Fatal("timeout settings must be enabled")
	}
	if spec.Max != 30*time.Minute {
		t.Fatalf("unexpected timeout: %s", spec.Max)
	}
	if spec.OnTimeout != execution.DispositionWarn {
		t.Fatalf("unexpected timeout disposition: %s", spec.OnTimeout)
	}
}

func TestParseDurationInSeconds(t *testing.T) {
	doc := strings.Replace(validDocument, "timeout_duration: 30m", "timeout_duration: 90", 1)
	cfg, err := NewLoader().Parse([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	spec, _ := cfg.Timeout()
	if spec.Max != 90*time.Second {
		t.Fatalf("bare numbers must mean seconds, got %s", spec.Max)
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	doc := `
mode: STAGING
log_to:
  connection_string: /var/lib/flowguard/flowguard.db
`
	_, err := NewLoader().Parse([]byte(doc))
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected a structured validation error, got %v", err)
	}

	fields := make(map[string]bool)
	for _, v := range verr.Violations {
		fields[v.Field] = true
	}
	for _, want := range []string{"path_to_executable", "mode", "log_to.table"} {
		if !fields[want] {
			t.Fatalf("expected a violation for %s, got %v", want, verr.Violations)
		}
	}
}

func TestValidateMissingLogTable(t *testing.T) {
	doc := strings.Replace(validDocument, "  table: run_logs\n", "", 1)
	_, err := NewLoader().Parse([]byte(doc))
	if err == nil {
		t.Fatal("missing log_to.table must fail validation")
	}
	if !strings.Contains(err.Error(), "log_to.table") {
		t.Fatalf("violation must name the missing field, got %v", err)
	}
}

func TestValidateWorkflowExtension(t *testing.T) {
	doc := strings.Replace(validDocument, "/flows/daily_sales.flow", "/flows/daily_sales.xlsx", 1)
	_, err := NewLoader().Parse([]byte(doc))
	if err == nil || !strings.Contains(err.Error(), "path_to_executable") {
		t.Fatalf("wrong extension must fail validation, got %v", err)
	}
}

func TestValidateAdminsRequiredForWarn(t *testing.T) {
	doc := strings.Replace(validDocument, "admins:\n  - ops@example.com\n", "", 1)
	_, err := NewLoader().Parse([]byte(doc))
	if err == nil || !strings.Contains(err.Error(), "admins") {
		t.Fatalf("warn without admins must fail validation, got %v", err)
	}
}

func TestValidateAdminsOptionalForRaise(t *testing.T) {
	doc := strings.Replace(validDocument, "admins:\n  - ops@example.com\n", "", 1)
	doc = strings.Replace(doc, "on_error: warn", "on_error: raise", 1)
	if _, err := NewLoader().Parse([]byte(doc)); err != nil {
		t.Fatalf("raise does not need admins, got %v", err)
	}
}

func TestValidateAdminEmailFormat(t *testing.T) {
	doc := strings.Replace(validDocument, "- ops@example.com", "- not-an-address", 1)
	_, err := NewLoader().Parse([]byte(doc))
	if err == nil || !strings.Contains(err.Error(), "email") {
		t.Fatalf("malformed admin address must fail validation, got %v", err)
	}
}

func TestValidateFlowExecutionOptional(t *testing.T) {
	doc := `
path_to_executable: /flows/daily_sales.flow
mode: TEST
log_to:
  table: run_logs
  connection_string: /var/lib/flowguard/flowguard.db
`
	cfg, err := NewLoader().Parse([]byte(doc))
	if err != nil {
		t.Fatalf("flow_execution is optional, got %v", err)
	}
	if _, enabled := cfg.Timeout(); enabled {
		t.Fatal("absent timeout settings must be disabled")
	}
	if cfg.OnError() != execution.DispositionRaise {
		t.Fatalf("default error disposition must be raise, got %s", cfg.OnError())
	}
}
