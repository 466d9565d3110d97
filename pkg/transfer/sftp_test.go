package transfer

import (
	"context"
	"testing"

	"github.com/flowguard/flowguard/pkg/execution"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "password auth",
			config: Config{Host: "sftp.example.com", Username: "svc", Password: "secret"},
		},
		{
			name:   "key file auth",
			config: Config{Host: "sftp.example.com", Username: "svc", KeyFile: "/etc/flowguard/id_ed25519"},
		},
		{
			name:    "missing host",
			config:  Config{Username: "svc", Password: "secret"},
			wantErr: true,
		},
		{
			name:    "missing username",
			config:  Config{Host: "sftp.example.com", Password: "secret"},
			wantErr: true,
		},
		{
			name:    "both password and key file",
			config:  Config{Host: "sftp.example.com", Username: "svc", Password: "secret", KeyFile: "/etc/key"},
			wantErr: true,
		},
		{
			name:    "no credentials",
			config:  Config{Host: "sftp.example.com", Username: "svc"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				if !execution.IsKind(err, execution.KindTransfer) {
					t.Fatalf("expected transfer error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfigAddressDefaultsPort(t *testing.T) {
	c := Config{Host: "sftp.example.com"}
	if got := c.Address(); got != "sftp.example.com:22" {
		t.Errorf("expected default port 22, got %q", got)
	}

	c.Port = 2222
	if got := c.Address(); got != "sftp.example.com:2222" {
		t.Errorf("expected explicit port, got %q", got)
	}
}

func TestClientRejectsInvalidConfig(t *testing.T) {
	_, err := NewClient(Config{Host: "sftp.example.com"}, nil)
	if !execution.IsKind(err, execution.KindTransfer) {
		t.Fatalf("expected transfer error, got %v", err)
	}
}

func TestClientOperationsRequireConnection(t *testing.T) {
	c, err := NewClient(Config{Host: "sftp.example.com", Username: "svc", Password: "secret"}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	ctx := context.Background()
	if err := c.Download(ctx, "/in/report.csv", t.TempDir()); !execution.IsKind(err, execution.KindTransfer) {
		t.Errorf("Download: expected transfer error, got %v", err)
	}
	if err := c.Upload(ctx, "/tmp/report.csv", "/out/report.csv"); !execution.IsKind(err, execution.KindTransfer) {
		t.Errorf("Upload: expected transfer error, got %v", err)
	}
	if _, err := c.List(ctx, "/in"); !execution.IsKind(err, execution.KindTransfer) {
		t.Errorf("List: expected transfer error, got %v", err)
	}
	if err := c.Delete(ctx, "/in/report.csv"); !execution.IsKind(err, execution.KindTransfer) {
		t.Errorf("Delete: expected transfer error, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c, err := NewClient(Config{Host: "sftp.example.com", Username: "svc", Password: "secret"}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
