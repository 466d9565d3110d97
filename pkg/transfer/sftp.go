// Package transfer moves workflow inputs and outputs between the local
// filesystem and remote SFTP endpoints.
package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/flowguard/flowguard/pkg/execution"
	"github.com/flowguard/flowguard/pkg/telemetry"
)

// Config holds the connection settings for a remote SFTP endpoint.
// Exactly one of Password or KeyFile authenticates the session.
type Config struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password"`
	KeyFile  string `yaml:"key_file"`

	// ConnectTimeout bounds the TCP and SSH handshake.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// Retry controls reconnection attempts when the initial dial fails.
	Retry execution.RetrySpec `yaml:"retry"`
}

// Validate checks the config before any connection is attempted.
func (c *Config) Validate() error {
	if c.Host == "" {
		return execution.NewError(execution.KindTransfer, "sftp host is required", nil)
	}
	if c.Username == "" {
		return execution.NewError(execution.KindTransfer, "sftp username is required", nil)
	}
	if c.Password != "" && c.KeyFile != "" {
		return execution.NewError(execution.KindTransfer, "use either password or key file, not both", nil)
	}
	if c.Password == "" && c.KeyFile == "" {
		return execution.NewError(execution.KindTransfer, "either password or key file is required", nil)
	}
	return nil
}

// Address returns the host:port dial address, defaulting to port 22.
func (c *Config) Address() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// FileInfo describes a single remote file.
type FileInfo struct {
	Name string
	Size int64
	Mode os.FileMode
}

// Client is an SFTP client for workflow file transfer. Connect must be
// called before any transfer operation.
type Client struct {
	config Config
	logger *telemetry.Logger

	mu     sync.Mutex
	ssh    *ssh.Client
	sftp   *sftp.Client
	dialed bool
}

// NewClient creates a Client for the given endpoint.
func NewClient(config Config, logger *telemetry.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Client{
		config: config,
		logger: logger.WithField("component", "sftp").WithField("host", config.Host),
	}, nil
}

// Connect dials the endpoint and opens an SFTP session. When the config
// carries a retry spec, failed dials are retried on its schedule.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dialed {
		return nil
	}

	dial := execution.Retry(c.config.Retry, func(ctx context.Context) (any, error) {
		return c.dial(ctx)
	})

	result, err := dial(ctx)
	if err != nil {
		return execution.NewError(execution.KindTransfer,
			fmt.Sprintf("failed to connect to %s", c.config.Address()), err)
	}

	c.ssh = result.(*ssh.Client)
	sftpClient, err := sftp.NewClient(c.ssh)
	if err != nil {
		_ = c.ssh.Close()
		c.ssh = nil
		return execution.NewError(execution.KindTransfer, "failed to open sftp session", err)
	}

	c.sftp = sftpClient
	c.dialed = true
	c.logger.Info("Connected to SFTP endpoint")
	return nil
}

// dial performs a single SSH connection attempt.
func (c *Client) dial(ctx context.Context) (*ssh.Client, error) {
	auth, err := c.authMethods()
	if err != nil {
		return nil, err
	}

	timeout := c.config.ConnectTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	clientConfig := &ssh.ClientConfig{
		User:            c.config.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", c.config.Address(), clientConfig)
		resultCh <- dialResult{client: client, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultCh:
		return r.client, r.err
	}
}

// authMethods builds the SSH auth methods from the config.
func (c *Client) authMethods() ([]ssh.AuthMethod, error) {
	if c.config.KeyFile != "" {
		key, err := os.ReadFile(c.config.KeyFile)
		if err != nil {
			return nil, execution.NewError(execution.KindTransfer,
				fmt.Sprintf("failed to read key file %s", c.config.KeyFile), err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, execution.NewError(execution.KindTransfer,
				fmt.Sprintf("failed to parse key file %s", c.config.KeyFile), err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return []ssh.AuthMethod{ssh.Password(c.config.Password)}, nil
}

// Close tears down the SFTP session and SSH connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dialed {
		return nil
	}
	c.dialed = false

	var sftpErr, sshErr error
	if c.sftp != nil {
		sftpErr = c.sftp.Close()
		c.sftp = nil
	}
	if c.ssh != nil {
		sshErr = c.ssh.Close()
		c.ssh = nil
	}
	if sftpErr != nil {
		return sftpErr
	}
	return sshErr
}

// session returns the live SFTP session or a classified error.
func (c *Client) session() (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dialed || c.sftp == nil {
		return nil, execution.NewError(execution.KindTransfer, "not connected", nil)
	}
	return c.sftp, nil
}

// Download copies a remote file into localDir, keeping its base name.
func (c *Client) Download(ctx context.Context, remotePath, localDir string) error {
	session, err := c.session()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := session.Open(remotePath)
	if err != nil {
		return execution.NewError(execution.KindTransfer,
			fmt.Sprintf("failed to open remote file %s", remotePath), err)
	}
	defer func() { _ = src.Close() }()

	localPath := filepath.Join(localDir, path.Base(remotePath))
	dst, err := os.Create(localPath)
	if err != nil {
		return execution.NewError(execution.KindTransfer,
			fmt.Sprintf("failed to create local file %s", localPath), err)
	}
	defer func() { _ = dst.Close() }()

	n, err := io.Copy(dst, src)
	if err != nil {
		return execution.NewError(execution.KindTransfer,
			fmt.Sprintf("failed to download %s", remotePath), err)
	}

	c.logger.WithField("remote", remotePath).WithField("bytes", fmt.Sprintf("%d", n)).Debug("File downloaded")
	return nil
}

// DownloadAll downloads multiple remote files into localDir
// concurrently, bounded by maxWorkers. Results come back in input
// order; per-file failures do not stop the remaining downloads.
func (c *Client) DownloadAll(ctx context.Context, remotePaths []string, localDir string, maxWorkers int) ([]execution.Outcome, error) {
	inputs := make([]any, len(remotePaths))
	for i, p := range remotePaths {
		inputs[i] = p
	}

	spec := execution.ParallelSpec{MaxWorkers: maxWorkers}
	return execution.Parallel(ctx, spec, func(ctx context.Context, input any) (any, error) {
		remotePath := input.(string)
		if err := c.Download(ctx, remotePath, localDir); err != nil {
			return nil, err
		}
		return remotePath, nil
	}, inputs)
}

// Upload copies a local file to remotePath.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string) error {
	session, err := c.session()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return execution.NewError(execution.KindTransfer,
			fmt.Sprintf("failed to open local file %s", localPath), err)
	}
	defer func() { _ = src.Close() }()

	dst, err := session.Create(remotePath)
	if err != nil {
		return execution.NewError(execution.KindTransfer,
			fmt.Sprintf("failed to create remote file %s", remotePath), err)
	}
	defer func() { _ = dst.Close() }()

	n, err := io.Copy(dst, src)
	if err != nil {
		return execution.NewError(execution.KindTransfer,
			fmt.Sprintf("failed to upload %s", localPath), err)
	}

	c.logger.WithField("remote", remotePath).WithField("bytes", fmt.Sprintf("%d", n)).Debug("File uploaded")
	return nil
}

// List returns the files under remoteDir with their size and mode.
func (c *Client) List(ctx context.Context, remoteDir string) ([]FileInfo, error) {
	session, err := c.session()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := session.ReadDir(remoteDir)
	if err != nil {
		return nil, execution.NewError(execution.KindTransfer,
			fmt.Sprintf("failed to list %s", remoteDir), err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, FileInfo{
			Name: entry.Name(),
			Size: entry.Size(),
			Mode: entry.Mode(),
		})
	}
	return files, nil
}

// Delete removes a remote file.
func (c *Client) Delete(ctx context.Context, remotePath string) error {
	session, err := c.session()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := session.Remove(remotePath); err != nil {
		return execution.NewError(execution.KindTransfer,
			fmt.Sprintf("failed to delete %s", remotePath), err)
	}

	c.logger.WithField("remote", remotePath).Debug("File deleted")
	return nil
}
