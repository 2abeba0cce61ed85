package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/saurabhbilakhia/taxportal/internal/domain"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/logger"
)

type Options struct {
	Host string
	Port int
	User string

	Password   string
	KeyFile    string
	Passphrase string
	UseAgent   bool

	HostKeyPolicy    HostKeyPolicy
	KnownHostsPath   string
	AcceptNewHostKey bool
	Fingerprint      string

	Timeout        time.Duration
	CommandTimeout time.Duration
}

func (o Options) Addr() string {
	port := o.Port
	if port == 0 {
		port = domain.DefaultSSHPort
	}
	return net.JoinHostPort(o.Host, strconv.Itoa(port))
}

type Client struct {
	client         *ssh.Client
	addr           string
	user           string
	commandTimeout time.Duration
	// ssh-agent socket, nil when the agent is not in use
	agentConn io.Closer

	closeOnce sync.Once
	closeErr  error
}

func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Host == "" {
		return nil, domain.RequiredField("host")
	}
	if opts.User == "" {
		return nil, domain.RequiredField("user")
	}

	auths, agentConn, err := authMethods(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSSHAuthFailed, err)
	}
	connected := false
	defer func() {
		if !connected && agentConn != nil {
			agentConn.Close()
		}
	}()

	hostKeyCallback, err := newHostKeyCallback(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: host key callback: %w", domain.ErrSSHConnectFailed, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultConnectTimeout
	}

	config := &ssh.ClientConfig{
		User:            opts.User,
		Auth:            auths,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	addr := opts.Addr()
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", domain.ErrSSHConnectFailed, addr, err)
	}

	// The handshake has no context of its own; bound it with a deadline.
	_ = conn.SetDeadline(time.Now().Add(timeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: handshake with %s: %w", domain.ErrSSHConnectFailed, addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	logger.FromContext(ctx).Debug("ssh connected", "addr", addr, "user", opts.User, "agent", agentConn != nil)

	connected = true
	return &Client{
		client:         ssh.NewClient(c, chans, reqs),
		addr:           addr,
		user:           opts.User,
		commandTimeout: opts.CommandTimeout,
		agentConn:      agentConn,
	}, nil
}

// authMethods also returns the agent connection it opened, if any; the
// caller owns it.
func authMethods(opts Options) ([]ssh.AuthMethod, io.Closer, error) {
	var auths []ssh.AuthMethod

	if opts.KeyFile != "" {
		signer, err := loadSigner(opts.KeyFile, opts.Passphrase)
		if err != nil {
			return nil, nil, fmt.Errorf("load key %s: %w", opts.KeyFile, err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	}

	var agentConn net.Conn
	if opts.UseAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			if conn, err := net.Dial("unix", sock); err == nil {
				agentConn = conn
				auths = append(auths, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			}
		}
	}

	if opts.Password != "" {
		auths = append(auths, ssh.Password(opts.Password))
	}

	if len(auths) == 0 {
		return nil, nil, errors.New("no authentication method configured (password, key file or agent)")
	}
	if agentConn == nil {
		return auths, nil, nil
	}
	return auths, agentConn, nil
}

func loadSigner(path, passphrase string) (ssh.Signer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(b, []byte(passphrase))
	}
	s, err := ssh.ParsePrivateKey(b)
	if err == nil {
		return s, nil
	}
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		return nil, errors.New("private key is encrypted; a passphrase is required")
	}
	return nil, err
}

func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.client != nil {
			c.closeErr = c.client.Close()
		}
		if c.agentConn != nil {
			c.closeErr = errors.Join(c.closeErr, c.agentConn.Close())
		}
	})
	return c.closeErr
}

// Exec runs cmd and waits for it to finish. A nonzero exit status is reported
// in CommandResult.ExitCode, not as an error; errors are transport failures, timeouts
// and cancellation.
func (c *Client) Exec(ctx context.Context, cmd string) (*domain.CommandResult, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSSHSessionFailed, err)
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	var timeout <-chan time.Time
	if c.commandTimeout > 0 {
		timer := time.NewTimer(c.commandTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case err = <-done:
	case <-timeout:
		_ = session.Signal(ssh.SIGKILL)
		return nil, fmt.Errorf("%w after %s: %s", domain.ErrCommandTimeout, c.commandTimeout, cmd)
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	}

	result := &domain.CommandResult{
		Command:  cmd,
		Stdout:   stdoutBuf.Bytes(),
		Stderr:   stderrBuf.Bytes(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrSSHSessionFailed, cmd, err)
		}
		result.ExitCode = exitErr.ExitStatus()
	}

	return result, nil
}

func (c *Client) Upload(localPath, remotePath string) error {
	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: open local file: %w", domain.ErrSSHFileTransfer, err)
	}
	defer localFile.Close()

	sftpClient, err := c.newSFTPClient()
	if err != nil {
		return fmt.Errorf("%w: start sftp: %w", domain.ErrSSHFileTransfer, err)
	}
	defer sftpClient.Close()

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("%w: create remote file %s: %w", domain.ErrSSHFileTransfer, remotePath, err)
	}

	if _, err := io.Copy(remoteFile, localFile); err != nil {
		remoteFile.Close()
		return fmt.Errorf("%w: copy %s: %w", domain.ErrSSHFileTransfer, localPath, err)
	}
	if err := remoteFile.Close(); err != nil {
		return fmt.Errorf("%w: close remote file %s: %w", domain.ErrSSHFileTransfer, remotePath, err)
	}

	return nil
}

func (c *Client) MkdirAll(path string) error {
	sftpClient, err := c.newSFTPClient()
	if err != nil {
		return fmt.Errorf("%w: start sftp: %w", domain.ErrSSHFileTransfer, err)
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(path); err != nil {
		return fmt.Errorf("%w: mkdir %s: %w", domain.ErrSSHFileTransfer, path, err)
	}
	return nil
}

func (c *Client) newSFTPClient() (sftpClient, error) {
	return newSFTP(c.client)
}

type sftpClient interface {
	Create(path string) (sftpFile, error)
	MkdirAll(path string) error
	Close() error
}

type sftpFile interface {
	io.Writer
	io.Closer
}
