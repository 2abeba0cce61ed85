package ssh

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/saurabhbilakhia/taxportal/internal/domain"
)

func dialTest(t *testing.T, opts Options) *Client {
	t.Helper()
	client, err := Dial(context.Background(), opts)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestExec_Success(t *testing.T) {
	received := make(chan string, 1)
	srv := startTestServer(t, func(cmd string) (string, string, int) {
		received <- cmd
		return "NAME   STATUS\napp    running\n", "", 0
	})
	client := dialTest(t, srv.options(t))

	result, err := client.Exec(context.Background(), "docker compose ps")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := <-received; got != "docker compose ps" {
		t.Errorf("server received %q", got)
	}
	if result.ExitCode != 0 || !result.Success() {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
	if !strings.Contains(string(result.Stdout), "app    running") {
		t.Errorf("unexpected stdout %q", result.Stdout)
	}
	if result.Err() != nil {
		t.Errorf("expected nil Err, got %v", result.Err())
	}
}

func TestExec_NonzeroExitIsNotAnError(t *testing.T) {
	srv := startTestServer(t, func(cmd string) (string, string, int) {
		return "", "too many certificates already issued\n", 1
	})
	client := dialTest(t, srv.options(t))

	result, err := client.Exec(context.Background(), "certbot certonly")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", result.ExitCode)
	}
	if string(result.Stderr) != "too many certificates already issued\n" {
		t.Errorf("unexpected stderr %q", result.Stderr)
	}

	cmdErr := result.Err()
	if !errors.Is(cmdErr, domain.ErrCommandFailed) {
		t.Errorf("expected ErrCommandFailed, got %v", cmdErr)
	}
	var ce *domain.CommandError
	if !errors.As(cmdErr, &ce) || ce.ExitCode != 1 {
		t.Errorf("expected CommandError with exit code 1, got %v", cmdErr)
	}
}

func TestExec_Timeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	srv := startTestServer(t, func(cmd string) (string, string, int) {
		<-release
		return "", "", 0
	})
	opts := srv.options(t)
	opts.CommandTimeout = 50 * time.Millisecond
	client := dialTest(t, opts)

	_, err := client.Exec(context.Background(), "sleep 600")
	if !errors.Is(err, domain.ErrCommandTimeout) {
		t.Fatalf("expected ErrCommandTimeout, got %v", err)
	}
}

func TestExec_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	srv := startTestServer(t, func(cmd string) (string, string, int) {
		<-release
		return "", "", 0
	})
	client := dialTest(t, srv.options(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Exec(ctx, "sleep 600")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
}

func TestDial_WrongPassword(t *testing.T) {
	srv := startTestServer(t, nil)
	opts := srv.options(t)
	opts.Password = "wrong"

	_, err := Dial(context.Background(), opts)
	if !errors.Is(err, domain.ErrSSHConnectFailed) {
		t.Fatalf("expected ErrSSHConnectFailed, got %v", err)
	}
}

func TestDial_NoAuthMethod(t *testing.T) {
	srv := startTestServer(t, nil)
	opts := srv.options(t)
	opts.Password = ""

	_, err := Dial(context.Background(), opts)
	if !errors.Is(err, domain.ErrSSHAuthFailed) {
		t.Fatalf("expected ErrSSHAuthFailed, got %v", err)
	}
}

func TestDial_MissingHost(t *testing.T) {
	_, err := Dial(context.Background(), Options{User: "root", Password: "x"})
	if !errors.Is(err, domain.ErrRequired) {
		t.Fatalf("expected ErrRequired, got %v", err)
	}
}

func TestDial_ConnectionRefused(t *testing.T) {
	srv := startTestServer(t, nil)
	opts := srv.options(t)
	srv.ln.Close()
	opts.Timeout = time.Second

	_, err := Dial(context.Background(), opts)
	if !errors.Is(err, domain.ErrSSHConnectFailed) {
		t.Fatalf("expected ErrSSHConnectFailed, got %v", err)
	}
}

func TestDial_PinnedFingerprint(t *testing.T) {
	srv := startTestServer(t, nil)

	t.Run("match", func(t *testing.T) {
		opts := srv.options(t)
		opts.HostKeyPolicy = HostKeyFingerprint
		opts.Fingerprint = ssh.FingerprintSHA256(srv.signer.PublicKey())
		dialTest(t, opts)
	})

	t.Run("match without prefix", func(t *testing.T) {
		opts := srv.options(t)
		opts.HostKeyPolicy = HostKeyFingerprint
		opts.Fingerprint = strings.TrimPrefix(ssh.FingerprintSHA256(srv.signer.PublicKey()), "SHA256:")
		dialTest(t, opts)
	})

	t.Run("mismatch", func(t *testing.T) {
		opts := srv.options(t)
		opts.HostKeyPolicy = HostKeyFingerprint
		opts.Fingerprint = "SHA256:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
		_, err := Dial(context.Background(), opts)
		if err == nil {
			t.Fatal("expected error for mismatched fingerprint")
		}
		if !strings.Contains(err.Error(), "host key mismatch") {
			t.Errorf("expected host key mismatch, got %v", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		opts := srv.options(t)
		opts.HostKeyPolicy = HostKeyFingerprint
		_, err := Dial(context.Background(), opts)
		if !errors.Is(err, domain.ErrRequired) {
			t.Errorf("expected ErrRequired, got %v", err)
		}
	})
}

func TestDial_KnownHosts(t *testing.T) {
	srv := startTestServer(t, nil)
	knownHostsPath := filepath.Join(t.TempDir(), ".ssh", "known_hosts")

	t.Run("missing file rejected", func(t *testing.T) {
		opts := srv.options(t)
		opts.HostKeyPolicy = HostKeyKnownHosts
		opts.KnownHostsPath = knownHostsPath
		if _, err := Dial(context.Background(), opts); err == nil {
			t.Fatal("expected error when known_hosts is missing")
		}
	})

	t.Run("accept new appends key", func(t *testing.T) {
		opts := srv.options(t)
		opts.HostKeyPolicy = HostKeyKnownHosts
		opts.KnownHostsPath = knownHostsPath
		opts.AcceptNewHostKey = true
		dialTest(t, opts)

		data, err := os.ReadFile(knownHostsPath)
		if err != nil {
			t.Fatalf("read known_hosts: %v", err)
		}
		if len(data) == 0 {
			t.Fatal("expected host key to be recorded")
		}
	})

	t.Run("known key accepted", func(t *testing.T) {
		opts := srv.options(t)
		opts.HostKeyPolicy = HostKeyKnownHosts
		opts.KnownHostsPath = knownHostsPath
		dialTest(t, opts)
	})

	t.Run("unknown host rejected", func(t *testing.T) {
		other := startTestServer(t, nil)
		opts := other.options(t)
		opts.HostKeyPolicy = HostKeyKnownHosts
		opts.KnownHostsPath = knownHostsPath
		_, err := Dial(context.Background(), opts)
		if err == nil || !strings.Contains(err.Error(), "host key unknown") {
			t.Fatalf("expected unknown host error, got %v", err)
		}
	})

	t.Run("changed key rejected", func(t *testing.T) {
		other := startTestServer(t, nil)
		line := knownhosts.Line([]string{other.addr()}, srv.signer.PublicKey())
		f, err := os.OpenFile(knownHostsPath, os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			t.Fatalf("open known_hosts: %v", err)
		}
		if _, err := f.WriteString(line + "\n"); err != nil {
			t.Fatalf("write known_hosts: %v", err)
		}
		f.Close()

		opts := other.options(t)
		opts.HostKeyPolicy = HostKeyKnownHosts
		opts.KnownHostsPath = knownHostsPath
		opts.AcceptNewHostKey = true
		_, err = Dial(context.Background(), opts)
		if err == nil || !strings.Contains(err.Error(), "host key mismatch") {
			t.Fatalf("expected host key mismatch, got %v", err)
		}
	})
}

func TestUpload(t *testing.T) {
	srv := startTestServer(t, nil)
	client := dialTest(t, srv.options(t))

	localDir := t.TempDir()
	remoteDir := t.TempDir()

	local := filepath.Join(localDir, "nginx-init.conf")
	if err := os.WriteFile(local, []byte("server { listen 80; }\n"), 0644); err != nil {
		t.Fatalf("write local: %v", err)
	}
	remote := filepath.Join(remoteDir, "nginx.conf")
	if err := os.WriteFile(remote, []byte("a much longer previous configuration that must be replaced\n"), 0644); err != nil {
		t.Fatalf("write remote: %v", err)
	}

	if err := client.Upload(local, remote); err != nil {
		t.Fatalf("upload: %v", err)
	}

	data, err := os.ReadFile(remote)
	if err != nil {
		t.Fatalf("read remote: %v", err)
	}
	if string(data) != "server { listen 80; }\n" {
		t.Errorf("remote content = %q", data)
	}
}

func TestUpload_MissingLocalFile(t *testing.T) {
	srv := startTestServer(t, nil)
	client := dialTest(t, srv.options(t))

	err := client.Upload(filepath.Join(t.TempDir(), "absent.env"), filepath.Join(t.TempDir(), ".env"))
	if !errors.Is(err, domain.ErrSSHFileTransfer) {
		t.Fatalf("expected ErrSSHFileTransfer, got %v", err)
	}
}

func TestUpload_UnwritableRemote(t *testing.T) {
	srv := startTestServer(t, nil)
	client := dialTest(t, srv.options(t))

	local := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(local, []byte("x"), 0644); err != nil {
		t.Fatalf("write local: %v", err)
	}

	err := client.Upload(local, filepath.Join(t.TempDir(), "missing", "dir", "f"))
	if !errors.Is(err, domain.ErrSSHFileTransfer) {
		t.Fatalf("expected ErrSSHFileTransfer, got %v", err)
	}
}

func TestMkdirAll(t *testing.T) {
	srv := startTestServer(t, nil)
	client := dialTest(t, srv.options(t))

	target := filepath.Join(t.TempDir(), "opt", "clientportal")
	if err := client.MkdirAll(target); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected directory at %s", target)
	}
}

func TestClose_Idempotent(t *testing.T) {
	srv := startTestServer(t, nil)
	client, err := Dial(context.Background(), srv.options(t))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	_ = client.Close()
}

// startAgent serves an empty keyring on SSH_AUTH_SOCK. The returned channel
// receives once per agent connection when the client side hangs up.
func startAgent(t *testing.T) <-chan struct{} {
	t.Helper()
	// unix socket paths are length limited; t.TempDir can be too deep
	dir, err := os.MkdirTemp("", "agent")
	if err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	sock := filepath.Join(dir, "agent.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	t.Setenv("SSH_AUTH_SOCK", sock)

	hangups := make(chan struct{}, 4)
	keyring := agent.NewKeyring()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				_ = agent.ServeAgent(keyring, conn)
				conn.Close()
				hangups <- struct{}{}
			}()
		}
	}()
	return hangups
}

func waitHangup(t *testing.T, hangups <-chan struct{}) {
	t.Helper()
	select {
	case <-hangups:
	case <-time.After(5 * time.Second):
		t.Fatal("agent connection was not closed")
	}
}

func TestClose_ReleasesAgentConnection(t *testing.T) {
	hangups := startAgent(t)
	srv := startTestServer(t, nil)
	opts := srv.options(t)
	opts.UseAgent = true

	client, err := Dial(context.Background(), opts)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if client.agentConn == nil {
		t.Fatal("expected an agent connection")
	}
	select {
	case <-hangups:
		t.Fatal("agent connection closed while the client is open")
	default:
	}

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitHangup(t, hangups)
}

func TestDial_FailureReleasesAgentConnection(t *testing.T) {
	hangups := startAgent(t)
	srv := startTestServer(t, nil)
	opts := srv.options(t)
	opts.UseAgent = true
	opts.Password = "wrong"

	if _, err := Dial(context.Background(), opts); err == nil {
		t.Fatal("expected dial to fail")
	}
	waitHangup(t, hangups)
}

func TestParseHostKeyPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    HostKeyPolicy
		wantErr bool
	}{
		{"", HostKeyKnownHosts, false},
		{"known-hosts", HostKeyKnownHosts, false},
		{"Fingerprint", HostKeyFingerprint, false},
		{"insecure", HostKeyInsecure, false},
		{"trust-me", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHostKeyPolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHostKeyPolicy(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseHostKeyPolicy(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
