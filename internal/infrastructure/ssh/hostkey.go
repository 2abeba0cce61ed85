package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/saurabhbilakhia/taxportal/internal/constants"
	"github.com/saurabhbilakhia/taxportal/internal/domain"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/logger"
)

type HostKeyPolicy string

const (
	HostKeyKnownHosts  HostKeyPolicy = "known-hosts"
	HostKeyFingerprint HostKeyPolicy = "fingerprint"
	HostKeyInsecure    HostKeyPolicy = "insecure"
)

func ParseHostKeyPolicy(s string) (HostKeyPolicy, error) {
	switch p := HostKeyPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", HostKeyKnownHosts:
		return HostKeyKnownHosts, nil
	case HostKeyFingerprint, HostKeyInsecure:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown host key policy %q", domain.ErrConfigInvalid, s)
	}
}

func DefaultKnownHostsPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
	}
	return filepath.Join(homeDir, ".ssh", "known_hosts")
}

func newHostKeyCallback(opts Options) (ssh.HostKeyCallback, error) {
	switch opts.HostKeyPolicy {
	case HostKeyFingerprint:
		return fingerprintCallback(opts.Fingerprint)
	case HostKeyInsecure:
		logger.Warn("host key verification disabled", "host", opts.Host)
		return ssh.InsecureIgnoreHostKey(), nil
	default:
		path := opts.KnownHostsPath
		if path == "" {
			path = DefaultKnownHostsPath()
		}
		return knownHostsCallback(path, opts.AcceptNewHostKey)
	}
}

func fingerprintCallback(pinned string) (ssh.HostKeyCallback, error) {
	pinned = strings.TrimSpace(pinned)
	if pinned == "" {
		return nil, domain.RequiredField("host fingerprint")
	}
	if !strings.HasPrefix(pinned, "SHA256:") {
		pinned = "SHA256:" + pinned
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		got := ssh.FingerprintSHA256(key)
		if got != pinned {
			return fmt.Errorf("%w for %s: got %s, want %s", domain.ErrSSHHostKeyMismatch, hostname, got, pinned)
		}
		return nil
	}, nil
}

// knownHostsCallback verifies against a known_hosts file. Unknown hosts are
// rejected unless acceptNew is set, in which case the key is appended.
func knownHostsCallback(knownHostsPath string, acceptNew bool) (ssh.HostKeyCallback, error) {
	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		if !acceptNew {
			return nil, fmt.Errorf("known_hosts file not found at %s; pin a fingerprint or allow accepting new host keys", knownHostsPath)
		}
		if err := os.MkdirAll(filepath.Dir(knownHostsPath), constants.DirPermissionOwner); err != nil {
			return nil, err
		}
		if err := os.WriteFile(knownHostsPath, []byte{}, constants.FilePermissionOwnerRW); err != nil {
			return nil, err
		}
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, err
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := callback(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			return err
		}

		if len(keyErr.Want) > 0 {
			return fmt.Errorf("%w for %s: possible MITM attack", domain.ErrSSHHostKeyMismatch, hostname)
		}
		if !acceptNew {
			return fmt.Errorf("%w: %s (%s) is not in %s", domain.ErrSSHHostKeyUnknown, hostname, ssh.FingerprintSHA256(key), knownHostsPath)
		}

		line := knownhosts.Line([]string{hostname}, key)
		f, err := os.OpenFile(knownHostsPath, os.O_APPEND|os.O_WRONLY, constants.FilePermissionOwnerRW)
		if err != nil {
			return fmt.Errorf("failed to open known_hosts: %w", err)
		}
		defer f.Close()
		if _, err := fmt.Fprintln(f, line); err != nil {
			return fmt.Errorf("failed to write to known_hosts: %w", err)
		}
		logger.Info("added host key to known_hosts", "host", hostname, "fingerprint", ssh.FingerprintSHA256(key))
		return nil
	}, nil
}
