package cli

import (
	"context"

	"github.com/saurabhbilakhia/taxportal/internal/config"
	"github.com/saurabhbilakhia/taxportal/internal/domain/contract"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/ssh"
)

// SessionFactory opens the remote session for one run.
type SessionFactory func(ctx context.Context, cfg *config.Config) (contract.SSHSession, error)

func dialSession(ctx context.Context, cfg *config.Config) (contract.SSHSession, error) {
	policy, err := ssh.ParseHostKeyPolicy(cfg.SSH.HostKeyPolicy)
	if err != nil {
		return nil, err
	}
	client, err := ssh.Dial(ctx, ssh.Options{
		Host:             cfg.SSH.Host,
		Port:             cfg.SSH.Port,
		User:             cfg.SSH.User,
		Password:         cfg.SSH.Password,
		KeyFile:          cfg.SSH.KeyFile,
		Passphrase:       cfg.SSH.Passphrase,
		UseAgent:         cfg.SSH.UseAgent,
		HostKeyPolicy:    policy,
		KnownHostsPath:   cfg.SSH.KnownHosts,
		AcceptNewHostKey: cfg.SSH.AcceptNewHostKey,
		Fingerprint:      cfg.SSH.Fingerprint,
		Timeout:          cfg.SSH.ConnectTimeout,
		CommandTimeout:   cfg.SSH.CommandTimeout,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
