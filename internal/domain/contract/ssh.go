package contract

import (
	"context"

	"github.com/saurabhbilakhia/taxportal/internal/domain"
)

type SSHRunner interface {
	Exec(ctx context.Context, cmd string) (*domain.CommandResult, error)
}

// SSHSession is the single remote session an operation drives.
type SSHSession interface {
	SSHRunner
	Upload(localPath, remotePath string) error
	MkdirAll(path string) error
	Close() error
}

// LocalRunner runs the container toolchain on the operator's machine.
type LocalRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
	ExportGzip(ctx context.Context, dest, name string, args ...string) error
}
