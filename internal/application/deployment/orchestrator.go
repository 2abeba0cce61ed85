package deployment

import (
	"context"
	"time"

	"github.com/saurabhbilakhia/taxportal/internal/application/pipeline"
	"github.com/saurabhbilakhia/taxportal/internal/config"
	"github.com/saurabhbilakhia/taxportal/internal/domain"
	"github.com/saurabhbilakhia/taxportal/internal/domain/contract"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/compose"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/logger"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/ssh"
)

// Reporter receives operator-facing progress.
type Reporter interface {
	Section(title string)
	Info(msg string)
	Command(cmd string)
	Output(stdout, stderr []byte)
	Upload(localPath, remotePath string)
	Step(name string, outcome pipeline.Outcome)
	Success(msg string)
	Failure(msg string, hints ...string)
}

type SleepFunc func(ctx context.Context, d time.Duration) error

type Orchestrator struct {
	session contract.SSHSession
	local   contract.LocalRunner
	cfg     *config.Config
	report  Reporter
	sleep   SleepFunc
	runner  *pipeline.Runner

	// set once the compose file has been validated
	descriptor *compose.File
}

type Option func(*Orchestrator)

// WithSleep replaces the wait used for fixed delays.
func WithSleep(fn SleepFunc) Option {
	return func(o *Orchestrator) {
		o.sleep = fn
	}
}

func New(session contract.SSHSession, local contract.LocalRunner, cfg *config.Config, report Reporter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		session: session,
		local:   local,
		cfg:     cfg,
		report:  report,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.runner = pipeline.NewRunner(func(step pipeline.Step, outcome pipeline.Outcome) {
		o.report.Step(step.Name, outcome)
	})
	return o
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) strict() bool {
	return o.cfg.Deploy.FailurePolicy != config.PolicyBestEffort
}

// remote runs cmd inside the remote directory and relays its output.
func (o *Orchestrator) remote(ctx context.Context, cmd string) (*domain.CommandResult, error) {
	return o.exec(ctx, ssh.InDir(o.cfg.Paths.RemoteDir, cmd))
}

func (o *Orchestrator) exec(ctx context.Context, cmd string) (*domain.CommandResult, error) {
	o.report.Command(cmd)
	result, err := o.session.Exec(ctx, cmd)
	if err != nil {
		return nil, err
	}
	o.report.Output(result.Stdout, result.Stderr)
	logger.FromContext(ctx).Debug("remote command finished",
		"cmd", cmd, "exit_code", result.ExitCode, "duration", result.Duration)
	return result, nil
}

// remoteStep runs cmd and turns a nonzero exit into an error.
func (o *Orchestrator) remoteStep(cmd string) func(context.Context) error {
	return func(ctx context.Context) error {
		result, err := o.remote(ctx, cmd)
		if err != nil {
			return err
		}
		return result.Err()
	}
}

func (o *Orchestrator) upload(localPath, remotePath string) error {
	o.report.Upload(localPath, remotePath)
	return o.session.Upload(localPath, remotePath)
}
