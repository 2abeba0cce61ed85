package deployment

import (
	"context"
	"fmt"
	"os"

	"github.com/saurabhbilakhia/taxportal/internal/constants"
	"github.com/saurabhbilakhia/taxportal/internal/domain"
	"github.com/saurabhbilakhia/taxportal/internal/environment"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/logger"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/ssh"
)

// Setup uploads the host provisioning script and runs it with bash.
func (o *Orchestrator) Setup(ctx context.Context) error {
	ctx = logger.WithOperation(ctx, "setup")
	o.report.Section("Setting up server")

	script := o.cfg.LocalPath(constants.SetupScript)
	info, err := os.Stat(script)
	if err != nil {
		return domain.NewOpError("setup", fmt.Errorf("%w: setup script: %w", domain.ErrPreconditionFailed, err))
	}
	if !info.Mode().IsRegular() {
		return domain.NewOpError("setup", fmt.Errorf("%w: setup script %s is not a regular file", domain.ErrPreconditionFailed, script))
	}

	remoteScript := o.cfg.RemotePath(constants.SetupScript)
	if err := o.session.MkdirAll(o.cfg.Paths.RemoteDir); err != nil {
		return domain.NewOpError("setup", err)
	}
	if err := o.upload(script, remoteScript); err != nil {
		return domain.NewOpError("setup", err)
	}
	if _, err := o.exec(ctx, "chmod "+constants.ScriptPermission+" "+ssh.ShellEscape(remoteScript)); err != nil {
		return domain.NewOpError("setup", err)
	}

	result, err := o.exec(ctx, "bash "+ssh.ShellEscape(remoteScript))
	if err != nil {
		return domain.NewOpError("setup", err)
	}
	if !result.Success() {
		if o.strict() {
			o.report.Failure(fmt.Sprintf("Setup script exited with code %d", result.ExitCode))
			return domain.NewOpError("setup", result.Err())
		}
		o.report.Info(fmt.Sprintf("Setup script exited with code %d", result.ExitCode))
		return nil
	}

	if err := o.checkHost(ctx); err != nil {
		return domain.NewOpError("setup", err)
	}

	o.report.Success("Server setup complete")
	return nil
}

// checkHost verifies the tooling setup is expected to install. Failed checks
// only fail setup under the strict policy.
func (o *Orchestrator) checkHost(ctx context.Context) error {
	results, err := environment.NewChecker(o.session, o.cfg.Paths.RemoteDir).CheckAll(ctx)
	if err != nil {
		return err
	}
	o.report.Info(environment.FormatResults(o.cfg.SSH.Host, results))

	if environment.HasErrors(results) && o.strict() {
		return domain.ErrHostCheckFailed
	}
	return nil
}
