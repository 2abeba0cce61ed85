package deployment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/saurabhbilakhia/taxportal/internal/application/pipeline"
	"github.com/saurabhbilakhia/taxportal/internal/constants"
	"github.com/saurabhbilakhia/taxportal/internal/domain"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/compose"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/logger"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/ssh"
)

const (
	StepValidateCompose = "validate compose file"
	StepBuildImage      = "build image"
	StepExportImage     = "export image"
	StepUploadFiles     = "upload files"
	StepLoadImage       = "load image"
	StepStopStack       = "stop stack"
	StepStartDatabase   = "start database"
	StepWaitDatabase    = "wait for database"
	StepStartServices   = "start services"
	StepCleanup         = "clean up"
)

type transfer struct {
	local  string
	remote string
}

// Deploy builds the image locally, ships it with the stack files and starts
// the stack. It fails before any side effect when the secrets file is absent.
func (o *Orchestrator) Deploy(ctx context.Context) error {
	ctx = logger.WithOperation(ctx, "deploy")
	o.report.Section("Deploying application")

	secrets := o.cfg.LocalPath(constants.SecretsFile)
	if _, err := os.Stat(secrets); err != nil {
		o.report.Failure(constants.SecretsFile+" file not found",
			"Copy .env.production to .env and fill in the values")
		return domain.NewOpError("deploy", fmt.Errorf("%w: %s: %w", domain.ErrPreconditionFailed, secrets, err))
	}

	report := o.runner.Run(ctx, o.deploySteps())
	if report.Failed() {
		return domain.NewOpError("deploy", report.Err())
	}

	o.report.Success("Deployment complete")
	return nil
}

func (o *Orchestrator) deploySteps() []pipeline.Step {
	cfg := o.cfg
	svc := cfg.Deploy.Services
	archive := cfg.LocalPath(cfg.Deploy.Archive)
	remoteArchive := cfg.RemotePath(cfg.Deploy.Archive)

	transfers := []transfer{
		{archive, remoteArchive},
		{cfg.LocalPath(constants.ComposeProdFile), cfg.RemotePath(constants.RemoteCompose)},
		{cfg.LocalPath(constants.NginxInitConf), cfg.RemotePath(constants.RemoteNginxConf)},
		{cfg.LocalPath(constants.SecretsFile), cfg.RemotePath(constants.SecretsFile)},
	}

	steps := []pipeline.Step{
		{
			Name: StepValidateCompose,
			Run: func(context.Context) error {
				file, err := compose.Load(cfg.LocalPath(constants.ComposeProdFile))
				if err != nil {
					return err
				}
				if err := file.Require(svc.DB, svc.App, svc.Proxy, svc.Certbot); err != nil {
					return err
				}
				o.descriptor = file
				return nil
			},
		},
		{
			Name: StepBuildImage,
			Run: func(ctx context.Context) error {
				return o.local.Run(ctx, cfg.Paths.ProjectDir, "docker", "build", "-t", cfg.Deploy.Image, ".")
			},
		},
		{
			Name: StepExportImage,
			Run: func(ctx context.Context) error {
				return o.local.ExportGzip(ctx, archive, "docker", "save", cfg.Deploy.Image)
			},
		},
		{
			Name: StepUploadFiles,
			Run: func(context.Context) error {
				if err := o.session.MkdirAll(cfg.Paths.RemoteDir); err != nil {
					return err
				}
				for _, t := range transfers {
					if err := o.upload(t.local, t.remote); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Name: StepLoadImage,
			Run:  o.remoteStep("gunzip -c " + ssh.ShellEscape(cfg.Deploy.Archive) + " | docker load"),
		},
		{
			Name:       StepStopStack,
			BestEffort: true,
			Run:        o.remoteStep("docker compose down --remove-orphans || true"),
		},
		{
			Name: StepStartDatabase,
			Run:  o.remoteStep("docker compose up -d " + ssh.ShellEscape(svc.DB)),
		},
		{
			Name: StepWaitDatabase,
			Run:  o.waitForDatabase,
		},
		{
			Name: StepStartServices,
			Run:  o.remoteStep("docker compose up -d"),
		},
		{
			Name:       StepCleanup,
			BestEffort: true,
			Always:     true,
			Run: func(ctx context.Context) error {
				o.report.Info("Cleaning up")
				var errs []error
				if err := os.Remove(archive); err != nil && !errors.Is(err, fs.ErrNotExist) {
					errs = append(errs, err)
				}
				if err := o.remoteStep("rm -f " + ssh.ShellEscape(remoteArchive))(ctx); err != nil {
					errs = append(errs, err)
				}
				return errors.Join(errs...)
			},
		},
	}

	if !o.strict() {
		for i := range steps {
			steps[i].BestEffort = true
		}
	}
	return steps
}
