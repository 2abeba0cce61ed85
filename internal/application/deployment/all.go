package deployment

import (
	"context"
	"fmt"

	"github.com/saurabhbilakhia/taxportal/internal/domain"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/logger"
)

// All runs setup and deploy, then obtains a certificate once deploy succeeded.
func (o *Orchestrator) All(ctx context.Context) error {
	if err := o.Setup(ctx); err != nil {
		return err
	}
	if err := o.Deploy(ctx); err != nil {
		return err
	}

	delay := o.cfg.Deploy.SSLDelay
	o.report.Info(fmt.Sprintf("Waiting %s before obtaining SSL certificate", delay))
	if err := o.sleep(ctx, delay); err != nil {
		return domain.NewOpError("all", err)
	}
	return o.ObtainCertificate(ctx)
}

// Run dispatches one named operation.
func (o *Orchestrator) Run(ctx context.Context, op Operation) error {
	ctx = logger.WithRun(ctx)
	switch op {
	case OpSetup:
		return o.Setup(ctx)
	case OpDeploy:
		return o.Deploy(ctx)
	case OpSSL:
		return o.ObtainCertificate(ctx)
	case OpStatus:
		return o.Status(ctx)
	case OpAll:
		return o.All(ctx)
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownOp, op)
	}
}
