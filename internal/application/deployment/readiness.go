package deployment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/saurabhbilakhia/taxportal/internal/config"
	"github.com/saurabhbilakhia/taxportal/internal/constants"
	"github.com/saurabhbilakhia/taxportal/internal/domain"
	"github.com/saurabhbilakhia/taxportal/internal/domain/retry"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/logger"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/ssh"
)

// dbCheck is the remote command polled until the database is up.
type dbCheck struct {
	cmd string
	// the command prints the compose health status instead of exiting nonzero
	health bool
}

func (c dbCheck) verify(result *domain.CommandResult) error {
	if err := result.Err(); err != nil {
		return err
	}
	if !c.health {
		return nil
	}
	if status := strings.TrimSpace(string(result.Stdout)); status != constants.HealthStatusHealthy {
		return fmt.Errorf("health status %q", status)
	}
	return nil
}

func (o *Orchestrator) waitForDatabase(ctx context.Context) error {
	d := o.cfg.Deploy
	o.report.Info("Waiting for database to be ready")

	if d.DBWait == config.DBWaitSleep {
		return o.sleep(ctx, d.DBSettleDelay)
	}

	check := o.readinessCheck()
	log := logger.FromContext(ctx).With("service", d.Services.DB, "health", check.health)
	err := retry.Do(ctx, func() error {
		result, err := o.session.Exec(ctx, check.cmd)
		if err != nil {
			return retry.Permanent(err)
		}
		return check.verify(result)
	},
		retry.WithMaxAttempts(d.ProbeAttempts),
		retry.WithInitialDelay(d.ProbeInitialDelay),
		retry.WithMaxDelay(d.ProbeMaxDelay),
		retry.WithMultiplier(domain.DefaultRetryMultiplier),
		retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
			log.Debug("database not ready", "attempt", attempt, "next_delay", delay, "error", err)
		}),
	)
	if err == nil {
		return nil
	}
	if errors.Is(err, retry.ErrMaxAttemptsExceeded) {
		return fmt.Errorf("%w: %s after %d attempts: %w", domain.ErrServiceNotReady, d.Services.DB, d.ProbeAttempts, err)
	}
	return err
}

// readinessCheck prefers an explicit deploy.db_probe, then the service's compose
// healthcheck, then pg_isready inside the service.
func (o *Orchestrator) readinessCheck() dbCheck {
	d := o.cfg.Deploy
	service := ssh.ShellEscape(d.Services.DB)

	var check dbCheck
	switch {
	case d.DBProbe != "":
		check.cmd = d.DBProbe
	case o.descriptor != nil && o.descriptor.HasHealthCheck(d.Services.DB):
		check.cmd = fmt.Sprintf(constants.DBHealthProbeFormat, service)
		check.health = true
	default:
		check.cmd = fmt.Sprintf(constants.DBReadyProbeFormat, service)
	}
	check.cmd = ssh.InDir(o.cfg.Paths.RemoteDir, check.cmd)
	return check
}
