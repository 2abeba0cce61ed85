package deployment

import (
	"context"
	"fmt"

	"github.com/saurabhbilakhia/taxportal/internal/domain"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/logger"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/ssh"
)

// Status relays the stack's container list and recent application logs.
// Exit codes are not inspected; only transport errors are returned.
func (o *Orchestrator) Status(ctx context.Context) error {
	ctx = logger.WithOperation(ctx, "status")
	o.report.Section("Checking status")

	commands := []string{
		"docker compose ps",
		fmt.Sprintf("docker compose logs --tail=%d %s", o.cfg.Deploy.LogTail, ssh.ShellEscape(o.cfg.Deploy.Services.App)),
	}
	for _, cmd := range commands {
		if _, err := o.remote(ctx, cmd); err != nil {
			return domain.NewOpError("status", err)
		}
	}
	return nil
}
