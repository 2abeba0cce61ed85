package environment

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/saurabhbilakhia/taxportal/internal/domain/contract"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/ssh"
)

var (
	dockerVersionRe    = regexp.MustCompile(`Docker version (\d+\.\d+\.\d+)`)
	composeVersionRe   = regexp.MustCompile(`Docker Compose version v?(\d+\.\d+\.\d+)`)
	composeV1VersionRe = regexp.MustCompile(`docker-compose version (\d+\.\d+\.\d+)`)
)

// Checker inspects a provisioned host for the tooling deployments rely on.
type Checker struct {
	runner    contract.SSHRunner
	remoteDir string
}

func NewChecker(runner contract.SSHRunner, remoteDir string) *Checker {
	return &Checker{runner: runner, remoteDir: remoteDir}
}

// CheckAll runs every check. A transport error aborts the run.
func (c *Checker) CheckAll(ctx context.Context) ([]CheckResult, error) {
	checks := []func(context.Context) (CheckResult, error){
		c.CheckDocker,
		c.CheckDockerCompose,
		c.CheckRemoteDir,
		c.CheckFirewall,
	}

	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		r, err := check(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

// run returns stdout and whether the command exited 0.
func (c *Checker) run(ctx context.Context, cmd string) (string, bool, error) {
	result, err := c.runner.Exec(ctx, cmd)
	if err != nil {
		return "", false, err
	}
	return string(result.Stdout), result.Success(), nil
}

func (c *Checker) CheckDocker(ctx context.Context) (CheckResult, error) {
	stdout, ok, err := c.run(ctx, "docker --version 2>/dev/null")
	if err != nil {
		return CheckResult{}, err
	}
	if !ok {
		return CheckResult{Name: "Docker", Status: CheckStatusError, Message: "Not installed"}, nil
	}

	if matches := dockerVersionRe.FindStringSubmatch(stdout); len(matches) > 1 {
		return CheckResult{Name: "Docker", Status: CheckStatusOK, Message: matches[1]}, nil
	}
	return CheckResult{Name: "Docker", Status: CheckStatusOK, Message: strings.TrimSpace(stdout)}, nil
}

// CheckDockerCompose requires the compose plugin; a standalone v1 binary is
// reported as an error because deploy invokes "docker compose".
func (c *Checker) CheckDockerCompose(ctx context.Context) (CheckResult, error) {
	stdout, ok, err := c.run(ctx, "docker compose version 2>/dev/null")
	if err != nil {
		return CheckResult{}, err
	}
	if ok {
		msg := strings.TrimSpace(stdout)
		if matches := composeVersionRe.FindStringSubmatch(stdout); len(matches) > 1 {
			msg = matches[1]
		}
		return CheckResult{Name: "Docker Compose", Status: CheckStatusOK, Message: msg}, nil
	}

	stdout, ok, err = c.run(ctx, "docker-compose --version 2>/dev/null")
	if err != nil {
		return CheckResult{}, err
	}
	if !ok {
		return CheckResult{Name: "Docker Compose", Status: CheckStatusError, Message: "Not installed"}, nil
	}

	msg := "v1 only"
	if matches := composeV1VersionRe.FindStringSubmatch(stdout); len(matches) > 1 {
		msg = matches[1] + " (v1 only)"
	}
	return CheckResult{
		Name:    "Docker Compose",
		Status:  CheckStatusError,
		Message: msg,
		Detail:  "the compose plugin is required",
	}, nil
}

func (c *Checker) CheckRemoteDir(ctx context.Context) (CheckResult, error) {
	_, ok, err := c.run(ctx, "test -d "+ssh.ShellEscape(c.remoteDir)+" && test -w "+ssh.ShellEscape(c.remoteDir))
	if err != nil {
		return CheckResult{}, err
	}
	if !ok {
		return CheckResult{Name: "Remote Directory", Status: CheckStatusError, Message: c.remoteDir + " missing or not writable"}, nil
	}
	return CheckResult{Name: "Remote Directory", Status: CheckStatusOK, Message: c.remoteDir}, nil
}

func (c *Checker) CheckFirewall(ctx context.Context) (CheckResult, error) {
	stdout, ok, err := c.run(ctx, "ufw status 2>/dev/null | head -n 1")
	if err != nil {
		return CheckResult{}, err
	}
	status := strings.TrimSpace(stdout)
	if ok && strings.EqualFold(status, "Status: active") {
		return CheckResult{Name: "Firewall", Status: CheckStatusOK, Message: "active"}, nil
	}
	if status == "" {
		status = "ufw not available"
	}
	return CheckResult{Name: "Firewall", Status: CheckStatusWarning, Message: status}, nil
}

func FormatResults(host string, results []CheckResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] Environment Check\n", host))

	for _, r := range results {
		icon := "✅"
		switch r.Status {
		case CheckStatusWarning:
			icon = "⚠️"
		case CheckStatusError:
			icon = "❌"
		}

		sb.WriteString(fmt.Sprintf("  %-20s %s %s", r.Name+":", icon, r.Message))
		if r.Detail != "" {
			sb.WriteString(" (" + r.Detail + ")")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
