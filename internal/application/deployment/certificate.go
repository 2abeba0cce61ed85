package deployment

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/saurabhbilakhia/taxportal/internal/constants"
	"github.com/saurabhbilakhia/taxportal/internal/domain"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/logger"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/ssh"
)

var certificateHints = []string{
	"Ensure DNS is pointing to the server",
	"Wait for DNS propagation",
	"Try again later",
}

// ExtractDomain returns the value of the first line of the dotenv file at
// path that starts with DOMAIN=, or fallback when no line matches.
func ExtractDomain(path, fallback string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("reading domain from %s: %w", path, err)
	}
	defer f.Close()

	// No line length limit.
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if strings.HasPrefix(line, constants.DomainKeyPrefix) {
			_, value, _ := strings.Cut(strings.TrimSpace(line), "=")
			if value == "" {
				return fallback, nil
			}
			return value, nil
		}
		if errors.Is(err, io.EOF) {
			return fallback, nil
		}
		if err != nil {
			return "", fmt.Errorf("reading domain from %s: %w", path, err)
		}
	}
}

func (o *Orchestrator) certbotCommand(domainName string) string {
	var b strings.Builder
	b.WriteString("docker compose run --rm ")
	b.WriteString(ssh.ShellEscape(o.cfg.Deploy.Services.Certbot))
	b.WriteString(" certonly --webroot -w ")
	b.WriteString(constants.CertbotWebroot)
	b.WriteString(" -d ")
	b.WriteString(ssh.ShellEscape(domainName))
	b.WriteString(" --email ")
	b.WriteString(ssh.ShellEscape(o.cfg.Cert.Email))
	b.WriteString(" --agree-tos --no-eff-email --non-interactive")
	if o.cfg.Cert.Staging {
		b.WriteString(" --staging")
	}
	return b.String()
}

// ObtainCertificate requests a certificate for the configured domain and,
// on success, switches the proxy to its TLS configuration.
func (o *Orchestrator) ObtainCertificate(ctx context.Context) error {
	ctx = logger.WithOperation(ctx, "ssl")
	o.report.Section("Obtaining SSL certificate")

	domainName, err := ExtractDomain(o.cfg.LocalPath(constants.SecretsFile), o.cfg.Cert.DefaultDomain)
	if err != nil {
		return domain.NewOpError("ssl", err)
	}
	o.report.Info("Obtaining certificate for: " + domainName)

	result, err := o.remote(ctx, o.certbotCommand(domainName))
	if err != nil {
		return domain.NewOpError("ssl", err)
	}
	if !result.Success() {
		o.report.Failure("Failed to obtain SSL certificate. You may need to:", certificateHints...)
		return domain.NewOpError("ssl", fmt.Errorf("%w for %s: %w", domain.ErrCertObtainFailed, domainName, result.Err()))
	}
	o.report.Success("SSL certificate obtained")

	if err := o.upload(o.cfg.LocalPath(constants.NginxSSLConf), o.cfg.RemotePath(constants.RemoteNginxConf)); err != nil {
		return domain.NewOpError("ssl", err)
	}
	result, err = o.remote(ctx, "docker compose restart "+ssh.ShellEscape(o.cfg.Deploy.Services.Proxy))
	if err != nil {
		return domain.NewOpError("ssl", err)
	}
	if err := result.Err(); err != nil {
		return domain.NewOpError("ssl", err)
	}

	o.report.Success("Nginx restarted with SSL")
	return nil
}
