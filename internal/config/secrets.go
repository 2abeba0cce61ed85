package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/saurabhbilakhia/taxportal/internal/domain"
)

const (
	secretEnvPrefix  = "env:"
	secretFilePrefix = "file:"
)

// ResolveSecret expands a credential reference. "env:NAME" reads an
// environment variable, "file:PATH" reads a file (trailing newline trimmed),
// anything else is taken literally.
func ResolveSecret(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, secretEnvPrefix):
		name := strings.TrimPrefix(ref, secretEnvPrefix)
		val, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("%w: environment variable %s is not set", domain.ErrConfigInvalid, name)
		}
		return val, nil
	case strings.HasPrefix(ref, secretFilePrefix):
		path := strings.TrimPrefix(ref, secretFilePrefix)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%w: reading secret file %s: %w", domain.ErrConfigInvalid, path, err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	default:
		return ref, nil
	}
}

func (c *Config) resolveSecrets() error {
	password, err := ResolveSecret(c.SSH.Password)
	if err != nil {
		return fmt.Errorf("ssh.password: %w", err)
	}
	c.SSH.Password = password

	passphrase, err := ResolveSecret(c.SSH.Passphrase)
	if err != nil {
		return fmt.Errorf("ssh.passphrase: %w", err)
	}
	c.SSH.Passphrase = passphrase

	return nil
}
