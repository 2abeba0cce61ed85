package compose

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/saurabhbilakhia/taxportal/internal/domain"
)

type HealthCheck struct {
	Test    any  `yaml:"test,omitempty"`
	Disable bool `yaml:"disable,omitempty"`
}

type Service struct {
	HealthCheck *HealthCheck `yaml:"healthcheck,omitempty"`
}

// File is the subset of a compose descriptor the deployer inspects before upload.
type File struct {
	Services map[string]Service `yaml:"services"`
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", domain.ErrComposeInvalid, path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrComposeInvalid, err)
	}
	if len(f.Services) == 0 {
		return nil, fmt.Errorf("%w: no services defined", domain.ErrComposeInvalid)
	}
	return &f, nil
}

func (f *File) ServiceNames() []string {
	names := make([]string, 0, len(f.Services))
	for name := range f.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Require fails with domain.ErrComposeInvalid listing every missing service.
func (f *File) Require(services ...string) error {
	var missing []string
	for _, name := range services {
		if _, ok := f.Services[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing services %s (defined: %s)", domain.ErrComposeInvalid,
			strings.Join(missing, ", "), strings.Join(f.ServiceNames(), ", "))
	}
	return nil
}

// HasHealthCheck reports whether service declares an enabled healthcheck,
// so that docker tracks a health status for its container.
func (f *File) HasHealthCheck(service string) bool {
	svc, ok := f.Services[service]
	if !ok || svc.HealthCheck == nil || svc.HealthCheck.Disable {
		return false
	}
	switch test := svc.HealthCheck.Test.(type) {
	case nil:
		return false
	case []any:
		return len(test) > 0 && test[0] != "NONE"
	case string:
		return test != ""
	}
	return true
}
