package deployment

import (
	"fmt"
	"strings"

	"github.com/saurabhbilakhia/taxportal/internal/domain"
)

type Operation string

const (
	OpSetup  Operation = "setup"
	OpDeploy Operation = "deploy"
	OpSSL    Operation = "ssl"
	OpStatus Operation = "status"
	OpAll    Operation = "all"
)

type OperationInfo struct {
	Op          Operation
	Description string
}

// Operations lists every operation in menu order.
var Operations = []OperationInfo{
	{OpSetup, "Initial server setup (install Docker, firewall)"},
	{OpDeploy, "Deploy the application"},
	{OpSSL, "Obtain SSL certificate"},
	{OpStatus, "Check deployment status"},
	{OpAll, "Run setup + deploy + ssl"},
}

// ParseOperation matches name case-insensitively.
func ParseOperation(name string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(name)))
	for _, info := range Operations {
		if info.Op == op {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %s", domain.ErrUnknownOp, name)
}
