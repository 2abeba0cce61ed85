package main

import (
	"github.com/saurabhbilakhia/taxportal/internal/constants"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/logger"
	"github.com/saurabhbilakhia/taxportal/internal/interfaces/cli"
)

func main() {
	logger.Init(logger.ConfigFromEnv(constants.EnvPrefix))

	cli.Execute()
}
