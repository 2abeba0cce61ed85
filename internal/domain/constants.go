package domain

import "time"

const (
	DefaultSSHPort        = 22
	DefaultConnectTimeout = 30 * time.Second
	DefaultCommandTimeout = 300 * time.Second
)

const (
	DefaultRetryMaxAttempts    = 3
	DefaultRetryInitialDelayMs = 100
	DefaultRetryMaxDelaySec    = 30
	DefaultRetryMultiplier     = 2.0
)

var (
	DefaultRetryInitialDelay = DefaultRetryInitialDelayMs * time.Millisecond
	DefaultRetryMaxDelay     = DefaultRetryMaxDelaySec * time.Second
)

// Database readiness polling after `compose up db`.
const (
	DefaultProbeMaxAttempts  = 20
	DefaultProbeInitialDelay = 1 * time.Second
	DefaultProbeMaxDelay     = 10 * time.Second
	DefaultDBSettleDelay     = 15 * time.Second
	DefaultSSLDelay          = 30 * time.Second
)
