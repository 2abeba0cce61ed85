package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRequired      = errors.New("required field missing")
	ErrConfigInvalid = errors.New("invalid configuration")
	ErrUnknownOp     = errors.New("unknown command")

	ErrSSHConnectFailed   = errors.New("SSH connection failed")
	ErrSSHAuthFailed      = errors.New("SSH authentication failed")
	ErrSSHSessionFailed   = errors.New("SSH session creation failed")
	ErrSSHHostKeyMismatch = errors.New("SSH host key mismatch")
	ErrSSHHostKeyUnknown  = errors.New("SSH host key unknown")
	ErrSSHFileTransfer    = errors.New("SSH file transfer failed")

	ErrCommandFailed      = errors.New("remote command failed")
	ErrCommandTimeout     = errors.New("remote command timed out")
	ErrLocalCommandFailed = errors.New("local command failed")

	ErrPreconditionFailed = errors.New("precondition failed")
	ErrDeployLocked       = errors.New("another deployment holds the lock")
	ErrComposeInvalid     = errors.New("compose descriptor invalid")
	ErrServiceNotReady    = errors.New("service not ready")
	ErrHostCheckFailed    = errors.New("host environment check failed")

	ErrCertObtainFailed = errors.New("certificate obtain failed")
)

func RequiredField(field string) error {
	return fmt.Errorf("%w: %s", ErrRequired, field)
}

type OpError struct {
	Op    string
	Cause error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *OpError) Unwrap() error {
	return e.Cause
}

func NewOpError(op string, cause error) error {
	return &OpError{Op: op, Cause: cause}
}

// CommandError reports a command that ran to completion with a nonzero exit code.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%q exited with code %d: %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%q exited with code %d", e.Command, e.ExitCode)
}

func (e *CommandError) Unwrap() error {
	return ErrCommandFailed
}

func NewCommandError(command string, exitCode int, stderr string) error {
	return &CommandError{Command: command, ExitCode: exitCode, Stderr: stderr}
}
