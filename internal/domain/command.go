package domain

import (
	"strings"
	"time"
)

// CommandResult is the outcome of one remote command that ran to completion.
type CommandResult struct {
	Command  string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

func (r *CommandResult) Success() bool {
	return r.ExitCode == 0
}

// Err returns a *CommandError for a nonzero exit, nil otherwise.
func (r *CommandResult) Err() error {
	if r.Success() {
		return nil
	}
	return NewCommandError(r.Command, r.ExitCode, strings.TrimSpace(string(r.Stderr)))
}
