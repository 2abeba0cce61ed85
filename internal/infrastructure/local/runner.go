package local

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/saurabhbilakhia/taxportal/internal/constants"
	"github.com/saurabhbilakhia/taxportal/internal/domain"
	"github.com/saurabhbilakhia/taxportal/internal/infrastructure/logger"
)

// Runner executes build tooling on the operator's machine.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
}

func NewRunner(stdout, stderr io.Writer) *Runner {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return &Runner{Stdout: stdout, Stderr: stderr}
}

// Run executes name with args in dir, streaming its output to the runner's writers.
func (r *Runner) Run(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	logger.FromContext(ctx).Debug("running local command", "dir", dir, "cmd", cmdline(name, args))
	return wrapExit(name, args, cmd.Run())
}

// ExportGzip runs name with args and writes its stdout gzip-compressed to dest.
// dest is removed when the command fails.
func (r *Runner) ExportGzip(ctx context.Context, dest, name string, args ...string) (err error) {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, constants.FilePermissionOwnerRW)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", domain.ErrLocalCommandFailed, dest, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close %s: %w", domain.ErrLocalCommandFailed, dest, cerr)
		}
		if err != nil {
			os.Remove(dest)
		}
	}()

	gz := gzip.NewWriter(f)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = gz
	cmd.Stderr = r.Stderr

	logger.FromContext(ctx).Debug("exporting local command output", "dest", dest, "cmd", cmdline(name, args))
	if err := wrapExit(name, args, cmd.Run()); err != nil {
		gz.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("%w: compress %s: %w", domain.ErrLocalCommandFailed, dest, err)
	}
	return nil
}

func wrapExit(name string, args []string, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: %s exited with code %d", domain.ErrLocalCommandFailed, cmdline(name, args), exitErr.ExitCode())
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrLocalCommandFailed, cmdline(name, args), err)
}

func cmdline(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}
