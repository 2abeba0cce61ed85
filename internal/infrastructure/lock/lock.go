package lock

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/saurabhbilakhia/taxportal/internal/constants"
	"github.com/saurabhbilakhia/taxportal/internal/domain"
)

// RunLock is an advisory file lock that keeps two deploy processes from
// driving the same deploy directory at once.
type RunLock struct {
	flock *flock.Flock
}

func New(dir string) *RunLock {
	return &RunLock{flock: flock.New(filepath.Join(dir, constants.LockFileName))}
}

func (l *RunLock) Path() string {
	return l.flock.Path()
}

// Acquire does not block: a held lock fails with domain.ErrDeployLocked.
func (l *RunLock) Acquire() error {
	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring lock %s: %w", l.Path(), err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", domain.ErrDeployLocked, l.Path())
	}
	return nil
}

func (l *RunLock) Release() error {
	return l.flock.Unlock()
}
