package filelock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned (wrapped) by Acquire when the lock could not
// be taken within the configured timeout.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// retryInterval is the poll interval during acquisition. The underlying
// syscall has no native wait-with-timeout, so Acquire retries until the
// deadline passes.
const retryInterval = 50 * time.Millisecond

type flockLocker struct {
	fl *flock.Flock
}

// New creates an advisory locker for the given path. The lock file is
// created on first acquisition and intentionally never removed: deleting
// it would race with a competing process that already holds it open.
func New(path string) ILocker {
	return &flockLocker{
		fl: flock.New(path),
	}
}

func (l *flockLocker) Acquire(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ok, err := l.fl.TryLockContext(ctx, retryInterval)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("acquire lock %s: %w", l.fl.Path(), err)
	}
	if !ok {
		return fmt.Errorf("lock %s: %w after %v", l.fl.Path(), ErrLockTimeout, timeout)
	}
	return nil
}

func (l *flockLocker) Release() error {
	return l.fl.Unlock()
}

func (l *flockLocker) Path() string {
	return l.fl.Path()
}
