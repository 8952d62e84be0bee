package filelock

import "time"

// ILocker defines the interface for an advisory lock bound to one
// filesystem path.
type ILocker interface {
	// Acquire takes the lock, waiting up to timeout for a competing holder
	// to release it. Returns ErrLockTimeout (wrapped) when the lock could
	// not be taken within the timeout.
	Acquire(timeout time.Duration) error

	// Release drops the lock. Releasing a lock that is not held is a no-op.
	Release() error

	// Path returns the path of the lock file.
	Path() string
}
