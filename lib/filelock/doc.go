// Package filelock implements advisory file locking for coordinating
// access to a shared file across multiple processes. It provides a simple
// interface over the platform lock primitives (flock on Unix, LockFileEx
// on Windows) with bounded acquisition.
//
// Core Functionality:
//   - Exclusive lock acquisition with a configurable timeout
//   - Safe release operations
//   - One locker instance per guarded path
//
// Implementation Approach:
//
//	Locks are advisory: they are honored only by processes that also take
//	the lock, the filesystem does not enforce them against arbitrary
//	writers. Acquisition polls the lock at a short interval until either
//	the lock is taken or the timeout deadline passes, in which case the
//	caller receives ErrLockTimeout instead of blocking indefinitely.
//
//	The lock file is created on first acquisition and never removed.
//	Removing it on release would race with a competing process that still
//	holds the file open and would silently split the lock in two.
//
// Thread Safety:
//
//	A locker instance serializes nothing by itself. It is intended to be
//	driven by one goroutine at a time; the store engine guarantees this by
//	only touching its locker inside its own critical section.
//
// Usage Example:
//
//	locker := filelock.New("/var/data/skv.json.lock")
//
//	if err := locker.Acquire(10 * time.Second); err != nil {
//	    // Handle timeout or I/O error
//	}
//	defer locker.Release()
//
//	// Work with the guarded file
package filelock
