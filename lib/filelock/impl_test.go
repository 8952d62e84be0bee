package filelock

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	locker := New(filepath.Join(t.TempDir(), "test.lock"))

	if err := locker.Acquire(time.Second); err != nil {
		t.Fatalf("failed to acquire free lock: %v", err)
	}
	if err := locker.Release(); err != nil {
		t.Fatalf("failed to release lock: %v", err)
	}

	// the lock must be acquirable again after release
	if err := locker.Acquire(time.Second); err != nil {
		t.Fatalf("failed to re-acquire lock: %v", err)
	}
	if err := locker.Release(); err != nil {
		t.Fatalf("failed to release lock: %v", err)
	}
}

func TestAcquireTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	holder := New(path)
	if err := holder.Acquire(time.Second); err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	defer holder.Release()

	// a second locker on the same path must time out, not hang
	contender := New(path)
	start := time.Now()
	err := contender.Acquire(200 * time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error for held lock")
	}
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("acquire returned before the timeout: %v", elapsed)
	}
}

func TestAcquireAfterHolderReleases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	holder := New(path)
	if err := holder.Acquire(time.Second); err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = holder.Release()
	}()

	// the contender polls, so it must win once the holder lets go
	contender := New(path)
	if err := contender.Acquire(2 * time.Second); err != nil {
		t.Fatalf("failed to acquire lock after release: %v", err)
	}
	_ = contender.Release()
}

func TestReleaseWithoutAcquire(t *testing.T) {
	locker := New(filepath.Join(t.TempDir(), "test.lock"))
	if err := locker.Release(); err != nil {
		t.Errorf("release of an unheld lock should be a no-op, got %v", err)
	}
}

func TestPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	if got := New(path).Path(); got != path {
		t.Errorf("expected path %q, got %q", path, got)
	}
}
