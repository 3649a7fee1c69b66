package shmclock

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// bookkeepingLock serializes attach and detach calls between the
// controller and workers. It guards only that bookkeeping, never the
// clock fields, and is never held across a polling loop.
type bookkeepingLock struct {
	f *os.File
}

func lockPath(key int) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("ossim-shmclock-%x.lock", key))
}

func acquireBookkeepingLock(key int) (*bookkeepingLock, error) {
	f, err := os.OpenFile(lockPath(key), os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return nil, fmt.Errorf("shmclock: open bookkeeping lock: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("shmclock: acquire bookkeeping lock: %w", err)
	}

	return &bookkeepingLock{f: f}, nil
}

func (l *bookkeepingLock) release() {
	// Closing the descriptor drops the flock even if the explicit
	// unlock fails.
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	_ = l.f.Close()
}
