package ipc

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// OwnerLockPath is the companion file a running server keeps locked for as
// long as it owns socketPath. It holds the owner's pid.
func OwnerLockPath(socketPath string) string {
	return socketPath + ".lock"
}

const (
	ownerLockAttempts = 5
	ownerLockBackoff  = 10 * time.Millisecond
)

type ownerLock struct {
	path string
	file *os.File
}

// acquireOwner takes the exclusive owner lock for socketPath. A lock held by
// another process yields ErrAlreadyRunning.
func acquireOwner(socketPath string) (*ownerLock, error) {
	path := OwnerLockPath(socketPath)
	for attempt := 1; ; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return nil, newError(KindCreation, fmt.Sprintf("open owner lock %s", path), err)
		}

		locked, err := tryLock(f, true)
		if err != nil {
			_ = f.Close()
			return nil, newError(KindCreation, fmt.Sprintf("lock %s", path), err)
		}
		if locked && sameFile(f, path) {
			if err := writePID(f); err != nil {
				_ = f.Close()
				return nil, newError(KindCreation, fmt.Sprintf("write owner lock %s", path), err)
			}
			return &ownerLock{path: path, file: f}, nil
		}
		_ = f.Close()

		// Either a live owner, a liveness check holding a shared lock for a
		// moment, or a lock file unlinked by an owner that just exited.
		if attempt == ownerLockAttempts {
			return nil, fmt.Errorf("%w: %s is locked", ErrAlreadyRunning, path)
		}
		time.Sleep(ownerLockBackoff)
	}
}

// release unlinks the lock file while still holding it, then drops the lock.
func (o *ownerLock) release() error {
	var err error
	if removeErr := os.Remove(o.path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		err = fmt.Errorf("remove owner lock %s: %w", o.path, removeErr)
	}
	return errors.Join(err, o.file.Close())
}

// ownerAlive reports whether a running server holds the owner lock for
// socketPath. It never touches the socket itself.
func ownerAlive(socketPath string) (bool, error) {
	f, err := os.Open(OwnerLockPath(socketPath))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	free, err := tryLock(f, false)
	if err != nil {
		return false, err
	}
	return !free, nil
}

func sameFile(f *os.File, path string) bool {
	open, err := f.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(open, onDisk)
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	return err
}
