package store

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// StaleLockThreshold is the age after which a leftover lock file is ignored.
const StaleLockThreshold = 10 * time.Minute

// How long mutators wait for a held lock before giving up with ErrLocked.
// Variables so tests can shorten them.
var (
	lockWaitTimeout   = 5 * time.Second
	lockRetryInterval = 100 * time.Millisecond
)

// ErrLocked is returned when another pvm process holds the registry lock.
var ErrLocked = errors.New("registry is locked: another pvm operation may be in progress")

type lock struct {
	path string
	file *os.File
}

// acquireLock creates the lock file exclusively. A lock older than
// StaleLockThreshold is assumed abandoned and replaced once.
func acquireLock(path string) (*lock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, errors.Wrap(err, "failed to create lock file")
		}
		if !isLockStale(path) || !takeOverStaleLock(path) {
			return nil, ErrLocked
		}
		file, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err != nil {
			return nil, ErrLocked
		}
	}

	data := fmt.Sprintf("pid=%d\ntimestamp=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(data); err != nil {
		file.Close()
		os.Remove(path)
		return nil, errors.Wrap(err, "failed to write lock file")
	}

	return &lock{path: path, file: file}, nil
}

func (l *lock) release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove lock file")
	}
	return nil
}

// waitForLock retries acquireLock while another process holds the lock,
// for at most lockWaitTimeout.
func waitForLock(path string) (*lock, error) {
	deadline := time.Now().Add(lockWaitTimeout)
	for {
		l, err := acquireLock(path)
		if !errors.Is(err, ErrLocked) || time.Now().After(deadline) {
			return l, err
		}
		time.Sleep(lockRetryInterval)
	}
}

// takeOverStaleLock moves a stale lock aside under a unique name before
// deleting it. If the file moved aside turns out to be fresh, another
// process replaced the stale lock in the meantime and it is put back.
func takeOverStaleLock(path string) bool {
	aside := path + ".stale-" + uuid.NewString()
	if err := os.Rename(path, aside); err != nil {
		return false
	}
	if !isLockStale(aside) {
		// Link fails if a new lock already exists at path
		os.Link(aside, path)
		os.Remove(aside)
		return false
	}
	os.Remove(aside)
	return true
}

func isLockStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > StaleLockThreshold
}
