// Package security holds the boundary checks for destination paths and the
// file primitives the striker uses to own a substrate exclusively.
package security

import (
	"errors"
	"fmt"
	"os"
)

// File permission constants
const (
	// PermSubstrate is the default mode for struck artifacts.
	PermSubstrate os.FileMode = 0644

	// PermPublicDir is the mode for directories created for artifacts.
	PermPublicDir os.FileMode = 0755
)

// ErrLockFailed is returned when an exclusive lock cannot be taken.
var ErrLockFailed = errors.New("security: exclusive lock failed")

// CreateExclusive creates path for writing, failing if it already exists,
// and takes an exclusive lock on it when lock is set. The caller owns the
// returned handle and must UnlockFile (if locked) and Close it.
func CreateExclusive(path string, perm os.FileMode, lock bool) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return nil, err
	}
	if lock {
		if err := LockFile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %v", ErrLockFailed, err)
		}
	}
	return f, nil
}

// LockFile attempts to acquire an exclusive lock on a file.
func LockFile(f *os.File) error {
	return lockFile(f)
}

// UnlockFile releases the exclusive lock on a file.
func UnlockFile(f *os.File) error {
	return unlockFile(f)
}
