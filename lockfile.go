// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

package wrappe

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lockfile is the advisory cross-process lock scoped to one unpack
// directory. It serializes concurrent unpackers of the same package and
// of unrelated packages sharing the unpack directory name.
type Lockfile struct {
	lock *flock.Flock
}

// AcquireLock blocks until the unpack directory lockfile is held.
func AcquireLock(dir string) (*Lockfile, error) {
	lock := flock.New(filepath.Join(dir, LockFile))
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock %s: %w", lock.Path(), err)
	}

	return &Lockfile{lock: lock}, nil
}

// TryAcquireLock attempts a non-blocking acquisition. A held lock
// returns ErrLockHeld so callers can exit with a clean notice.
func TryAcquireLock(dir string) (*Lockfile, error) {
	lock := flock.New(filepath.Join(dir, LockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lock.Path(), err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return &Lockfile{lock: lock}, nil
}

// Release drops the lock. Safe to call on a nil lockfile.
func (l *Lockfile) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}

	return l.lock.Unlock()
}
