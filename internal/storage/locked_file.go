package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another handle, in this or another process,
// already owns the file.
var ErrLocked = errors.New("storage: file is locked by another process")

// LockedFile is exclusive ownership of one on-disk file. The lock lives on a
// sidecar "<path>.lock" so the data file itself can be replaced by rename.
type LockedFile struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

func OpenLockedFile(path string) (*LockedFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	fl := flock.New(path + ".lock")
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}
	return &LockedFile{path: path, lock: fl}, nil
}

func (f *LockedFile) Path() string { return f.path }

// Read returns the current content. A missing file yields an error that
// matches os.ErrNotExist.
func (f *LockedFile) Read() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lock == nil {
		return nil, os.ErrClosed
	}
	return os.ReadFile(f.path)
}

func (f *LockedFile) Write(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lock == nil {
		return os.ErrClosed
	}
	return writeAtomic(f.path, data, 0o600)
}

// Close releases the lock. It is safe to call more than once.
func (f *LockedFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lock == nil {
		return nil
	}
	err := f.lock.Unlock()
	f.lock = nil
	return err
}
