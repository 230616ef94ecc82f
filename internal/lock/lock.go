package lock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/gofrs/flock"
)

var (
	// ErrAlreadyLocked reports that another instance owns the marker.
	ErrAlreadyLocked = errors.New("already locked")
	// ErrNotLocked reports a release without a marker held by this instance.
	ErrNotLocked = errors.New("not locked")
)

// Lock is the single-instance marker. Existence of the file means "locked";
// the flock taken on it makes concurrent Acquire calls from separate
// processes race-free.
type Lock struct {
	path string

	mu    sync.Mutex
	flock *flock.Flock
}

// New returns a Lock for the marker at path. Nothing touches the filesystem
// until Acquire.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the marker file location.
func (l *Lock) Path() string {
	return l.path
}

// IsLocked reports whether the marker exists, regardless of owner.
func (l *Lock) IsLocked() (bool, error) {
	_, err := os.Stat(l.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat lock: %w", err)
}

// Held reports whether this instance owns the marker.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flock != nil
}

// Acquire creates the marker. It fails with ErrAlreadyLocked when a marker
// already exists or another process wins the race to create it. Callers must
// defer Release on every exit path.
func (l *Lock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.flock != nil {
		return fmt.Errorf("%w: %s is held by this process", ErrAlreadyLocked, l.path)
	}
	locked, err := l.IsLocked()
	if err != nil {
		return err
	}
	if locked {
		return fmt.Errorf("%w: %s", ErrAlreadyLocked, l.path)
	}

	fl := flock.New(l.path)
	ok, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAlreadyLocked, l.path)
	}
	if err := os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		_ = fl.Unlock()
		_ = os.Remove(l.path)
		return fmt.Errorf("write lock marker: %w", err)
	}
	l.flock = fl
	return nil
}

// Release removes the marker. It fails with ErrNotLocked when no marker
// exists or the marker belongs to another instance.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	locked, err := l.IsLocked()
	if err != nil {
		return err
	}
	if !locked {
		l.dropFlock()
		return fmt.Errorf("%w: %s does not exist", ErrNotLocked, l.path)
	}
	if l.flock == nil {
		return fmt.Errorf("%w: %s is owned by another instance", ErrNotLocked, l.path)
	}

	removeErr := os.Remove(l.path)
	l.dropFlock()
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		return fmt.Errorf("remove lock marker: %w", removeErr)
	}
	return nil
}

// IsStale reports whether a marker exists but no live process holds its
// flock, which happens when a previous instance was killed before it could
// release.
func (l *Lock) IsStale() (bool, error) {
	locked, err := l.IsLocked()
	if err != nil || !locked {
		return false, err
	}
	if l.Held() {
		return false, nil
	}
	other := flock.New(l.path)
	ok, err := other.TryRLock()
	if err != nil {
		return false, fmt.Errorf("test lock: %w", err)
	}
	if !ok {
		return false, nil
	}
	_ = other.Unlock()
	return true, nil
}

func (l *Lock) dropFlock() {
	if l.flock == nil {
		return
	}
	_ = l.flock.Unlock()
	l.flock = nil
}
