package state

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/powergov/internal/errors"
	"golang.org/x/sys/unix"
)

const lockPollInterval = 10 * time.Millisecond

// Lock serializes transitions: a semaphore within the process and an
// exclusive flock(2) across processes. An empty path skips the file lock.
type Lock struct {
	path string
	sem  chan struct{}
}

func NewLock(path string) *Lock {
	return &Lock{path: path, sem: make(chan struct{}, 1)}
}

// Acquire waits up to timeout for the lock. On success the returned
// function releases it and is safe to call more than once. A timeout
// yields ErrResourceBusy.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) (func(), error) {
	deadline := time.Now().Add(timeout)

	select {
	case l.sem <- struct{}{}:
	default:
		if timeout <= 0 {
			return nil, errors.New().New(errors.ErrResourceBusy)
		}

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case l.sem <- struct{}{}:
		case <-timer.C:
			return nil, errors.New().New(errors.ErrResourceBusy)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	file, err := l.flock(ctx, deadline)
	if err != nil {
		<-l.sem
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if file != nil {
				_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
				file.Close()
			}
			<-l.sem
		})
	}, nil
}

// TryAcquire does not wait.
func (l *Lock) TryAcquire(ctx context.Context) (func(), error) {
	return l.Acquire(ctx, 0)
}

func (l *Lock) flock(ctx context.Context, deadline time.Time) (*os.File, error) {
	if l.path == "" {
		return nil, nil
	}

	errFactory := errors.New()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	for {
		err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return file, nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EINTR {
			file.Close()
			return nil, errFactory.Wrap(errors.ErrInternal, err)
		}
		if !time.Now().Before(deadline) {
			file.Close()
			return nil, errFactory.New(errors.ErrResourceBusy)
		}

		select {
		case <-time.After(lockPollInterval):
		case <-ctx.Done():
			file.Close()
			return nil, ctx.Err()
		}
	}
}
