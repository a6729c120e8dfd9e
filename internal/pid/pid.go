// Package pid guards against a second daemon instance and lets the CLI
// find the running one.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/powergov/internal/errors"
)

// File is a PID file at a fixed path.
type File struct {
	path string
}

func New(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string {
	return f.path
}

// Write records the current process ID. It fails with ErrAlreadyRunning
// when the file names a live process; a stale file is replaced.
func (f *File) Write() error {
	errFactory := errors.New()

	if pid, err := f.Read(); err == nil {
		if alive(pid) && pid != os.Getpid() {
			return errFactory.WithData(errors.ErrAlreadyRunning, pid)
		}
	} else if !errors.HasCode(err, errors.ErrNotRunning) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	err := os.WriteFile(f.path, []byte(strconv.Itoa(os.Getpid())), 0o644)
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Read returns the recorded process ID. A missing or unparsable file
// yields ErrNotRunning.
func (f *File) Read() (int, error) {
	errFactory := errors.New()

	bytes, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return 0, errFactory.New(errors.ErrNotRunning)
	}
	if err != nil {
		return 0, errFactory.Wrap(errors.ErrInternal, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(bytes)))
	if err != nil || pid <= 0 {
		return 0, errFactory.WithData(errors.ErrNotRunning, "invalid pid file "+f.path)
	}

	return pid, nil
}

// Running returns the ID of the live process named by the file.
func (f *File) Running() (int, error) {
	pid, err := f.Read()
	if err != nil {
		return 0, err
	}
	if !alive(pid) {
		return 0, errors.New().WithData(errors.ErrNotRunning, pid)
	}

	return pid, nil
}

// Signal delivers sig to the running process.
func (f *File) Signal(sig syscall.Signal) error {
	pid, err := f.Running()
	if err != nil {
		return err
	}

	if err := syscall.Kill(pid, sig); err != nil {
		return errors.New().Wrap(errors.ErrOperationFailed, err)
	}

	return nil
}

// Remove removes the PID file.
func (f *File) Remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))

	return err == nil || errors.Is(err, syscall.EPERM)
}
