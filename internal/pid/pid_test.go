package pid_test

import (
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "powergov.pid")
	f := pid.New(path)

	require.NoError(t, f.Write())

	got, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), got)

	running, err := f.Running()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), running)

	require.NoError(t, f.Remove())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Removing twice is fine.
	require.NoError(t, f.Remove())
}

func TestWriteOwnPIDIsIdempotent(t *testing.T) {
	f := pid.New(filepath.Join(t.TempDir(), "powergov.pid"))

	require.NoError(t, f.Write())
	require.NoError(t, f.Write())
}

func TestWriteAlreadyRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "powergov.pid")
	// The parent of the test binary is alive for the duration of the test.
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0o600))

	err := pid.New(path).Write()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))
}

func TestWriteReplacesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "powergov.pid")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	f := pid.New(path)
	require.NoError(t, f.Write())

	got, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), got)
}

func TestNotRunning(t *testing.T) {
	f := pid.New(filepath.Join(t.TempDir(), "powergov.pid"))

	_, err := f.Read()
	assert.True(t, errors.HasCode(err, errors.ErrNotRunning))

	err = f.Signal(syscall.SIGTERM)
	assert.True(t, errors.HasCode(err, errors.ErrNotRunning))
}
