package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/powergov/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "state.json")
	store := NewStore(path)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	want := State{
		Profile:      "performance",
		Since:        now,
		Pending:      "balanced",
		PendingTicks: 3,
		PendingSince: now.Add(time.Minute),
		Deadline:     now.Add(4 * time.Hour),
		Status:       "ok",
	}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want.Profile, got.Profile)
	assert.True(t, want.Since.Equal(got.Since))
	assert.True(t, want.Deadline.Equal(got.Deadline))
	assert.Equal(t, 3, got.PendingTicks)

	// no temporary files are left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStoreLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewStore(filepath.Join(dir, "missing.json")).Load()
	assert.True(t, errors.HasCode(err, errors.ErrResourceNotFound))

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte(`{"profile": "perf`), 0o644))
	_, err = NewStore(corrupt).Load()
	assert.True(t, errors.HasCode(err, errors.ErrLoadState))

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{}`), 0o644))
	_, err = NewStore(empty).Load()
	assert.True(t, errors.HasCode(err, errors.ErrLoadState))
}

func TestStoreSaveFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	// parent of the state file is a regular file
	err := NewStore(filepath.Join(blocker, "state.json")).Save(State{Profile: "x"})
	assert.True(t, errors.HasCode(err, errors.ErrPersistState))
}

func TestStateHelpers(t *testing.T) {
	now := time.Now()
	st := State{Pending: "a", PendingTicks: 2, PendingSince: now, HoldUntil: now.Add(time.Minute)}

	assert.True(t, st.Held(now))
	assert.False(t, st.Held(now.Add(time.Minute)))
	assert.False(t, State{}.Held(now))

	st.ClearPending()
	assert.Empty(t, st.Pending)
	assert.Zero(t, st.PendingTicks)
	assert.True(t, st.PendingSince.IsZero())
}

func TestLockInProcess(t *testing.T) {
	lock := NewLock("")
	ctx := context.Background()

	release, err := lock.Acquire(ctx, time.Second)
	require.NoError(t, err)

	_, err = lock.TryAcquire(ctx)
	assert.True(t, errors.HasCode(err, errors.ErrResourceBusy))

	start := time.Now()
	_, err = lock.Acquire(ctx, 30*time.Millisecond)
	assert.True(t, errors.HasCode(err, errors.ErrResourceBusy))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	release()
	release()

	release, err = lock.TryAcquire(ctx)
	require.NoError(t, err)
	release()
}

func TestLockWaitsForRelease(t *testing.T) {
	lock := NewLock("")
	ctx := context.Background()

	release, err := lock.Acquire(ctx, time.Second)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()

	second, err := lock.Acquire(ctx, 2*time.Second)
	require.NoError(t, err)
	second()
}

func TestLockAcrossFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "powergov.lock")
	ctx := context.Background()

	// separate Lock values open separate file descriptions, like
	// separate processes
	daemon := NewLock(path)
	cli := NewLock(path)

	release, err := daemon.Acquire(ctx, time.Second)
	require.NoError(t, err)

	_, err = cli.Acquire(ctx, 30*time.Millisecond)
	assert.True(t, errors.HasCode(err, errors.ErrResourceBusy))

	release()

	release, err = cli.Acquire(ctx, time.Second)
	require.NoError(t, err)
	release()
}

func TestLockContextCancel(t *testing.T) {
	lock := NewLock("")
	release, err := lock.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = lock.Acquire(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
