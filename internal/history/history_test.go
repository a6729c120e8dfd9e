package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func record(i int, at time.Time) Record {
	return Record{
		Timestamp: at,
		Previous:  fmt.Sprintf("p%d", i),
		Next:      fmt.Sprintf("p%d", i+1),
		Cause:     CauseAuto,
		Reason:    "upgrade",
		Summary:   "gpu=85%",
		Status:    StatusOK,
	}
}

func openTest(t *testing.T, cfg Config) Log {
	t.Helper()
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(t.TempDir(), "history.db")
	}
	log, err := Open(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func TestRepositoryAppendRecent(t *testing.T) {
	ctx := context.Background()
	log := openTest(t, Config{})

	mismatch := record(0, t0)
	mismatch.Status = StatusMismatch
	mismatch.Failures = 2
	mismatch.Detail = "cpu3 online, want offline"
	mismatch.Cause = CauseManual

	require.NoError(t, log.Append(ctx, mismatch))
	require.NoError(t, log.Append(ctx, record(1, t0.Add(time.Minute))))
	require.NoError(t, log.Append(ctx, record(2, t0.Add(2*time.Minute))))

	all, err := log.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "p1", all[0].Next)
	assert.Equal(t, StatusMismatch, all[0].Status)
	assert.Equal(t, CauseManual, all[0].Cause)
	assert.Equal(t, 2, all[0].Failures)
	assert.Equal(t, "cpu3 online, want offline", all[0].Detail)
	assert.True(t, all[0].Timestamp.Equal(t0))

	last, err := log.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "p2", last[0].Next)
	assert.Equal(t, "p3", last[1].Next)
}

func TestRepositoryRetentionByCount(t *testing.T) {
	ctx := context.Background()
	log := openTest(t, Config{MaxRecords: 3})

	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append(ctx, record(i, t0.Add(time.Duration(i)*time.Second))))
	}

	all, err := log.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "p2", all[0].Previous)
	assert.Equal(t, "p4", all[2].Previous)
}

func TestRepositoryRetentionByAge(t *testing.T) {
	ctx := context.Background()
	log := openTest(t, Config{MaxAge: time.Hour})

	require.NoError(t, log.Append(ctx, record(0, t0)))
	require.NoError(t, log.Append(ctx, record(1, t0.Add(30*time.Minute))))
	require.NoError(t, log.Append(ctx, record(2, t0.Add(90*time.Minute))))

	all, err := log.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "p1", all[0].Previous)
}

func TestRepositoryRejectsInvalidRecord(t *testing.T) {
	log := openTest(t, Config{})

	err := log.Append(context.Background(), Record{Timestamp: t0, Status: StatusOK})
	assert.True(t, errors.HasCode(err, ErrInvalidRecord))

	rec := record(0, t0)
	rec.Status = "unknown"
	err = log.Append(context.Background(), rec)
	assert.True(t, errors.HasCode(err, ErrInvalidRecord))
}

func TestRepositoryPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "history.db")

	log, err := Open(ctx, Config{DBPath: path}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, log.Append(ctx, record(0, t0)))
	require.NoError(t, log.Close())

	ro, err := Open(ctx, Config{DBPath: path, ReadOnly: true}, logger.Nop())
	require.NoError(t, err)
	defer ro.Close()

	all, err := ro.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, all, 1)

	err = ro.Append(ctx, record(1, t0))
	assert.True(t, errors.HasCode(err, ErrReadOnly))
}

func TestOpenReadOnlyMissing(t *testing.T) {
	_, err := Open(context.Background(), Config{
		DBPath:   filepath.Join(t.TempDir(), "missing.db"),
		ReadOnly: true,
	}, logger.Nop())
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{}, logger.Nop())
	assert.True(t, errors.HasCode(err, ErrInvalidDBPath))
}

func TestSchemaMismatchIsBackedUp(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(ctx, Config{DBPath: path, ReadOnly: true}, logger.Nop())
	assert.True(t, errors.HasCode(err, ErrSchemaMismatch))

	log, err := Open(ctx, Config{DBPath: path}, logger.Nop())
	require.NoError(t, err)
	defer log.Close()

	backups, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Name(), "history_v99_")

	require.NoError(t, log.Append(ctx, record(0, t0)))
}

func TestMemoryLog(t *testing.T) {
	ctx := context.Background()
	log := NewMemory(2, time.Hour)

	require.NoError(t, log.Append(ctx, record(0, t0)))
	require.NoError(t, log.Append(ctx, record(1, t0.Add(time.Minute))))
	require.NoError(t, log.Append(ctx, record(2, t0.Add(2*time.Minute))))

	all, err := log.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "p1", all[0].Previous)

	require.NoError(t, log.Append(ctx, record(3, t0.Add(3*time.Hour))))
	all, err = log.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "p3", all[0].Previous)

	assert.Error(t, log.Append(ctx, Record{}))
	assert.NoError(t, log.Close())
}
