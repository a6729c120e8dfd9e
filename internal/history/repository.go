package history

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// repository stores records in sqlite. The daemon and CLI invocations
// may write concurrently; sqlite's busy timeout serializes them.
type repository struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
}

// Open opens or creates the history database. A read-only log never
// migrates and fails with ErrSchemaMismatch on an unexpected version.
func Open(ctx context.Context, cfg Config, log logger.Logger) (Log, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	if cfg.ReadOnly {
		if _, err := os.Stat(cfg.DBPath); err != nil {
			return nil, errFactory.Wrap(ErrStorageInit, err)
		}
		params.Set("mode", "ro")
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
			return nil, errFactory.WithData(ErrStorageInit, struct {
				Phase string
				Path  string
				Error string
			}{
				Phase: "create_directory",
				Path:  cfg.DBPath,
				Error: err.Error(),
			})
		}
		params.Set("_journal", "WAL")
		params.Set("_auto_vacuum", "2")
	}

	db, err := sql.Open("sqlite3", "file:"+cfg.DBPath+"?"+params.Encode())
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if cfg.ReadOnly {
		version, err := GetSchemaVersion(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		if version != SchemaVersion {
			db.Close()
			return nil, errFactory.WithData(ErrSchemaMismatch, version)
		}
	} else if err := ValidateAndUpdateSchema(ctx, db, cfg.DBPath, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Debug().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("max_records", cfg.MaxRecords).
		Dur("max_age", cfg.MaxAge).
		Bool("read_only", cfg.ReadOnly).
		Msg("History repository opened")

	return &repository{db: db, logger: log, cfg: cfg}, nil
}

// Append inserts rec and applies retention in the same transaction, so a
// prune never leaves a half-written log.
func (r *repository) Append(ctx context.Context, rec Record) error {
	errFactory := errors.New()

	if r.cfg.ReadOnly {
		return errFactory.New(ErrReadOnly)
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, insertTransitionSQL,
		rec.Timestamp.UnixNano(),
		rec.Previous,
		rec.Next,
		string(rec.Cause),
		rec.Reason,
		rec.Summary,
		string(rec.Status),
		int64(rec.Failures),
		rec.Detail,
	); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	if r.cfg.MaxAge > 0 {
		cutoff := rec.Timestamp.Add(-r.cfg.MaxAge).UnixNano()
		if _, err := tx.ExecContext(ctx, pruneByAgeSQL, cutoff); err != nil {
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}
	if r.cfg.MaxRecords > 0 {
		if _, err := tx.ExecContext(ctx, pruneByCountSQL, r.cfg.MaxRecords); err != nil {
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	r.logger.Debug().
		Str("previous", rec.Previous).
		Str("next", rec.Next).
		Str("status", string(rec.Status)).
		Msg("Recorded transition")

	return nil
}

func (r *repository) Recent(ctx context.Context, n int) ([]Record, error) {
	errFactory := errors.New()

	if n <= 0 {
		n = defaultMaxRecords
	}

	rows, err := r.db.QueryContext(ctx, selectRecentSQL, n)
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec      Record
			ts       int64
			cause    string
			status   string
			failures int64
		)
		if err := rows.Scan(&ts, &rec.Previous, &rec.Next, &cause, &rec.Reason,
			&rec.Summary, &status, &failures, &rec.Detail); err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		rec.Timestamp = time.Unix(0, ts)
		rec.Cause = Cause(cause)
		rec.Status = Status(status)
		rec.Failures = int(failures)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	// newest first from the query
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	return records, nil
}

func (r *repository) Close() error {
	if !r.cfg.ReadOnly {
		if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to checkpoint history WAL")
		}
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	return nil
}
