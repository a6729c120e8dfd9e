// Package history keeps the bounded log of committed transitions.
package history

import (
	"context"
	"time"

	"codeberg.org/mutker/powergov/internal/errors"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusMismatch Status = "mismatch"
)

// Cause names what started a transition.
type Cause string

const (
	CauseAuto     Cause = "auto"
	CauseManual   Cause = "manual"
	CauseSafety   Cause = "safety"
	CauseStartup  Cause = "startup"
	CauseShutdown Cause = "shutdown"
)

// Record is one committed transition. Records are never modified.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Previous  string    `json:"previous"`
	Next      string    `json:"next"`
	Cause     Cause     `json:"cause"`
	Reason    string    `json:"reason"`
	// Summary describes the telemetry that led to the transition.
	Summary  string `json:"summary"`
	Status   Status `json:"status"`
	Failures int    `json:"failures"`
	Detail   string `json:"detail,omitempty"`
}

func (r Record) Validate() error {
	if r.Next == "" || r.Timestamp.IsZero() {
		return errors.New().New(ErrInvalidRecord)
	}
	switch r.Status {
	case StatusOK, StatusMismatch:
	default:
		return errors.New().WithData(ErrInvalidRecord, r.Status)
	}
	return nil
}

// Log is an append-only, retention-bounded transition log.
type Log interface {
	Append(ctx context.Context, rec Record) error
	// Recent returns up to n of the newest records, oldest first.
	Recent(ctx context.Context, n int) ([]Record, error)
	Close() error
}

const (
	defaultDirPerm    = 0o755
	defaultMaxRecords = 1000
)

type Config struct {
	DBPath string
	// MaxRecords and MaxAge bound retention; zero disables the bound.
	MaxRecords int
	MaxAge     time.Duration
	ReadOnly   bool
}

func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New().New(ErrInvalidDBPath)
	}
	if c.MaxRecords < 0 || c.MaxAge < 0 {
		return errors.New().WithData(errors.ErrInvalidConfig, "history retention must not be negative")
	}
	return nil
}
