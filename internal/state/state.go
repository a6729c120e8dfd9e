// Package state persists the governor's current profile and guards
// transitions with a process-wide lock.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/powergov/internal/errors"
)

// State is the single piece of mutable governor state.
type State struct {
	Profile string    `json:"profile"`
	Since   time.Time `json:"since"`

	// Hysteresis: the candidate lower profile and how long it has been
	// indicated.
	Pending      string    `json:"pending,omitempty"`
	PendingTicks int       `json:"pending_ticks,omitempty"`
	PendingSince time.Time `json:"pending_since"`

	// Deadline is the max-duration cap for the current profile.
	Deadline time.Time `json:"deadline"`

	// HoldUntil suppresses automatic changes, after a manual set or a
	// safety override.
	HoldUntil  time.Time `json:"hold_until"`
	HoldReason string    `json:"hold_reason,omitempty"`

	// Outcome of the last transition.
	Status string `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// ClearPending resets the hysteresis fields.
func (s *State) ClearPending() {
	s.Pending = ""
	s.PendingTicks = 0
	s.PendingSince = time.Time{}
}

// Held reports whether automatic changes are suppressed at now.
func (s State) Held(now time.Time) bool {
	return !s.HoldUntil.IsZero() && now.Before(s.HoldUntil)
}

// Store reads and writes State as a JSON file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted state. A missing file yields
// ErrResourceNotFound, an unreadable or corrupt one ErrLoadState.
func (s *Store) Load() (State, error) {
	var st State

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, errors.New().WithData(errors.ErrResourceNotFound, s.path)
		}
		return st, errors.New().Wrap(errors.ErrLoadState, err)
	}

	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, errors.New().Wrap(errors.ErrLoadState, err)
	}
	if st.Profile == "" {
		return State{}, errors.New().WithData(errors.ErrLoadState, "missing profile")
	}

	return st, nil
}

// Save writes st to a temporary file in the same directory, syncs it and
// renames it over the state file. Readers never see a partial write.
func (s *Store) Save(st State) error {
	errFactory := errors.New()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errFactory.Wrap(errors.ErrPersistState, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errFactory.Wrap(errors.ErrPersistState, err)
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, os.Getpid())
	if err := writeSynced(tmpPath, data); err != nil {
		os.Remove(tmpPath)
		return errFactory.Wrap(errors.ErrPersistState, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return errFactory.Wrap(errors.ErrPersistState, err)
	}

	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
