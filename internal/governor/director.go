// Package governor owns the governor state and drives transitions between
// profiles, either from the control loop or from manual commands.
package governor

import (
	"context"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/powergov/internal/actuator"
	"codeberg.org/mutker/powergov/internal/clock"
	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/history"
	"codeberg.org/mutker/powergov/internal/logger"
	"codeberg.org/mutker/powergov/internal/profile"
	"codeberg.org/mutker/powergov/internal/state"
)

const (
	defaultLockTimeout        = 2 * time.Second
	defaultMaxPersistFailures = 2
)

// DirectorConfig holds the Director's tunables.
type DirectorConfig struct {
	// MaxDuration caps the time spent in any non-default profile unless
	// the profile sets its own cap. Zero is unlimited.
	MaxDuration        time.Duration
	LockTimeout        time.Duration
	MaxPersistFailures int
}

// Director owns GovernorState. Every transition, automatic or manual,
// goes through transition while the Lock is held.
type Director struct {
	cfg       DirectorConfig
	catalog   *profile.Catalog
	actuators []actuator.Actuator
	store     *state.Store
	lock      *state.Lock
	history   history.Log
	clock     clock.Clock
	log       logger.Logger

	mu              sync.Mutex
	st              state.State
	persistFailures int
}

func NewDirector(
	cfg DirectorConfig,
	catalog *profile.Catalog,
	actuators []actuator.Actuator,
	store *state.Store,
	lock *state.Lock,
	hist history.Log,
	clk clock.Clock,
	log logger.Logger,
) *Director {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.MaxPersistFailures <= 0 {
		cfg.MaxPersistFailures = defaultMaxPersistFailures
	}

	return &Director{
		cfg:       cfg,
		catalog:   catalog,
		actuators: actuators,
		store:     store,
		lock:      lock,
		history:   hist,
		clock:     clk,
		log:       log,
		st:        state.State{Profile: catalog.DefaultName()},
	}
}

// State returns a copy of the current state.
func (d *Director) State() state.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st
}

func (d *Director) setState(st state.State) {
	d.mu.Lock()
	d.st = st
	d.mu.Unlock()
}

// Start initializes state from the state file, or from the catalog
// default when the file is absent, corrupt or names an unknown profile,
// and applies that profile.
func (d *Director) Start(ctx context.Context) error {
	release, err := d.lock.Acquire(ctx, d.cfg.LockTimeout)
	if err != nil {
		return err
	}
	defer release()

	st, err := d.store.Load()
	switch {
	case err == nil && d.catalog.Has(st.Profile):
		d.log.Info().Str("profile", st.Profile).Msg("Resuming persisted profile")
		// hysteresis observed by a previous process does not carry over
		st.ClearPending()
		d.setState(st)
	case err == nil:
		d.log.Warn().Str("profile", st.Profile).Msg("Persisted profile not in catalog, using default")
		d.setState(state.State{Profile: d.catalog.DefaultName(), Since: d.clock.Now()})
	case errors.HasCode(err, errors.ErrResourceNotFound):
		d.log.Info().Str("profile", d.catalog.DefaultName()).Msg("No persisted state, using default")
		d.setState(state.State{Profile: d.catalog.DefaultName(), Since: d.clock.Now()})
	default:
		d.log.Warn().Err(err).Msg("Persisted state unreadable, using default")
		d.setState(state.State{Profile: d.catalog.DefaultName(), Since: d.clock.Now()})
	}

	_, err = d.transition(ctx, d.State().Profile, history.CauseStartup, "startup", "")
	return err
}

// Set forces a transition to target on behalf of an operator. It fails
// fast with ErrResourceBusy when another transition holds the lock. A
// positive hold suppresses automatic changes for that long; zero clears
// any previous hold.
func (d *Director) Set(ctx context.Context, target string, hold time.Duration) (history.Record, error) {
	if !d.catalog.Has(target) {
		return history.Record{}, errors.New().WithData(errors.ErrUnknownProfile, target)
	}

	release, err := d.lock.Acquire(ctx, d.cfg.LockTimeout)
	if err != nil {
		return history.Record{}, err
	}
	defer release()

	d.sync()

	st := d.State()
	if hold > 0 {
		st.HoldUntil = d.clock.Now().Add(hold)
		st.HoldReason = "manual"
	} else {
		st.HoldUntil = time.Time{}
		st.HoldReason = ""
	}
	d.setState(st)

	return d.transition(ctx, target, history.CauseManual, "manual", "")
}

// Shutdown moves to the default profile before the process exits. The
// caller must have stopped the control loop.
func (d *Director) Shutdown(ctx context.Context) error {
	release, err := d.lock.Acquire(ctx, d.cfg.LockTimeout)
	if err != nil {
		return err
	}
	defer release()

	d.sync()

	st := d.State()
	st.HoldUntil = time.Time{}
	st.HoldReason = ""
	d.setState(st)

	_, err = d.transition(ctx, d.catalog.DefaultName(), history.CauseShutdown, "shutdown", "")
	return err
}

// sync adopts the persisted state when another process changed it. The
// lock must be held.
func (d *Director) sync() {
	// the file is stale while persistence is failing
	if d.persistFailures > 0 {
		return
	}

	st, err := d.store.Load()
	if err != nil || !d.catalog.Has(st.Profile) {
		return
	}

	current := d.State()
	if st.Profile != current.Profile || !st.Since.Equal(current.Since) || !st.HoldUntil.Equal(current.HoldUntil) {
		d.log.Debug().Str("profile", st.Profile).Msg("Adopted persisted state")
	}
	d.setState(st)
}

// transition applies target, verifies it, persists the new state and
// records it. Apply and verify failures never abort; only a persistence
// failure repeated on MaxPersistFailures consecutive transitions is
// returned. The lock must be held.
func (d *Director) transition(ctx context.Context, target string, cause history.Cause, reason, summary string) (history.Record, error) {
	p, ok := d.catalog.Get(target)
	if !ok {
		return history.Record{}, errors.New().WithData(errors.ErrUnknownProfile, target)
	}

	prev := d.State()
	now := d.clock.Now()

	log := d.log.With("transition")
	log.Info().
		Str("from", prev.Profile).
		Str("to", target).
		Str("cause", string(cause)).
		Str("reason", reason).
		Msg("Applying profile")

	failures := 0
	for _, a := range d.actuators {
		failed := actuator.Failures(a.Apply(ctx, p))
		failures += len(failed)
		for _, res := range failed {
			log.Warn().
				Str("actuator", res.Actuator).
				Str("directive", res.Directive).
				Str("value", res.Value).
				Err(res.Err).
				Msg("Directive failed")
		}
	}

	var mismatches []string
	for _, a := range d.actuators {
		mismatches = append(mismatches, a.Verify(ctx, p)...)
	}

	status := history.StatusOK
	detail := ""
	if len(mismatches) > 0 {
		status = history.StatusMismatch
		detail = strings.Join(mismatches, "; ")
		log.Warn().Str("profile", target).Str("detail", detail).Msg("Hardware state does not match profile")
	}

	next := prev
	next.Profile = target
	next.ClearPending()
	next.Status = string(status)
	next.Detail = detail
	if target != prev.Profile || prev.Since.IsZero() {
		next.Since = now
		next.Deadline = time.Time{}
		if limit := d.maxDuration(p); limit > 0 {
			next.Deadline = now.Add(limit)
		}
	}
	if cause == history.CauseShutdown {
		next.Deadline = time.Time{}
	}

	d.setState(next)
	persistErr := d.persist(next)

	rec := history.Record{
		Timestamp: now,
		Previous:  prev.Profile,
		Next:      target,
		Cause:     cause,
		Reason:    reason,
		Summary:   summary,
		Status:    status,
		Failures:  failures,
		Detail:    detail,
	}
	if err := d.history.Append(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("Failed to record transition")
	}

	return rec, persistErr
}

func (d *Director) maxDuration(p profile.Profile) time.Duration {
	if p.Name == d.catalog.DefaultName() {
		return 0
	}
	if p.MaxDuration > 0 {
		return p.MaxDuration
	}
	return d.cfg.MaxDuration
}

// persist writes st and tracks consecutive failures.
func (d *Director) persist(st state.State) error {
	err := d.store.Save(st)
	if err == nil {
		d.persistFailures = 0
		return nil
	}

	d.persistFailures++
	d.log.Error().
		Err(err).
		Int("consecutive_failures", d.persistFailures).
		Msg("Failed to persist state")

	if d.persistFailures >= d.cfg.MaxPersistFailures {
		return errors.New().Wrap(errors.ErrPersistState, err)
	}

	return nil
}

// saveHysteresis persists state changes that are not transitions, such
// as a growing debounce window. Failures are logged only.
func (d *Director) saveHysteresis(st state.State) {
	d.setState(st)
	if err := d.store.Save(st); err != nil {
		d.log.Debug().Err(err).Msg("Failed to persist hysteresis state")
	}
}
