// Package gate filters raw classifier verdicts through safety overrides,
// holds and an asymmetric debounce before they may become transitions.
package gate

import (
	"time"

	"codeberg.org/mutker/powergov/internal/profile"
	"codeberg.org/mutker/powergov/internal/state"
	"codeberg.org/mutker/powergov/internal/telemetry"
)

type Reason string

const (
	ReasonSteady      Reason = "steady"
	ReasonUpgrade     Reason = "upgrade"
	ReasonDowngrade   Reason = "downgrade"
	ReasonLateral     Reason = "lateral"
	ReasonPending     Reason = "pending"
	ReasonHeld        Reason = "held"
	ReasonGPUTemp     Reason = "gpu_temperature"
	ReasonCPUTemp     Reason = "cpu_temperature"
	ReasonMaxDuration Reason = "max_duration"
)

// Config holds the gate thresholds. A zero ceiling disables that check.
type Config struct {
	Cooldown       time.Duration
	GPUTempCeiling int
	CPUTempCeiling int
	// Recovery is how long automatic changes stay suppressed after a
	// safety override.
	Recovery time.Duration
}

// Decision is the outcome of one Admit call. Next carries st with updated
// hysteresis and hold fields; the caller persists it whether or not
// Change is set.
type Decision struct {
	Target string
	Change bool
	Forced bool
	Reason Reason
	Next   state.State
}

// Safety reports whether the decision came from a safety override.
func (d Decision) Safety() bool {
	switch d.Reason {
	case ReasonGPUTemp, ReasonCPUTemp, ReasonMaxDuration:
		return true
	}
	return false
}

type Gate struct {
	cfg     Config
	catalog *profile.Catalog
}

func New(cfg Config, catalog *profile.Catalog) *Gate {
	return &Gate{cfg: cfg, catalog: catalog}
}

// Admit decides whether verdict may replace st.Profile at now. Safety
// overrides come first and always target the default profile; holds then
// suppress automatic changes; upgrades pass immediately, while downgrades
// and lateral moves wait until they have been indicated for the full
// cooldown.
func (g *Gate) Admit(verdict string, snap telemetry.Snapshot, st state.State, now time.Time) Decision {
	next := st
	def := g.catalog.DefaultName()

	if reason, ok := g.override(snap, st, now); ok {
		next.ClearPending()
		if st.Profile == def {
			next.Deadline = time.Time{}
			return Decision{Target: def, Forced: true, Reason: reason, Next: next}
		}

		next.HoldUntil = now.Add(g.cfg.Recovery)
		next.HoldReason = "safety: " + string(reason)
		return Decision{Target: def, Change: true, Forced: true, Reason: reason, Next: next}
	}

	if st.Held(now) {
		next.ClearPending()
		return Decision{Target: st.Profile, Reason: ReasonHeld, Next: next}
	}
	if !st.HoldUntil.IsZero() {
		next.HoldUntil = time.Time{}
		next.HoldReason = ""
	}

	if !g.catalog.Has(verdict) {
		verdict = def
	}

	if verdict == st.Profile {
		next.ClearPending()
		return Decision{Target: st.Profile, Reason: ReasonSteady, Next: next}
	}

	if g.catalog.Compare(verdict, st.Profile) > 0 {
		next.ClearPending()
		return Decision{Target: verdict, Change: true, Reason: ReasonUpgrade, Next: next}
	}

	if next.Pending == "" || !g.catalog.Has(next.Pending) {
		next.Pending = verdict
		next.PendingTicks = 1
		next.PendingSince = now
	} else {
		next.PendingTicks++
		if g.catalog.Compare(verdict, next.Pending) > 0 {
			next.Pending = verdict
		}
	}

	if now.Sub(next.PendingSince) < g.cfg.Cooldown {
		return Decision{Target: st.Profile, Reason: ReasonPending, Next: next}
	}

	target := next.Pending
	reason := ReasonDowngrade
	if g.catalog.Compare(target, st.Profile) == 0 {
		reason = ReasonLateral
	}
	next.ClearPending()

	return Decision{Target: target, Change: true, Reason: reason, Next: next}
}

func (g *Gate) override(snap telemetry.Snapshot, st state.State, now time.Time) (Reason, bool) {
	switch {
	case g.cfg.GPUTempCeiling > 0 && snap.GPU.Present && snap.GPU.Temperature >= g.cfg.GPUTempCeiling:
		return ReasonGPUTemp, true
	case g.cfg.CPUTempCeiling > 0 && snap.CPUTemperature != telemetry.NoTemperature && snap.CPUTemperature >= g.cfg.CPUTempCeiling:
		return ReasonCPUTemp, true
	case !st.Deadline.IsZero() && !now.Before(st.Deadline):
		return ReasonMaxDuration, true
	}

	return "", false
}
