package classify

import (
	"fmt"

	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/profile"
	"codeberg.org/mutker/powergov/internal/telemetry"
)

// Trigger selects Profile when its conditions hold. Zero-valued conditions
// are not configured and take no part in matching.
type Trigger struct {
	Profile string `mapstructure:"profile"`
	// Match is "any" (default) or "all".
	Match string `mapstructure:"match"`

	GPUUtilization int      `mapstructure:"gpu_utilization"`
	VRAMUsedMB     int      `mapstructure:"vram_used_mb"`
	Signatures     []string `mapstructure:"signatures"`
	Power          string   `mapstructure:"power"`
	// BatteryBelow fires on battery power at or below this percentage.
	BatteryBelow int `mapstructure:"battery_below"`
}

func (t Trigger) fires(snap telemetry.Snapshot) bool {
	var conds []bool

	if t.GPUUtilization > 0 {
		conds = append(conds, snap.GPU.Present && snap.GPU.Utilization >= t.GPUUtilization)
	}
	if t.VRAMUsedMB > 0 {
		conds = append(conds, snap.GPU.Present && snap.GPU.VRAMUsedMB >= t.VRAMUsedMB)
	}
	if len(t.Signatures) > 0 {
		matched := false
		for _, sig := range t.Signatures {
			if snap.Matched(sig) > 0 {
				matched = true
				break
			}
		}
		conds = append(conds, matched)
	}
	if t.Power != "" {
		conds = append(conds, string(snap.Power) == t.Power)
	}
	if t.BatteryBelow > 0 {
		conds = append(conds, snap.Power == telemetry.PowerBattery &&
			snap.BatteryPercent != telemetry.NoBattery &&
			snap.BatteryPercent <= t.BatteryBelow)
	}

	if len(conds) == 0 {
		return false
	}

	all := t.Match == MatchAll
	for _, c := range conds {
		if c && !all {
			return true
		}
		if !c && all {
			return false
		}
	}

	return all
}

// Threshold fires triggers against a snapshot. When several triggers fire
// the profile earliest in Priority wins; profiles missing from Priority
// rank below listed ones, by level descending and then declaration order.
type Threshold struct {
	triggers []Trigger
	rank     map[string]int
}

// NewThreshold validates triggers against catalog.
func NewThreshold(catalog *profile.Catalog, triggers []Trigger, priority []string) (*Threshold, error) {
	errFactory := errors.New()

	for i, t := range triggers {
		if !catalog.Has(t.Profile) {
			return nil, errFactory.WithData(ErrInvalidTrigger, fmt.Sprintf("trigger %d: unknown profile %q", i, t.Profile))
		}
		switch t.Match {
		case "", MatchAny, MatchAll:
		default:
			return nil, errFactory.WithData(ErrInvalidTrigger, fmt.Sprintf("trigger %d: match %q", i, t.Match))
		}
		switch telemetry.PowerSource(t.Power) {
		case "", telemetry.PowerAC, telemetry.PowerBattery:
		default:
			return nil, errFactory.WithData(ErrInvalidTrigger, fmt.Sprintf("trigger %d: power %q", i, t.Power))
		}
		if t.GPUUtilization < 0 || t.GPUUtilization > 100 || t.VRAMUsedMB < 0 || t.BatteryBelow < 0 || t.BatteryBelow > 100 {
			return nil, errFactory.WithData(ErrInvalidTrigger, fmt.Sprintf("trigger %d: threshold out of range", i))
		}
	}

	rank := make(map[string]int, len(priority))
	for i, name := range priority {
		if !catalog.Has(name) {
			return nil, errFactory.WithData(ErrInvalidPriority, name)
		}
		if _, dup := rank[name]; !dup {
			rank[name] = i
		}
	}

	return &Threshold{triggers: append([]Trigger(nil), triggers...), rank: rank}, nil
}

func (c *Threshold) Classify(snap telemetry.Snapshot, catalog *profile.Catalog) string {
	best := ""
	for _, t := range c.triggers {
		if !t.fires(snap) {
			continue
		}
		if best == "" || c.outranks(t.Profile, best, catalog) {
			best = t.Profile
		}
	}

	if best == "" {
		return catalog.DefaultName()
	}

	return best
}

// outranks reports whether a strictly beats b. Equal rank keeps b, which
// fired earlier.
func (c *Threshold) outranks(a, b string, catalog *profile.Catalog) bool {
	ra, aListed := c.rank[a]
	rb, bListed := c.rank[b]

	switch {
	case aListed && bListed:
		return ra < rb
	case aListed != bListed:
		return aListed
	default:
		return catalog.Level(a) > catalog.Level(b)
	}
}
