// Package classify turns a telemetry snapshot into the name of the profile
// the system should be in. Classifiers hold only configuration and are
// safe for concurrent use.
package classify

import (
	"codeberg.org/mutker/powergov/internal/profile"
	"codeberg.org/mutker/powergov/internal/telemetry"
)

// Classifier returns a profile name from the catalog for a snapshot. It
// must be a pure function of its arguments.
type Classifier interface {
	Classify(snap telemetry.Snapshot, catalog *profile.Catalog) string
}

const (
	MatchAny = "any"
	MatchAll = "all"
)
