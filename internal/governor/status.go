package governor

import (
	"context"

	"codeberg.org/mutker/powergov/internal/classify"
	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/history"
	"codeberg.org/mutker/powergov/internal/profile"
	"codeberg.org/mutker/powergov/internal/state"
	"codeberg.org/mutker/powergov/internal/telemetry"
)

// Status is a read-only view of the governor for the command surface.
type Status struct {
	State     state.State        `json:"state"`
	Persisted bool               `json:"persisted"`
	Snapshot  telemetry.Snapshot `json:"telemetry"`
	// Verdict is what the classifier would pick right now, before the gate.
	Verdict string           `json:"verdict"`
	Recent  []history.Record `json:"recent,omitempty"`
}

// Inspect gathers a Status without taking the lock or changing anything.
// hist may be nil.
func Inspect(
	ctx context.Context,
	store *state.Store,
	reader SnapshotReader,
	classifier classify.Classifier,
	catalog *profile.Catalog,
	hist history.Log,
	recent int,
) (Status, error) {
	var status Status

	st, err := store.Load()
	switch {
	case err == nil:
		status.State = st
		status.Persisted = true
	case errors.HasCode(err, errors.ErrResourceNotFound):
		status.State = state.State{Profile: catalog.DefaultName()}
	default:
		return status, err
	}

	status.Snapshot = reader.Read(ctx)
	status.Verdict = classifier.Classify(status.Snapshot, catalog)

	if hist != nil && recent > 0 {
		records, err := hist.Recent(ctx, recent)
		if err != nil {
			return status, err
		}
		status.Recent = records
	}

	return status, nil
}
