package governor

import (
	"context"
	"time"

	"codeberg.org/mutker/powergov/internal/classify"
	"codeberg.org/mutker/powergov/internal/clock"
	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/gate"
	"codeberg.org/mutker/powergov/internal/history"
	"codeberg.org/mutker/powergov/internal/logger"
	"codeberg.org/mutker/powergov/internal/profile"
	"codeberg.org/mutker/powergov/internal/telemetry"
)

const defaultShutdownTimeout = 10 * time.Second

// SnapshotReader produces one telemetry snapshot per call.
type SnapshotReader interface {
	Read(ctx context.Context) telemetry.Snapshot
}

type Config struct {
	Interval        time.Duration
	ShutdownTimeout time.Duration
}

// Governor is the polling control loop: read, classify, gate and, when
// admitted, transition.
type Governor struct {
	cfg        Config
	director   *Director
	reader     SnapshotReader
	classifier classify.Classifier
	gate       *gate.Gate
	catalog    *profile.Catalog
	clock      clock.Clock
	log        logger.Logger
}

func New(
	cfg Config,
	director *Director,
	reader SnapshotReader,
	classifier classify.Classifier,
	g *gate.Gate,
	catalog *profile.Catalog,
	clk clock.Clock,
	log logger.Logger,
) *Governor {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	return &Governor{
		cfg:        cfg,
		director:   director,
		reader:     reader,
		classifier: classifier,
		gate:       g,
		catalog:    catalog,
		clock:      clk,
		log:        log,
	}
}

// Run starts the director and polls until ctx is done, then moves to the
// default profile. It returns the error that stopped the loop, if any.
func (g *Governor) Run(ctx context.Context) error {
	errFactory := errors.New()

	if g.cfg.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, g.cfg.Interval)
	}

	if err := g.director.Start(ctx); err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}

	ticker := g.clock.NewTicker(g.cfg.Interval)
	defer ticker.Stop()

	g.log.Info().
		Dur("interval", g.cfg.Interval).
		Str("profile", g.director.State().Profile).
		Msg("Governor started")

	var loopErr error
	for loopErr == nil {
		select {
		case <-ctx.Done():
			return g.shutdown()
		case <-ticker.C:
			loopErr = g.Step(ctx)
		}
	}

	g.log.Error().Err(loopErr).Msg("Error in main loop")
	if err := g.shutdown(); err != nil {
		g.log.Warn().Err(err).Msg("Shutdown after loop failure incomplete")
	}

	return errFactory.Wrap(errors.ErrMainLoop, loopErr)
}

// shutdown uses a fresh context: the loop context is already cancelled.
func (g *Governor) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.ShutdownTimeout)
	defer cancel()

	if err := g.director.Shutdown(ctx); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}

	g.log.Info().Str("profile", g.catalog.DefaultName()).Msg("Governor stopped")
	return nil
}

// Step runs one poll tick. A tick that cannot take the lock is skipped.
// Only fatal errors are returned.
func (g *Governor) Step(ctx context.Context) error {
	release, err := g.director.lock.TryAcquire(ctx)
	if err != nil {
		if errors.HasCode(err, errors.ErrResourceBusy) {
			g.log.Debug().Msg("Transition in progress, skipping tick")
			return nil
		}
		return err
	}
	defer release()

	g.director.sync()

	snap := g.reader.Read(ctx)
	verdict := g.classifier.Classify(snap, g.catalog)
	st := g.director.State()
	decision := g.gate.Admit(verdict, snap, st, g.clock.Now())

	g.log.Debug().
		Str("summary", snap.Summary()).
		Str("verdict", verdict).
		Str("current", st.Profile).
		Str("reason", string(decision.Reason)).
		Bool("change", decision.Change).
		Msg("Tick")

	if decision.Safety() {
		g.log.Warn().
			Str("reason", string(decision.Reason)).
			Str("current", st.Profile).
			Bool("change", decision.Change).
			Msg("Safety override")
	}

	if !decision.Change {
		if decision.Next != st {
			g.director.saveHysteresis(decision.Next)
		}
		return nil
	}

	cause := history.CauseAuto
	if decision.Safety() {
		cause = history.CauseSafety
	}

	g.director.setState(decision.Next)
	_, err = g.director.transition(ctx, decision.Target, cause, string(decision.Reason), snap.Summary())

	return err
}
