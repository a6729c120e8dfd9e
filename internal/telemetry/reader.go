package telemetry

import (
	"context"
	"time"

	"codeberg.org/mutker/powergov/internal/clock"
	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/logger"
	"golang.org/x/sync/errgroup"
)

const defaultSourceTimeout = 2 * time.Second

type PowerSupply interface {
	ReadPower(ctx context.Context) (PowerReading, error)
}

type ThermalSource interface {
	ReadCPUTemperature(ctx context.Context) (int, error)
}

type GPUSource interface {
	ReadGPU(ctx context.Context) (GPUReading, error)
}

type ProcessLister interface {
	ListProcesses(ctx context.Context) ([]Process, error)
}

// Sources groups the inputs of a Reader. Nil sources contribute their
// sentinel.
type Sources struct {
	Power     PowerSupply
	Thermal   ThermalSource
	GPU       GPUSource
	Processes ProcessLister
	Matcher   *Matcher
}

// Reader builds snapshots from independent sources read in parallel.
type Reader struct {
	sources Sources
	timeout time.Duration
	clock   clock.Clock
	log     logger.Logger
}

type Option func(*Reader)

// WithTimeout bounds each source read.
func WithTimeout(d time.Duration) Option {
	return func(r *Reader) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(r *Reader) {
		r.clock = c
	}
}

func WithLogger(l logger.Logger) Option {
	return func(r *Reader) {
		r.log = l
	}
}

func NewReader(sources Sources, opts ...Option) *Reader {
	r := &Reader{
		sources: sources,
		timeout: defaultSourceTimeout,
		clock:   clock.Real(),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Read returns once every source has answered or timed out.
func (r *Reader) Read(ctx context.Context) Snapshot {
	var (
		power   = PowerReading{Source: PowerUnknown, BatteryPercent: NoBattery}
		cpuTemp = NoTemperature
		gpu     GPUReading
		procs   []Process
	)

	g, gctx := errgroup.WithContext(ctx)

	if r.sources.Power != nil {
		g.Go(func() error {
			power = readSource(gctx, r, "power", power, r.sources.Power.ReadPower)
			return nil
		})
	}
	if r.sources.Thermal != nil {
		g.Go(func() error {
			cpuTemp = readSource(gctx, r, "thermal", cpuTemp, r.sources.Thermal.ReadCPUTemperature)
			return nil
		})
	}
	if r.sources.GPU != nil {
		g.Go(func() error {
			gpu = readSource(gctx, r, "gpu", GPUReading{}, r.sources.GPU.ReadGPU)
			return nil
		})
	}
	if r.sources.Processes != nil && r.sources.Matcher != nil && !r.sources.Matcher.Empty() {
		g.Go(func() error {
			procs = readSource(gctx, r, "processes", nil, r.sources.Processes.ListProcesses)
			return nil
		})
	}

	// sources report failures through their sentinels
	_ = g.Wait()

	snap := Snapshot{
		Power:          power.Source,
		BatteryPercent: power.BatteryPercent,
		GPU:            gpu,
		CPUTemperature: cpuTemp,
		Workloads:      map[string][]string{},
		CapturedAt:     r.clock.Now(),
	}
	if len(procs) > 0 {
		snap.Workloads = r.sources.Matcher.Match(procs)
	}

	return snap
}

// readSource runs fn under the reader timeout. A source that errors or
// outlives the timeout yields sentinel; a goroutine that ignores its
// context is abandoned and its late result discarded.
func readSource[T any](ctx context.Context, r *Reader, name string, sentinel T, fn func(context.Context) (T, error)) T {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)

	go func() {
		v, err := fn(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			r.log.Debug().Str("source", name).Err(res.err).Msg("Telemetry source unavailable")
			return sentinel
		}
		return res.value
	case <-ctx.Done():
		err := errors.New().WithData(ErrSourceTimeout, name)
		r.log.Debug().Str("source", name).Err(err).Msg("Telemetry source timed out")
		return sentinel
	}
}
