// Package actuator applies profile directives to the hardware. Every
// directive is best effort: a failure is reported in its Result and never
// stops the remaining directives.
package actuator

import (
	"context"
	"time"

	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/profile"
)

const defaultTimeout = 2 * time.Second

// Result is the outcome of a single directive.
type Result struct {
	Actuator  string
	Directive string
	Value     string
	Err       error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Actuator applies the part of a profile that belongs to one hardware
// domain.
type Actuator interface {
	Name() string
	// Apply writes every directive of p the actuator owns, in order.
	Apply(ctx context.Context, p profile.Profile) []Result
	// Verify reads back a cheap subset of state and describes every
	// disagreement with p.
	Verify(ctx context.Context, p profile.Profile) []string
}

// Failures returns the failed results.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.OK() {
			failed = append(failed, r)
		}
	}
	return failed
}

// call runs fn under timeout. fn keeps running in the background if it
// ignores the deadline; its late result is discarded.
func call(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	_, err := callValue(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func callValue[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
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
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		return zero, errors.New().Wrap(errors.ErrTimeout, ctx.Err())
	}
}
