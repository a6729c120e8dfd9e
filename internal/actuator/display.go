package actuator

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/profile"
)

// Display hands the profile's display mode to an external command, e.g.
// a script calling xrandr or a compositor IPC. The mode is appended as the
// last argument.
type Display struct {
	command []string
	timeout time.Duration
}

func NewDisplay(command []string, timeout time.Duration) *Display {
	return &Display{command: command, timeout: timeout}
}

func (d *Display) Name() string {
	return "display"
}

func (d *Display) Apply(ctx context.Context, p profile.Profile) []Result {
	if p.DisplayMode == "" {
		return nil
	}

	res := Result{Actuator: d.Name(), Directive: "mode", Value: p.DisplayMode}
	if len(d.command) == 0 {
		res.Err = errors.New().WithData(errors.ErrActuatorWrite, "no display command configured")
		return []Result{res}
	}

	timeout := d.timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string(nil), d.command[1:]...), p.DisplayMode)
	//nolint:gosec // G204: command comes from the administrator's configuration
	cmd := exec.CommandContext(ctx, d.command[0], args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			res.Err = errors.New().Wrap(errors.ErrActuatorWrite, err).WithMessage(msg)
		} else {
			res.Err = errors.New().Wrap(errors.ErrActuatorWrite, err)
		}
	}

	return []Result{res}
}

// Verify is a no-op: display servers offer no uniform read-back.
func (d *Display) Verify(context.Context, profile.Profile) []string {
	return nil
}
