package actuator

import (
	"context"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/powergov/internal/errors"
)

// writeValue writes value to a sysfs or procfs attribute.
func writeValue(ctx context.Context, timeout time.Duration, path, value string) error {
	err := call(ctx, timeout, func(context.Context) error {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
		if err != nil {
			return err
		}
		if _, err := f.WriteString(value); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		return errors.New().Wrap(errors.ErrActuatorWrite, err)
	}

	return nil
}

func readValue(ctx context.Context, timeout time.Duration, path string) (string, error) {
	return callValue(ctx, timeout, func(context.Context) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	})
}

// selectedValue extracts the bracketed choice from attributes such as
// "always [madvise] never".
func selectedValue(raw string) string {
	start := strings.IndexByte(raw, '[')
	end := strings.IndexByte(raw, ']')
	if start < 0 || end < start {
		return raw
	}
	return raw[start+1 : end]
}
