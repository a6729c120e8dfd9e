package telemetry

import (
	"context"

	"codeberg.org/mutker/powergov/internal/errors"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessTable lists running processes through gopsutil.
type ProcessTable struct {
	withCmdline bool
}

func NewProcessTable(withCmdline bool) *ProcessTable {
	return &ProcessTable{withCmdline: withCmdline}
}

func (t *ProcessTable) ListProcesses(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.New().Wrap(ErrProcessList, err)
	}

	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}

		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue // process may have exited
		}

		entry := Process{PID: p.Pid, Name: name}
		if t.withCmdline {
			entry.Cmdline, _ = p.CmdlineWithContext(ctx)
		}
		out = append(out, entry)
	}

	return out, nil
}
