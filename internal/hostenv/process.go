package hostenv

import (
	"context"
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// Owner identifies a process across PID reuse by pairing the PID with the
// process start time in milliseconds since the epoch.
type Owner struct {
	PID       int32 `json:"pid"`
	StartedAt int64 `json:"startedAt"`
}

// Self returns the Owner describing the running process.
func Self(ctx context.Context) Owner {
	pid := int32(os.Getpid()) // #nosec G115 -- pids fit in int32
	o := Owner{PID: pid}
	if p, err := process.NewProcessWithContext(ctx, pid); err == nil {
		if started, err := p.CreateTimeWithContext(ctx); err == nil {
			o.StartedAt = started
		}
	}
	return o
}

// Alive reports whether the process described by o is still running. A PID
// that now belongs to a process with a different start time counts as dead.
// Errors while probing are treated as alive so nothing is reclaimed by mistake.
func Alive(ctx context.Context, o Owner) bool {
	if o.PID <= 0 {
		return false
	}
	exists, err := process.PidExistsWithContext(ctx, o.PID)
	if err != nil {
		return true
	}
	if !exists {
		return false
	}
	if o.StartedAt == 0 {
		return true
	}
	p, err := process.NewProcessWithContext(ctx, o.PID)
	if err != nil {
		return true
	}
	started, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return true
	}
	return started == o.StartedAt
}
