package procs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/zhivem/penguin/internal/model"
	"github.com/zhivem/penguin/internal/parallel"
)

const defaultLimit = 4

// Sweeper terminates OS processes by their executable name. It only sends
// the normal stop request, it never kills.
type Sweeper struct {
	// Limit is the number of processes terminated in parallel.
	Limit int
}

type match struct {
	proc *process.Process
	name string
}

// Sweep terminates all processes whose name equals one of names, ignoring
// case. A name which is not running is not an error. Returns the number of
// processes the stop request was delivered to. Permission problems are
// reported as model.ErrAccessDenied, all failures are joined.
func (s Sweeper) Sweep(ctx context.Context, names ...string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}
	matches, err := s.find(ctx, names)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		slog.DebugContext(ctx, "no process to terminate", "names", names)
		return 0, nil
	}

	limit := s.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	var count int
	var errs []error
	m := parallel.NewMap(ctx, limit, terminate)
	for name, err := range m.Iter(parallel.All(matches)) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if name != "" {
			count++
		}
	}
	return count, errors.Join(errs...)
}

func (s Sweeper) find(ctx context.Context, names []string) ([]match, error) {
	all, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	self := int32(os.Getpid())

	var ret []match
	for _, p := range all {
		if p.Pid == self {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// exited meanwhile or not inspectable
			continue
		}
		for _, want := range names {
			if strings.EqualFold(name, want) {
				ret = append(ret, match{proc: p, name: name})
				break
			}
		}
	}
	return ret, nil
}

// terminate returns the process name if the stop request was delivered, an
// empty string if the process was already gone.
func terminate(ctx context.Context, m match) (string, error) {
	err := m.proc.TerminateWithContext(ctx)
	if err == nil {
		slog.InfoContext(ctx, "process terminated", "name", m.name, "pid", m.proc.Pid)
		return m.name, nil
	}
	if running, rerr := m.proc.IsRunningWithContext(ctx); rerr == nil && !running {
		slog.DebugContext(ctx, "process already gone", "name", m.name, "pid", m.proc.Pid)
		return "", nil
	}
	if errors.Is(err, os.ErrPermission) {
		return "", fmt.Errorf("terminate %s (pid %d): %w: %w", m.name, m.proc.Pid, model.ErrAccessDenied, err)
	}
	return "", fmt.Errorf("terminate %s (pid %d): %w", m.name, m.proc.Pid, err)
}
