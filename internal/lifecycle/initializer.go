package lifecycle

import (
	"context"
	"log/slog"

	"github.com/zhivem/penguin/internal/svcctl"
)

// Initializer cleans up leftovers of a previous session in the background:
// it terminates stale bypass processes and stops the filtering service.
// Both steps are best effort.
type Initializer struct {
	Sweeper   Sweeper
	Service   svcctl.ServiceController
	Processes []string
	Log       *slog.Logger
}

// InitRun is a started initialization.
type InitRun struct {
	errs chan error
	done chan struct{}
}

// Errors returns the failures of the steps. It is closed before Done.
func (r *InitRun) Errors() <-chan error {
	return r.errs
}

func (r *InitRun) Done() <-chan struct{} {
	return r.done
}

// Start runs the initialization on own goroutine and returns immediately.
func (i Initializer) Start(ctx context.Context) *InitRun {
	r := &InitRun{
		errs: make(chan error, 2),
		done: make(chan struct{}),
	}
	log := logger(i.Log)
	go func() {
		defer close(r.done)
		defer close(r.errs)

		n, err := i.Sweeper.Sweep(ctx, i.Processes...)
		if err != nil {
			log.WarnContext(ctx, "startup: terminating stale processes", "processes", i.Processes, "error", err)
			r.errs <- err
		} else if n > 0 {
			log.InfoContext(ctx, "startup: stale processes terminated", "count", n)
		}

		if err := i.Service.Stop(ctx); err != nil {
			log.WarnContext(ctx, "startup: stopping service", "error", err)
			r.errs <- err
		}
		log.DebugContext(ctx, "startup: done")
	}()
	return r
}
