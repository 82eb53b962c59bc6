package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zhivem/penguin/internal/svcctl"
	"github.com/zhivem/penguin/internal/worker"
)

// Orchestrator runs the shutdown cascade. Every step runs and is awaited
// even if a previous one failed.
type Orchestrator struct {
	Worker  *worker.Worker
	Service svcctl.ServiceController
	Sweeper Sweeper
	// Primary is the process name swept as the last step.
	Primary string
	// Grace defaults to worker.DefaultGrace.
	Grace time.Duration
	Log   *slog.Logger
}

func (o Orchestrator) Shutdown(ctx context.Context) error {
	log := logger(o.Log)
	grace := o.Grace
	if grace <= 0 {
		grace = worker.DefaultGrace
	}

	var errs []error

	if o.Worker != nil {
		if run := o.Worker.Current(); run != nil {
			log.InfoContext(ctx, "shutdown: stopping worker", "name", run.Name, "grace", grace)
			forced, err := run.TerminateAndWait(ctx, grace)
			if err != nil {
				errs = append(errs, fmt.Errorf("stopping %s: %w", run.Name, err))
			}
			log.InfoContext(ctx, "shutdown: worker stopped", "name", run.Name, "forced", forced)
		} else {
			log.DebugContext(ctx, "shutdown: no active worker")
		}
	}

	if o.Service != nil {
		log.InfoContext(ctx, "shutdown: stopping service")
		if err := o.Service.Stop(ctx); err != nil {
			log.ErrorContext(ctx, "shutdown: stopping service", "error", err)
			errs = append(errs, err)
		}
	}

	if o.Sweeper != nil && o.Primary != "" {
		log.InfoContext(ctx, "shutdown: terminating processes", "name", o.Primary)
		n, err := o.Sweeper.Sweep(ctx, o.Primary)
		if err != nil {
			log.ErrorContext(ctx, "shutdown: terminating processes", "name", o.Primary, "error", err)
			errs = append(errs, err)
		}
		if n > 0 {
			log.InfoContext(ctx, "bypass stopped", "name", o.Primary, "count", n)
		}
	}

	return errors.Join(errs...)
}
