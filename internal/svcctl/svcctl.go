package svcctl

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/zhivem/penguin/internal/model"
	"github.com/zhivem/penguin/internal/worker"
)

// stopTimeout bounds a single stop request.
const stopTimeout = 30 * time.Second

// ServiceController stops the auxiliary packet filtering service. Stop must
// be idempotent, a service which is not running or does not exist is not an
// error.
type ServiceController interface {
	Stop(ctx context.Context) error
}

// New returns the controller for desc. A nil descriptor gives Noop, a
// descriptor without a stop command the platform default.
func New(desc *model.ServiceDescriptor) ServiceController {
	switch {
	case desc == nil:
		return Noop{}
	case len(desc.Stop) == 0:
		return newDefault(desc.Name)
	default:
		return ExecController{
			Name:    desc.Name,
			Command: slices.Clone(desc.Stop),
			OKCodes: slices.Clone(desc.OKCodes),
		}
	}
}

type Noop struct{}

func (Noop) Stop(context.Context) error {
	return nil
}

// ExecController runs the stop command as a short lived child process and
// waits for it. The output is not captured.
type ExecController struct {
	Name    string
	Command []string
	// OKCodes are non-zero exit codes also treated as success.
	OKCodes []int
}

func (c ExecController) Stop(ctx context.Context) error {
	if len(c.Command) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	w := worker.NewWorker()
	cmd := worker.Command{Path: c.Command[0], Args: c.Command[1:]}
	run, err := w.Start(ctx, cmd, "stop service "+c.Name, false)
	if err != nil {
		return fmt.Errorf("stopping service %s: %w", c.Name, err)
	}

	select {
	case <-run.Done():
	case <-ctx.Done():
		// the stop command hangs, do not leave it behind
		_, _ = run.TerminateAndWait(context.WithoutCancel(ctx), worker.DefaultGrace)
		return fmt.Errorf("stopping service %s: %w", c.Name, ctx.Err())
	}

	res := run.Result()
	if res.ExitCode == 0 || slices.Contains(c.OKCodes, res.ExitCode) {
		slog.InfoContext(ctx, "service stopped", "service", c.Name, "exit_code", res.ExitCode)
		return nil
	}
	return fmt.Errorf("stopping service %s: command %v: exit code %d", c.Name, c.Command, res.ExitCode)
}
