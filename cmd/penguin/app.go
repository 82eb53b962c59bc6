package main

import (
	"context"
	"fmt"

	"github.com/zhivem/penguin/internal/lifecycle"
	"github.com/zhivem/penguin/internal/model"
	"github.com/zhivem/penguin/internal/procs"
	"github.com/zhivem/penguin/internal/svcctl"
	"github.com/zhivem/penguin/internal/worker"
)

// app wires the components for a given configuration.
type app struct {
	cfg          model.Config
	ctl          *lifecycle.Controller
	initializer  lifecycle.Initializer
	orchestrator lifecycle.Orchestrator
}

func newApp(cfg model.Config) (*app, error) {
	enc, err := worker.LookupEncoding(cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrConfiguration, err)
	}
	w := worker.NewWorker().WithEncoding(enc)
	service := svcctl.New(cfg.Service)
	sweeper := procs.Sweeper{}

	return &app{
		cfg: cfg,
		ctl: lifecycle.NewController(cfg, w),
		initializer: lifecycle.Initializer{
			Sweeper:   sweeper,
			Service:   service,
			Processes: cfg.Processes,
		},
		orchestrator: lifecycle.Orchestrator{
			Worker:  w,
			Service: service,
			Sweeper: sweeper,
			Primary: cfg.PrimaryProcess,
			Grace:   worker.DefaultGrace,
		},
	}, nil
}

// shutdown runs the cleanup cascade even if ctx was already canceled.
func (a *app) shutdown(ctx context.Context) error {
	return a.orchestrator.Shutdown(context.WithoutCancel(ctx))
}
