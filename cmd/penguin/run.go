package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhivem/penguin/internal/log"
	"github.com/zhivem/penguin/internal/worker"
)

var runCmd = &cobra.Command{
	Use:   "run [profile]",
	Short: "run starts the profile and streams its output until interrupted",
	Long:  "run starts the profile, the last used one if omitted, and streams its output until interrupted",
	Args:  cobra.MaximumNArgs(1),
	RunE:  doRun,
}

func doRun(cmd *cobra.Command, args []string) error {
	if err := guard(cmd); err != nil {
		return err
	}

	ctx := cmd.Context()
	attrs := slog.Group("penguin",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	name := config.LastProfile
	if len(args) == 1 {
		name = args[0]
	}
	if name == "" {
		return errors.New("no profile given and no profile was used before")
	}

	a, err := newApp(config)
	if err != nil {
		return err
	}

	// the stale processes must be gone before our own one starts
	startup := a.initializer.Start(ctx)
	for err := range startup.Errors() {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	<-startup.Done()

	if err := a.ctl.LoadProfiles(ctx, config.Profiles); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := a.ctl.Start(ctx, name)
	if err != nil {
		return errors.Join(err, a.shutdown(ctx))
	}
	saveLastProfile(name)

	var result *worker.Result
	events := run.Events()
loop:
	for {
		select {
		case e, ok := <-events:
			if !ok {
				break loop
			}
			switch e.Kind {
			case worker.KindLine, worker.KindRunning:
				fmt.Fprintln(os.Stdout, e.Line)
			case worker.KindCompleted:
				result = e.Result
			}
		case <-ctx.Done():
			slog.InfoContext(ctx, "interrupted: stopping", "name", name)
			// Shutdown terminates the run, the loop ends with its completion
			err := a.shutdown(ctx)
			for e := range events {
				if e.Kind == worker.KindCompleted {
					result = e.Result
				}
			}
			if result != nil && result.Forced {
				fmt.Fprintln(os.Stderr, "bypass was killed after", worker.DefaultGrace)
			}
			fmt.Fprintln(os.Stderr, "bypass stopped")
			return err
		}
	}

	// exited on its own
	err = a.shutdown(ctx)
	if result != nil && result.Err != nil {
		return errors.Join(fmt.Errorf("%s exited: %w", name, result.Err), err)
	}
	return err
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "profiles validates the profile file and lists its profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(config)
		if err != nil {
			return err
		}
		if err := a.ctl.LoadProfiles(cmd.Context(), config.Profiles); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "profiles: %s\n", config.Profiles)
		for _, name := range a.ctl.Names() {
			opt, _ := a.ctl.Profile(name)
			marker := " "
			if name == config.LastProfile {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-24s %s\n", marker, name, opt.Executable)
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "cleanup stops the filtering service and terminates leftover bypass processes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := guard(cmd); err != nil {
			return err
		}
		ctx := log.ContextAttrs(cmd.Context(), slog.Group("penguin",
			slog.String("cmd", "cleanup"),
			slog.Int("pid", os.Getpid()),
		))
		a, err := newApp(config)
		if err != nil {
			return err
		}
		return cleanup(ctx, a)
	},
}

func cleanup(ctx context.Context, a *app) error {
	startup := a.initializer.Start(ctx)
	var errs []error
	for err := range startup.Errors() {
		errs = append(errs, err)
	}
	<-startup.Done()
	errs = append(errs, a.shutdown(ctx))
	return errors.Join(errs...)
}
