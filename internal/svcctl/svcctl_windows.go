//go:build windows

package svcctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/zhivem/penguin/internal/model"
)

func newDefault(name string) ServiceController {
	return SCMController{Name: name}
}

// SCMController stops the service through the service control manager.
type SCMController struct {
	Name string
}

func (c SCMController) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	m, err := mgr.Connect()
	if err != nil {
		return c.wrap(err)
	}
	defer func() {
		_ = m.Disconnect()
	}()

	s, err := m.OpenService(c.Name)
	if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
		slog.DebugContext(ctx, "service does not exist", "service", c.Name)
		return nil
	}
	if err != nil {
		return c.wrap(err)
	}
	defer s.Close()

	status, err := s.Control(svc.Stop)
	if errors.Is(err, windows.ERROR_SERVICE_NOT_ACTIVE) {
		slog.DebugContext(ctx, "service not running", "service", c.Name)
		return nil
	}
	if err != nil {
		return c.wrap(err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for status.State != svc.Stopped {
		select {
		case <-ctx.Done():
			return fmt.Errorf("stopping service %s: state %d: %w", c.Name, status.State, ctx.Err())
		case <-ticker.C:
		}
		status, err = s.Query()
		if err != nil {
			return c.wrap(err)
		}
	}
	slog.InfoContext(ctx, "service stopped", "service", c.Name)
	return nil
}

func (c SCMController) wrap(err error) error {
	if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
		return fmt.Errorf("stopping service %s: %w: %w", c.Name, model.ErrAccessDenied, err)
	}
	return fmt.Errorf("stopping service %s: %w", c.Name, err)
}
