//go:build !windows

package svcctl

import (
	"log/slog"
)

func newDefault(name string) ServiceController {
	slog.Debug("no stop command configured, service control is disabled", "service", name)
	return Noop{}
}
