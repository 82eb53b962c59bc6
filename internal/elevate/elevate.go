package elevate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zhivem/penguin/internal/model"
)

// PrivilegeProvider checks and obtains the administrative rights needed to
// divert packets.
type PrivilegeProvider interface {
	IsElevated() bool
	// RelaunchElevated starts the current executable with args elevated and
	// ends the current process. It returns only on failure.
	RelaunchElevated(args []string) error
}

// New returns the provider for the elevation mode of the settings.
func New(mode string) PrivilegeProvider {
	if mode == model.ElevationNone {
		return None{}
	}
	return native()
}

// None treats the process as elevated.
type None struct{}

func (None) IsElevated() bool { return true }

func (None) RelaunchElevated([]string) error { return nil }

// Ensure returns nil if the process is elevated. Otherwise it relaunches the
// executable with args, which does not return on success.
func Ensure(ctx context.Context, p PrivilegeProvider, args []string) error {
	if p.IsElevated() {
		return nil
	}
	slog.InfoContext(ctx, "administrative rights required: relaunching", "args", args)
	err := p.RelaunchElevated(args)
	if err == nil {
		// provider which does not replace the process
		return nil
	}
	if errors.Is(err, model.ErrElevationDenied) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrElevationDenied, err)
}
