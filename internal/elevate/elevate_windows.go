//go:build windows

package elevate

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"

	"github.com/zhivem/penguin/internal/model"
)

func native() PrivilegeProvider {
	return RunAs{}
}

// RunAs asks the user for elevation with the UAC prompt.
type RunAs struct{}

func (RunAs) IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}

func (RunAs) RelaunchElevated(args []string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrElevationDenied, err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrElevationDenied, err)
	}

	verb, _ := windows.UTF16PtrFromString("runas")
	file, _ := windows.UTF16PtrFromString(self)
	params, _ := windows.UTF16PtrFromString(windows.ComposeCommandLine(args))
	dir, _ := windows.UTF16PtrFromString(cwd)

	if err := windows.ShellExecute(0, verb, file, params, dir, windows.SW_NORMAL); err != nil {
		return fmt.Errorf("%w: %w", model.ErrElevationDenied, err)
	}
	os.Exit(0)
	return nil
}
