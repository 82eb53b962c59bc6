//go:build unix

package elevate

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/zhivem/penguin/internal/model"
)

func native() PrivilegeProvider {
	return Sudo{}
}

// Sudo replaces the process image with sudo running the same executable.
type Sudo struct{}

func (Sudo) IsElevated() bool {
	return unix.Geteuid() == 0
}

func (Sudo) RelaunchElevated(args []string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrElevationDenied, err)
	}
	sudo, err := exec.LookPath("sudo")
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrElevationDenied, err)
	}
	err = unix.Exec(sudo, sudoArgv(sudo, self, args), os.Environ())
	return fmt.Errorf("%w: exec %s: %w", model.ErrElevationDenied, sudo, err)
}

// sudoArgv keeps the settings path across sudo, which resets the
// environment by default. args are passed as they are.
func sudoArgv(sudo, self string, args []string) []string {
	argv := []string{sudo, "--preserve-env=" + model.ConfigEnv, "--", self}
	return append(argv, args...)
}
