//go:build windows

package instance

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/zhivem/penguin/internal/model"
)

type osLock struct {
	handle windows.Handle
}

func (l *Lock) acquire() error {
	name, err := windows.UTF16PtrFromString(`Local\` + l.name)
	if err != nil {
		return err
	}
	h, err := windows.CreateMutex(nil, false, name)
	if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		if h != 0 {
			_ = windows.CloseHandle(h)
		}
		return fmt.Errorf("%w: mutex %s", model.ErrAlreadyRunning, l.name)
	}
	if err != nil {
		return fmt.Errorf("creating mutex %s: %w", l.name, err)
	}
	l.os.handle = h
	return nil
}

func (l *Lock) release() error {
	h := l.os.handle
	l.os.handle = 0
	if h == 0 {
		return nil
	}
	return windows.CloseHandle(h)
}

// HolderPID is not known for a named mutex.
func (l *Lock) HolderPID() int {
	return 0
}
