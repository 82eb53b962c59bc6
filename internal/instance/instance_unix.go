//go:build unix

package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/zhivem/penguin/internal/model"
)

type osLock struct {
	file *os.File
}

func (l *Lock) lockPath() string {
	return filepath.Join(l.dir, l.name+".lock")
}

func (l *Lock) pidPath() string {
	return filepath.Join(l.dir, l.name+".pid")
}

func (l *Lock) acquire() error {
	path := l.lockPath()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("opening lock file %s: %w", path, err)
	}

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return fmt.Errorf("%w: lock %s held by pid %d", model.ErrAlreadyRunning, path, l.HolderPID())
		}
		return fmt.Errorf("locking %s: %w", path, err)
	}

	// for diagnostics only, the flock is the lock
	_ = os.WriteFile(l.pidPath(), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600)
	l.os.file = f
	return nil
}

func (l *Lock) release() error {
	_ = os.Remove(l.pidPath())
	f := l.os.file
	l.os.file = nil
	if f == nil {
		return nil
	}
	err := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return errors.Join(err, f.Close())
}

// HolderPID returns the PID recorded by the lock holder, 0 if unknown.
func (l *Lock) HolderPID() int {
	data, err := os.ReadFile(l.pidPath())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
