package instance

import (
	"os"
	"sync"
)

// Name is the fixed name of the application lock.
const Name = "ru.github.dpipenguin.mutex"

// LockProvider guards that only one instance of the application runs.
type LockProvider interface {
	// Acquire returns model.ErrAlreadyRunning if another process holds the lock.
	Acquire() error
	// Release is idempotent.
	Release() error
}

// Lock is an OS level lock held for the lifetime of the process. A crashed
// holder releases it implicitly.
type Lock struct {
	name string
	dir  string

	mx   sync.Mutex
	held bool
	os   osLock
}

// New returns the named lock, not acquired yet. Dir is used on unix only, empty
// means the temp directory.
func New(dir, name string) *Lock {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Lock{name: name, dir: dir}
}

func (l *Lock) Acquire() error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.held {
		return nil
	}
	if err := l.acquire(); err != nil {
		return err
	}
	l.held = true
	return nil
}

func (l *Lock) Release() error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if !l.held {
		return nil
	}
	l.held = false
	return l.release()
}

func (l *Lock) IsHeld() bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.held
}
