package lifecycle

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper terminates OS processes by name, see procs.Sweeper.
type Sweeper interface {
	Sweep(ctx context.Context, names ...string) (int, error)
}

// Kind of a Notification.
type Kind int

const (
	KindInfo Kind = iota
	KindUpdate
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindInfo:
		return "info"
	case KindUpdate:
		return "update"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification is a message for the user which is not an output line of
// the child, e.g. an available update.
type Notification struct {
	Kind    Kind
	Message string
	Time    time.Time
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
