package worker

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// maxLine is the longest output line delivered as one event.
const maxLine = 1024 * 1024

// Handle identifies the OS process of a run.
type Handle struct {
	PID  int
	Name string
}

type Result struct {
	Name       string
	Path       string
	Args       []string
	PID        int
	Started    time.Time
	Stopped    time.Time
	State      *os.ProcessState
	ExitCode   int
	Terminated bool // Terminate was called
	Forced     bool // Kill was called
	// Err is the failure reason of an exit nobody asked for, nil otherwise.
	Err error
}

// Run is a single execution started by Worker.Start. Its event channel and
// Done channel belong to this execution only; a later Start creates a new Run.
type Run struct {
	ID      uuid.UUID
	Name    string
	Capture bool

	worker   *Worker
	events   *queue
	done     chan struct{}
	readDone chan struct{}

	mx          sync.Mutex
	proc        *os.Process
	handle      Handle
	terminating bool
	killed      bool
	finished    bool
	result      Result
}

func newRun(w *Worker, name string, capture bool) *Run {
	return &Run{
		ID:       uuid.New(),
		Name:     name,
		Capture:  capture,
		worker:   w,
		events:   newQueue(),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
		result:   Result{Name: name},
	}
}

// Events returns the ordered event channel of the run. Only one consumer is
// supported, every call returns the same channel. The channel is closed
// right after the KindCompleted event. A consumer must read until the
// channel is closed or call Discard.
func (r *Run) Events() <-chan Event {
	return r.events.subscribe()
}

// Discard drops the undelivered events, later ones included, and closes the
// event channel. The process itself is not affected.
func (r *Run) Discard() {
	r.events.discard()
}

// Done is closed once the exit of the process was observed.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

func (r *Run) Handle() Handle {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.handle
}

// Result returns the result, complete once Done is closed.
func (r *Run) Result() Result {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.result
}

// Terminate asks the process to stop. Calling it again or after the exit
// does nothing.
func (r *Run) Terminate() {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.finished || r.terminating {
		return
	}
	r.terminating = true
	r.worker.transition(r, StateTerminating)
	err := stopProcess(r.proc)
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Warn("sending stop signal failed", "name", r.Name, "pid", r.handle.PID, "error", err)
	}
}

// Kill kills the process unconditionally, at most once.
func (r *Run) Kill() error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.finished || r.killed {
		return nil
	}
	r.killed = true
	if !r.terminating {
		r.worker.transition(r, StateTerminating)
	}
	err := killProcess(r.proc)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// TerminateAndWait stops the process gracefully and waits at most grace for
// it to exit. Then it kills the process and waits until the exit is
// observed or ctx is done. Returns true if the kill was needed.
func (r *Run) TerminateAndWait(ctx context.Context, grace time.Duration) (bool, error) {
	r.Terminate()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-r.done:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
	}

	slog.WarnContext(ctx, "process did not stop in time: killing", "name", r.Name, "grace", grace)
	if err := r.Kill(); err != nil {
		slog.ErrorContext(ctx, "killing process failed", "name", r.Name, "error", err)
	}

	select {
	case <-r.done:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

func (r *Run) read(ctx context.Context, src io.Reader, enc encoding.Encoding, filter OutputFilter) {
	defer close(r.readDone)
	if enc != nil {
		src = transform.NewReader(src, enc.NewDecoder())
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	scanner.Split(scanLines)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch filter.Classify(line) {
		case LineNoise:
			continue
		case LineRunning:
			r.events.push(Event{RunID: r.ID, Kind: KindRunning, Name: r.Name, Line: RunningNotice})
		default:
			r.events.push(Event{RunID: r.ID, Kind: KindLine, Name: r.Name, Line: line})
		}
	}
	err := scanner.Err()
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
		slog.ErrorContext(ctx, "reading process output", "name", r.Name, "error", err)
		// the child blocks on a full pipe otherwise
		_, _ = io.Copy(io.Discard, src)
	}
}

// scanLines is bufio.ScanLines which splits lines longer than maxLine into
// maxLine sized chunks instead of failing.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	advance, token, err := bufio.ScanLines(data, atEOF)
	if advance == 0 && token == nil && err == nil && len(data) >= maxLine {
		return maxLine, data[:maxLine], nil
	}
	return advance, token, err
}
