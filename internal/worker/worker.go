package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/text/encoding"

	"github.com/zhivem/penguin/internal/model"
)

// DefaultGrace is how long TerminateAndWait waits for a graceful exit
// before it kills the process.
const DefaultGrace = 5000 * time.Millisecond

// drainTimeout bounds waiting for the output reader after the child exits,
// a grandchild may still keep the pipe open.
const drainTimeout = 2 * time.Second

type Command struct {
	Path string
	Args []string
	Env  []string // nil inherits the environment
	Dir  string
}

// SpawnError is returned by Start when the OS refuses to start the process.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() []error {
	return []error{model.ErrSpawnFailed, e.Err}
}

// Worker owns at most one running child process.
type Worker struct {
	mx      sync.Mutex
	state   State
	run     *Run
	enc     encoding.Encoding
	filter  OutputFilter
	onState StateFunc
}

func NewWorker() *Worker {
	return &Worker{
		state:  StateIdle,
		filter: DefaultFilter(),
	}
}

// WithEncoding sets the character encoding of the child output, nil means
// the raw bytes are used.
func (w *Worker) WithEncoding(enc encoding.Encoding) *Worker {
	w.mx.Lock()
	defer w.mx.Unlock()
	w.enc = enc
	return w
}

func (w *Worker) WithFilter(f OutputFilter) *Worker {
	w.mx.Lock()
	defer w.mx.Unlock()
	w.filter = f
	return w
}

// OnState registers an observer of the state transitions.
func (w *Worker) OnState(fn StateFunc) *Worker {
	w.mx.Lock()
	defer w.mx.Unlock()
	w.onState = fn
	return w
}

func (w *Worker) State() State {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.state
}

// Current returns the active run or nil.
func (w *Worker) Current() *Run {
	w.mx.Lock()
	defer w.mx.Unlock()
	if !w.state.IsActive() {
		return nil
	}
	return w.run
}

// Start validates and spawns the command and returns immediately. Output
// streaming and waiting for the exit happen in own goroutines, the result is
// delivered as the last event of Run.Events. Returns model.ErrAlreadyRunning
// if a run is active. Preflight failures match model.ErrSpawnFailed and the
// specific preflight error, OS failures are returned as *SpawnError.
func (w *Worker) Start(ctx context.Context, proto Command, name string, capture bool) (*Run, error) {
	w.mx.Lock()
	defer w.mx.Unlock()
	if w.state.IsActive() {
		return nil, fmt.Errorf("worker %q: %w", w.run.Name, model.ErrAlreadyRunning)
	}

	path, err := Preflight(proto.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrSpawnFailed, err)
	}

	if w.state != StateIdle {
		w.setState(StateIdle)
	}
	w.setState(StateStarting)
	run := newRun(w, name, capture)
	run.result.Path = path
	run.result.Args = append([]string(nil), proto.Args...)

	cmd := exec.Command(path, proto.Args...)
	cmd.Env = proto.Env
	cmd.Dir = proto.Dir
	setProcAttr(cmd)

	var pr, pw *os.File
	if capture {
		pr, pw, err = os.Pipe()
		if err != nil {
			w.setState(StateFailed)
			w.setState(StateIdle)
			return nil, &SpawnError{Path: path, Err: err}
		}
		// the same *os.File for both keeps stdout and stderr in one ordered stream
		cmd.Stdout = pw
		cmd.Stderr = pw
	}

	run.result.Started = time.Now().UTC()
	if err := cmd.Start(); err != nil {
		if pr != nil {
			_ = pr.Close()
			_ = pw.Close()
		}
		slog.ErrorContext(ctx, "spawning process failed", "name", name, "path", path, "error", err)
		w.setState(StateFailed)
		w.setState(StateIdle)
		return nil, &SpawnError{Path: path, Err: err}
	}
	if pw != nil {
		_ = pw.Close()
	}

	run.proc = cmd.Process
	run.handle = Handle{PID: cmd.Process.Pid, Name: name}
	run.result.PID = cmd.Process.Pid
	w.run = run
	w.setState(StateRunning)
	slog.InfoContext(ctx, "process started", "name", name, "pid", run.handle.PID, "run_id", run.ID)

	if capture {
		go run.read(ctx, pr, w.enc, w.filter)
	} else {
		close(run.readDone)
	}
	go w.wait(ctx, cmd, run, pr)
	return run, nil
}

// Terminate sends the graceful stop signal to the active run. It is a no-op
// if there is nothing running.
func (w *Worker) Terminate() {
	if run := w.Current(); run != nil {
		run.Terminate()
	}
}

// Kill kills the active run unconditionally.
func (w *Worker) Kill() error {
	if run := w.Current(); run != nil {
		return run.Kill()
	}
	return nil
}

func (w *Worker) wait(ctx context.Context, cmd *exec.Cmd, run *Run, pr *os.File) {
	err := cmd.Wait()
	stopped := time.Now().UTC()

	if pr != nil {
		select {
		case <-run.readDone:
		case <-time.After(drainTimeout):
			slog.WarnContext(ctx, "output still open after exit: closing", "name", run.Name)
		}
		_ = pr.Close()
		<-run.readDone
	}

	run.mx.Lock()
	run.finished = true
	run.result.Stopped = stopped
	run.result.State = cmd.ProcessState
	run.result.ExitCode = cmd.ProcessState.ExitCode()
	run.result.Terminated = run.terminating
	run.result.Forced = run.killed
	state := StateStopped
	if err != nil && !run.terminating && !run.killed {
		run.result.Err = err
		state = StateFailed
	}
	w.transition(run, state)
	result := run.result
	run.mx.Unlock()

	if state == StateFailed {
		slog.ErrorContext(ctx, "process failed", "name", run.Name, "pid", run.handle.PID, "error", err)
	} else {
		slog.InfoContext(ctx, "process finished", "name", run.Name, "pid", run.handle.PID, "exit_code", result.ExitCode)
	}

	run.events.push(Event{RunID: run.ID, Kind: KindCompleted, Name: run.Name, Result: &result})
	close(run.done)
	run.events.close()
}

// transition changes the state only if run is still the current one.
func (w *Worker) transition(run *Run, to State) {
	w.mx.Lock()
	defer w.mx.Unlock()
	if w.run != run {
		return
	}
	w.setState(to)
}

func (w *Worker) setState(to State) {
	from := w.state
	w.state = to
	if w.onState != nil && from != to {
		w.onState(from, to)
	}
}
