package lifecycle_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhivem/penguin/internal/lifecycle"
	"github.com/zhivem/penguin/internal/model"
	"github.com/zhivem/penguin/internal/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func lookSh(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipped, tests rely on posix shell and signals")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	return sh
}

// recorder keeps the order of the cleanup steps.
type recorder struct {
	mx    sync.Mutex
	steps []string
}

func (r *recorder) add(step string) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.steps = append(r.steps, step)
}

func (r *recorder) list() []string {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]string(nil), r.steps...)
}

type fakeService struct {
	rec *recorder
	err error
}

func (f fakeService) Stop(context.Context) error {
	f.rec.add("service")
	return f.err
}

type fakeSweeper struct {
	rec   *recorder
	count int
	err   error
}

func (f fakeSweeper) Sweep(_ context.Context, names ...string) (int, error) {
	for _, n := range names {
		f.rec.add("sweep " + n)
	}
	return f.count, f.err
}

func writeProfiles(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "default.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func drain(run *worker.Run) []worker.Event {
	var ret []worker.Event
	for e := range run.Events() {
		ret = append(ret, e)
	}
	return ret
}

func TestInitializer(t *testing.T) {
	t.Parallel()

	t.Run("clean", func(t *testing.T) {
		var rec recorder
		initializer := lifecycle.Initializer{
			Sweeper:   fakeSweeper{rec: &rec, count: 1},
			Service:   fakeService{rec: &rec},
			Processes: []string{"winws.exe", "goodbyedpi.exe"},
		}
		r := initializer.Start(t.Context())
		var errs []error
		for err := range r.Errors() {
			errs = append(errs, err)
		}
		<-r.Done()
		require.Empty(t, errs)
		require.Equal(t, []string{"sweep winws.exe", "sweep goodbyedpi.exe", "service"}, rec.list())
	})

	t.Run("best effort", func(t *testing.T) {
		var rec recorder
		initializer := lifecycle.Initializer{
			Sweeper:   fakeSweeper{rec: &rec, err: model.ErrAccessDenied},
			Service:   fakeService{rec: &rec, err: errors.New("unexpected service state")},
			Processes: []string{"winws.exe"},
		}
		r := initializer.Start(t.Context())
		<-r.Done()
		var errs []error
		for err := range r.Errors() {
			errs = append(errs, err)
		}
		require.Len(t, errs, 2)
		require.ErrorIs(t, errs[0], model.ErrAccessDenied)
		require.Equal(t, []string{"sweep winws.exe", "service"}, rec.list())
	})
}

func TestOrchestrator_Idle(t *testing.T) {
	t.Parallel()
	var rec recorder
	o := lifecycle.Orchestrator{
		Worker:  worker.NewWorker(),
		Service: fakeService{rec: &rec},
		Sweeper: fakeSweeper{rec: &rec},
		Primary: "winws.exe",
	}
	require.NoError(t, o.Shutdown(t.Context()))
	require.Equal(t, []string{"service", "sweep winws.exe"}, rec.list())
}

// a child which ignores the stop signal is killed after the grace period,
// then the service is stopped and the processes swept, in this order
func TestOrchestrator_ForcedShutdown(t *testing.T) {
	t.Parallel()
	sh := lookSh(t)

	var rec recorder
	var logs bytes.Buffer
	w := worker.NewWorker().OnState(func(_, to worker.State) {
		if to == worker.StateStopped {
			rec.add("worker stopped")
		}
	})
	run, err := w.Start(t.Context(), worker.Command{
		Path: sh,
		Args: []string{"-c", "trap '' TERM; echo ready; while :; do sleep 0.1; done"},
	}, "stubborn", true)
	require.NoError(t, err)
	e := <-run.Events()
	require.Equal(t, "ready", e.Line)

	serviceErr := errors.New("service stop failed")
	o := lifecycle.Orchestrator{
		Worker:  w,
		Service: fakeService{rec: &rec, err: serviceErr},
		Sweeper: fakeSweeper{rec: &rec, count: 1},
		Primary: "winws.exe",
		Grace:   300 * time.Millisecond,
		Log:     slog.New(slog.NewTextHandler(&logs, nil)),
	}
	err = o.Shutdown(t.Context())
	require.ErrorIs(t, err, serviceErr)
	require.Equal(t, []string{"worker stopped", "service", "sweep winws.exe"}, rec.list())

	events := drain(run)
	last := events[len(events)-1]
	require.Equal(t, worker.KindCompleted, last.Kind)
	require.True(t, last.Result.Forced)

	out := logs.String()
	require.Contains(t, out, "shutdown: stopping worker")
	require.Contains(t, out, "forced=true")
	require.Contains(t, out, "bypass stopped")
}

func TestController(t *testing.T) {
	t.Parallel()
	sh := lookSh(t)

	path := writeProfiles(t, `
[SCRIPT_OPTIONS]

[Echo]
executable = `+sh+`
args = -c 'echo hello; echo "Loading hostlist list.txt"'

[Sleep]
executable = `+sh+`
args = -c 'sleep 30'

[Missing]
executable = `+sh+`
args = -c 'exit 0'
requires = bin/quic_initial_www_google_com.bin
`)

	ctl := lifecycle.NewController(model.Config{}, worker.NewWorker()).WithGrace(2 * time.Second)

	_, err := ctl.Start(t.Context(), "Echo")
	require.ErrorIs(t, err, model.ErrConfiguration)

	require.NoError(t, ctl.LoadProfiles(t.Context(), path))
	require.NoError(t, ctl.ConfigErr())
	require.Equal(t, []string{"Echo", "Missing", "Sleep"}, ctl.Names())
	require.Equal(t, path, ctl.Config().Profiles)

	_, err = ctl.Start(t.Context(), "Nope")
	require.ErrorIs(t, err, model.ErrUnknownProfile)

	_, err = ctl.Start(t.Context(), "Missing")
	require.ErrorIs(t, err, model.ErrMissingPrerequisite)

	run, err := ctl.Start(t.Context(), "Echo")
	require.NoError(t, err)
	events := drain(run)
	require.Len(t, events, 2)
	require.Equal(t, "hello", events[0].Line)
	require.Equal(t, worker.KindCompleted, events[1].Kind)
	require.Equal(t, "Echo", ctl.Config().LastProfile)

	t.Run("stop", func(t *testing.T) {
		run, err := ctl.Start(t.Context(), "Sleep")
		require.NoError(t, err)
		_, err = ctl.Start(t.Context(), "Echo")
		require.ErrorIs(t, err, model.ErrAlreadyRunning)

		forced, err := ctl.Stop(t.Context())
		require.NoError(t, err)
		require.False(t, forced)
		drain(run)
		require.Equal(t, worker.StateStopped, ctl.Worker().State())

		forced, err = ctl.Stop(t.Context())
		require.NoError(t, err)
		require.False(t, forced)
	})

	t.Run("reload while running", func(t *testing.T) {
		run, err := ctl.Start(t.Context(), "Sleep")
		require.NoError(t, err)

		err = ctl.ReloadProfiles(t.Context(), path)
		require.ErrorIs(t, err, model.ErrAlreadyRunning)
		err = ctl.SetProfiles(model.Profiles{"x": {Name: "x"}})
		require.ErrorIs(t, err, model.ErrAlreadyRunning)

		// loading a new configuration stops the active run first
		require.NoError(t, ctl.LoadProfiles(t.Context(), path))
		drain(run)
		require.Nil(t, ctl.Worker().Current())
		require.NoError(t, ctl.ReloadProfiles(t.Context(), path))
	})

	t.Run("invalid profiles disable start", func(t *testing.T) {
		bad := writeProfiles(t, "[A]\nexecutable = a\nargs = b\n")
		require.ErrorIs(t, ctl.ReloadProfiles(t.Context(), bad), model.ErrConfiguration)
		require.Empty(t, ctl.Names())
		_, err := ctl.Start(t.Context(), "Echo")
		require.ErrorIs(t, err, model.ErrConfiguration)

		require.NoError(t, ctl.LoadProfiles(t.Context(), path))
		run, err := ctl.Start(t.Context(), "Echo")
		require.NoError(t, err)
		drain(run)
	})
}

func TestControllerNotify(t *testing.T) {
	t.Parallel()
	ctl := lifecycle.NewController(model.Config{}, worker.NewWorker())
	ctl.Notify(lifecycle.Notification{Kind: lifecycle.KindUpdate, Message: "penguin 1.1 is available"})
	n := <-ctl.Notifications()
	require.Equal(t, lifecycle.KindUpdate, n.Kind)
	require.Equal(t, "update", n.Kind.String())
	require.False(t, n.Time.IsZero())
}
