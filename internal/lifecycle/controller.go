package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zhivem/penguin/internal/model"
	"github.com/zhivem/penguin/internal/profile"
	"github.com/zhivem/penguin/internal/worker"
)

// Controller is the application state shared by the terminal UI and the
// headless command: the active profiles, the worker and the settings.
type Controller struct {
	mx        sync.Mutex
	cfg       model.Config
	profiles  model.Profiles
	configErr error
	worker    *worker.Worker
	grace     time.Duration
	notes     chan Notification
}

// NewController returns a controller without profiles. Start fails until
// profiles are loaded.
func NewController(cfg model.Config, w *worker.Worker) *Controller {
	return &Controller{
		cfg:       cfg,
		worker:    w,
		grace:     worker.DefaultGrace,
		configErr: fmt.Errorf("%w: no profiles loaded", model.ErrConfiguration),
		notes:     make(chan Notification, 16),
	}
}

// WithGrace changes the grace period of Stop and LoadProfiles.
func (c *Controller) WithGrace(d time.Duration) *Controller {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.grace = d
	return c
}

func (c *Controller) Config() model.Config {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.cfg
}

func (c *Controller) Worker() *worker.Worker {
	return c.worker
}

// ConfigErr returns the error of the last profile load, nil if valid.
func (c *Controller) ConfigErr() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.configErr
}

// Names returns the sorted profile names.
func (c *Controller) Names() []string {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.profiles.Names()
}

func (c *Controller) Profile(name string) (model.ScriptOption, bool) {
	c.mx.Lock()
	defer c.mx.Unlock()
	opt, ok := c.profiles[name]
	return opt, ok
}

// LoadProfiles stops the active run, waits for its exit and replaces the
// profiles with the content of path. A failed load drops the profiles and
// keeps Start disabled until the next successful load.
func (c *Controller) LoadProfiles(ctx context.Context, path string) error {
	c.mx.Lock()
	defer c.mx.Unlock()

	if run := c.worker.Current(); run != nil {
		slog.InfoContext(ctx, "loading profiles: stopping active run", "name", run.Name)
		if _, err := run.TerminateAndWait(ctx, c.grace); err != nil {
			return err
		}
	}
	return c.load(ctx, path)
}

// ReloadProfiles replaces the profiles only if nothing runs, it returns
// model.ErrAlreadyRunning otherwise.
func (c *Controller) ReloadProfiles(ctx context.Context, path string) error {
	c.mx.Lock()
	defer c.mx.Unlock()

	if run := c.worker.Current(); run != nil {
		return fmt.Errorf("reloading profiles: %q is active: %w", run.Name, model.ErrAlreadyRunning)
	}
	return c.load(ctx, path)
}

func (c *Controller) load(ctx context.Context, path string) error {
	profiles, err := profile.Load(path)
	if err != nil {
		c.profiles = nil
		c.configErr = err
		slog.ErrorContext(ctx, "loading profiles", "path", path, "error", err)
		return err
	}
	c.profiles = profiles
	c.configErr = nil
	c.cfg.Profiles = path
	slog.InfoContext(ctx, "profiles loaded", "path", path, "count", len(profiles))
	return nil
}

// SetProfiles replaces the profiles while nothing runs.
func (c *Controller) SetProfiles(p model.Profiles) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if run := c.worker.Current(); run != nil {
		return fmt.Errorf("replacing profiles: %q is active: %w", run.Name, model.ErrAlreadyRunning)
	}
	if len(p) == 0 {
		c.profiles = nil
		c.configErr = fmt.Errorf("%w: no profile sections", model.ErrConfiguration)
		return c.configErr
	}
	c.profiles = p
	c.configErr = nil
	return nil
}

// Start starts the profile name on the worker.
func (c *Controller) Start(ctx context.Context, name string) (*worker.Run, error) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.configErr != nil {
		return nil, c.configErr
	}
	opt, ok := c.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownProfile, name)
	}
	if err := profile.CheckRequires(opt); err != nil {
		return nil, err
	}

	cmd := worker.Command{
		Path: opt.Executable,
		Args: opt.Args,
		Dir:  opt.Dir,
	}
	run, err := c.worker.Start(ctx, cmd, name, opt.CaptureOutput)
	if err != nil {
		return nil, err
	}
	c.cfg.LastProfile = name
	return run, nil
}

// Stop terminates the active run and waits for its exit, killing it after
// the grace period. Reports whether the kill was needed.
func (c *Controller) Stop(ctx context.Context) (bool, error) {
	run := c.worker.Current()
	if run == nil {
		return false, nil
	}
	c.mx.Lock()
	grace := c.grace
	c.mx.Unlock()
	return run.TerminateAndWait(ctx, grace)
}

// Notify posts n without blocking, it is dropped if nobody reads.
func (c *Controller) Notify(n Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	select {
	case c.notes <- n:
	default:
		slog.Warn("notification dropped", "kind", n.Kind, "message", n.Message)
	}
}

func (c *Controller) Notifications() <-chan Notification {
	return c.notes
}
