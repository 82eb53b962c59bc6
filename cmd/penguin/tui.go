package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhivem/penguin/internal/lifecycle"
	"github.com/zhivem/penguin/internal/log"
	"github.com/zhivem/penguin/internal/model"
	"github.com/zhivem/penguin/internal/worker"
)

// maxConsoleLines bounds the console history.
const maxConsoleLines = 100

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	profileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	runningBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Background(lipgloss.Color("22")).
			Padding(0, 1)

	stoppedBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Background(lipgloss.Color("238")).
			Padding(0, 1)

	failedBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Background(lipgloss.Color("52")).
			Padding(0, 1)

	consoleStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("241")).
			Padding(0, 1)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

type (
	initDoneMsg struct{ errs []error }
	// loadedMsg ends a profile (re)load.
	loadedMsg struct {
		err error
		hot bool
	}
	startedMsg struct {
		name string
		run  *worker.Run
		err  error
	}
	stoppedMsg struct {
		forced bool
		err    error
	}
	eventMsg struct {
		worker.Event
		run *worker.Run
	}
	// eventsClosedMsg is sent once the event channel of a run is closed.
	eventsClosedMsg struct{ id uuid.UUID }
	noteMsg         struct{ lifecycle.Notification }
	// fileChangedMsg comes from the profile file watcher.
	fileChangedMsg struct{}
)

type consoleLine struct {
	text  string
	style *lipgloss.Style
}

type tuiModel struct {
	ctx  context.Context
	app  *app
	save func(name string)

	names    []string
	cursor   int
	lines    []consoleLine
	state    worker.State
	run      *worker.Run
	runID    uuid.UUID
	runName  string
	ready    bool // startup cleanup finished
	busy     bool // start, stop or load in progress
	pending  bool // hot reload postponed until the run ends
	configOK bool
	width    int
	height   int
}

func newTUIModel(ctx context.Context, a *app, save func(string)) tuiModel {
	return tuiModel{
		ctx:   ctx,
		app:   a,
		save:  save,
		state: worker.StateIdle,
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(
		m.startupCmd(),
		m.loadCmd(false),
		m.noteCmd(),
	)
}

func (m tuiModel) startupCmd() tea.Cmd {
	a := m.app
	ctx := m.ctx
	return func() tea.Msg {
		r := a.initializer.Start(ctx)
		var errs []error
		for err := range r.Errors() {
			errs = append(errs, err)
		}
		<-r.Done()
		return initDoneMsg{errs: errs}
	}
}

// loadCmd loads the profile file. A hot reload is refused while a run is
// active, an explicit one stops the run first.
func (m tuiModel) loadCmd(hot bool) tea.Cmd {
	ctl := m.app.ctl
	ctx := m.ctx
	path := m.app.cfg.Profiles
	return func() tea.Msg {
		var err error
		if hot {
			err = ctl.ReloadProfiles(ctx, path)
		} else {
			err = ctl.LoadProfiles(ctx, path)
		}
		return loadedMsg{err: err, hot: hot}
	}
}

func (m tuiModel) startCmd(name string) tea.Cmd {
	ctl := m.app.ctl
	ctx := m.ctx
	save := m.save
	return func() tea.Msg {
		run, err := ctl.Start(ctx, name)
		if err == nil && save != nil {
			save(name)
		}
		return startedMsg{name: name, run: run, err: err}
	}
}

func (m tuiModel) stopCmd() tea.Cmd {
	ctl := m.app.ctl
	ctx := m.ctx
	return func() tea.Msg {
		forced, err := ctl.Stop(ctx)
		return stoppedMsg{forced: forced, err: err}
	}
}

// eventCmd waits for the next event of run. Only one is outstanding per run
// so the order of the output is kept.
func eventCmd(run *worker.Run) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-run.Events()
		if !ok {
			return eventsClosedMsg{id: run.ID}
		}
		return eventMsg{Event: e, run: run}
	}
}

func (m tuiModel) noteCmd() tea.Cmd {
	ch := m.app.ctl.Notifications()
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case n := <-ch:
			return noteMsg{n}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		m, cmd = m.handleKey(msg)
	case initDoneMsg:
		m.ready = true
		for _, err := range msg.errs {
			m = m.appendLine(fmt.Sprintf("startup cleanup: %v", err), &errorStyle)
		}
		m, cmd = m.autorun()
	case loadedMsg:
		m, cmd = m.handleLoaded(msg)
		if !msg.hot {
			// the file may have changed after it was read
			var reload tea.Cmd
			m, reload = m.flushPending()
			cmd = tea.Batch(cmd, reload)
		}
	case startedMsg:
		m.busy = false
		if msg.err != nil {
			m = m.appendLine(fmt.Sprintf("starting %s: %v", msg.name, msg.err), &errorStyle)
			m, cmd = m.flushPending()
			break
		}
		// events of a previous run are ignored from now on
		m.run = msg.run
		m.runID = msg.run.ID
		m.runName = msg.name
		m.lines = nil
		m = m.appendLine("starting "+msg.name, nil)
		cmd = eventCmd(msg.run)
	case eventMsg:
		m = m.handleEvent(msg.Event)
		// keep reading, a stale run is drained too
		cmd = eventCmd(msg.run)
	case eventsClosedMsg:
		if msg.id == m.runID {
			m, cmd = m.flushPending()
		}
	case stoppedMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			m = m.appendLine(fmt.Sprintf("stopping: %v", msg.err), &errorStyle)
		case msg.forced:
			m = m.appendLine(fmt.Sprintf("bypass did not stop in %s and was killed", worker.DefaultGrace), &errorStyle)
		}
		m, cmd = m.flushPending()
	case noteMsg:
		style := &noticeStyle
		if msg.Kind == lifecycle.KindError {
			style = &errorStyle
		}
		m = m.appendLine(msg.Message, style)
		cmd = m.noteCmd()
	case fileChangedMsg:
		if m.busy {
			m.pending = true
			break
		}
		cmd = m.loadCmd(true)
	}
	m.state = m.app.ctl.Worker().State()
	return m, cmd
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tuiModel, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.names)-1 {
			m.cursor++
		}
	case "enter", "s":
		if m.busy || !m.ready || len(m.names) == 0 {
			return m, nil
		}
		if m.state.IsActive() {
			m = m.appendLine("stop the running profile first", &errorStyle)
			return m, nil
		}
		m.busy = true
		return m, m.startCmd(m.names[m.cursor])
	case "x":
		if m.busy || !m.state.IsActive() {
			return m, nil
		}
		m.busy = true
		m = m.appendLine("stopping "+m.runName, nil)
		return m, m.stopCmd()
	case "r":
		if m.busy {
			return m, nil
		}
		m.busy = true
		m = m.appendLine("loading "+m.app.cfg.Profiles, nil)
		return m, m.loadCmd(false)
	case "c":
		m.lines = nil
	}
	return m, nil
}

func (m tuiModel) handleLoaded(msg loadedMsg) (tuiModel, tea.Cmd) {
	if !msg.hot {
		m.busy = false
	}
	if msg.err != nil {
		if msg.hot && errors.Is(msg.err, model.ErrAlreadyRunning) {
			m.pending = true
			m = m.appendLine("profile file changed, it is reloaded once the profile stops", nil)
			return m, nil
		}
		m.configOK = false
		m.names = nil
		m.cursor = 0
		m = m.appendLine(fmt.Sprintf("profiles: %v", msg.err), &errorStyle)
		return m, nil
	}

	selected := ""
	if m.cursor < len(m.names) {
		selected = m.names[m.cursor]
	}
	m.configOK = true
	m.names = m.app.ctl.Names()
	m.cursor = max(0, slices.Index(m.names, selected))
	if selected == "" {
		if i := slices.Index(m.names, m.app.cfg.LastProfile); i >= 0 {
			m.cursor = i
		}
	}
	if msg.hot {
		m = m.appendLine("profiles reloaded", &noticeStyle)
	}
	return m.autorun()
}

// autorun starts the last used profile once both the startup cleanup and
// the first load are done.
func (m tuiModel) autorun() (tuiModel, tea.Cmd) {
	cfg := m.app.cfg
	if !m.ready || !m.configOK || !cfg.IsAutorun() || cfg.LastProfile == "" {
		return m, nil
	}
	if m.busy || m.state.IsActive() || m.runID != uuid.Nil {
		return m, nil
	}
	if !slices.Contains(m.names, cfg.LastProfile) {
		return m, nil
	}
	m.busy = true
	return m, m.startCmd(cfg.LastProfile)
}

// flushPending reloads a postponed file change once nothing is in progress.
func (m tuiModel) flushPending() (tuiModel, tea.Cmd) {
	if !m.pending || m.busy || m.app.ctl.Worker().State().IsActive() {
		return m, nil
	}
	m.pending = false
	return m, m.loadCmd(true)
}

func (m tuiModel) handleEvent(e worker.Event) tuiModel {
	if e.RunID != m.runID {
		return m
	}
	switch e.Kind {
	case worker.KindLine:
		m = m.appendLine(e.Line, nil)
	case worker.KindRunning:
		m = m.appendLine(e.Line, &noticeStyle)
	case worker.KindCompleted:
		res := e.Result
		switch {
		case res.Err != nil:
			m = m.appendLine(fmt.Sprintf("%s failed: %v", e.Name, res.Err), &errorStyle)
		default:
			m = m.appendLine("bypass stopped", nil)
		}
	}
	return m
}

func (m tuiModel) appendLine(text string, style *lipgloss.Style) tuiModel {
	m.lines = append(m.lines, consoleLine{text: text, style: style})
	if n := len(m.lines) - maxConsoleLines; n > 0 {
		m.lines = slices.Delete(m.lines, 0, n)
	}
	return m
}

func (m tuiModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("penguin"))
	b.WriteString("  ")
	b.WriteString(m.badge())
	b.WriteString("\n\n")

	if len(m.names) == 0 {
		b.WriteString(errorStyle.Render("no profiles loaded"))
		b.WriteString("\n")
	}
	for i, name := range m.names {
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + name))
		} else {
			b.WriteString(profileStyle.Render("  " + name))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	visible := m.lines
	if h := m.consoleHeight(); h > 0 && len(visible) > h {
		visible = visible[len(visible)-h:]
	}
	var console strings.Builder
	for i, l := range visible {
		if i > 0 {
			console.WriteString("\n")
		}
		if l.style != nil {
			console.WriteString(l.style.Render(l.text))
		} else {
			console.WriteString(l.text)
		}
	}
	style := consoleStyle
	if m.width > 4 {
		style = style.Width(m.width - 2)
	}
	b.WriteString(style.Render(console.String()))
	b.WriteString("\n")
	b.WriteString(m.help())
	return b.String()
}

func (m tuiModel) consoleHeight() int {
	if m.height == 0 {
		return 0
	}
	// title, blank lines, profiles, border and help
	return max(1, m.height-len(m.names)-7)
}

func (m tuiModel) badge() string {
	switch m.state {
	case worker.StateRunning, worker.StateStarting:
		return runningBadge.Render(m.state.String() + " " + m.runName)
	case worker.StateTerminating:
		return stoppedBadge.Render("stopping " + m.runName)
	case worker.StateFailed:
		return failedBadge.Render("failed " + m.runName)
	default:
		return stoppedBadge.Render(m.state.String())
	}
}

func (m tuiModel) help() string {
	keys := []struct{ key, desc string }{
		{"↑/↓", "select"},
		{"enter", "start"},
		{"x", "stop"},
		{"r", "reload"},
		{"c", "clear"},
		{"q", "quit"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, helpKeyStyle.Render(k.key)+" "+helpDescStyle.Render(k.desc))
	}
	return strings.Join(parts, "  ")
}

func doRoot(cmd *cobra.Command, args []string) error {
	if !isTUI(cmd) {
		// no terminal, behave like run with the last profile
		return doRun(cmd, args)
	}
	if err := guard(cmd); err != nil {
		return err
	}

	ctx := log.ContextAttrs(cmd.Context(), slog.Group("penguin",
		slog.String("cmd", "tui"),
		slog.Int("pid", os.Getpid()),
	))
	a, err := newApp(config)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newTUIModel(ctx, a, saveLastProfile), tea.WithAltScreen(), tea.WithContext(ctx))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		final, err := p.Run()
		// nobody reads the output of the last run anymore
		if fm, ok := final.(tuiModel); ok && fm.run != nil {
			fm.run.Discard()
		}
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := watchFile(gctx, config.Profiles, func() {
			p.Send(fileChangedMsg{})
		})
		if err != nil {
			// hot reload is a convenience, the UI keeps working without it
			slog.WarnContext(gctx, "profile file is not watched", "error", err)
		}
		return nil
	})
	err = g.Wait()

	fmt.Fprintln(os.Stderr, "stopping bypass ...")
	return errors.Join(err, a.shutdown(ctx))
}
