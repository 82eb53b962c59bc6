package penguin_test

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	penguinPath string
	shPath      string

	// tmpDir is a function used to create a tempdir
	// -test.keepdir flag says test to use os.MkdirTemp
	// default is t.TempDir, which will be cleaned up
	tmpDir func(t *testing.T) string
)

func TestMain(m *testing.M) {
	var keepTestDir bool
	flag.BoolVar(&keepTestDir, "test.keepdir", false, "use os.TempDir instead of t.TempDir to keep test artifacts")

	flag.Parse()

	if testing.Short() {
		slog.Warn("integration tests with -short are ignored")
		os.Exit(0)
	}
	if runtime.GOOS == "windows" {
		slog.Warn("integration tests rely on posix shell, ignored on windows")
		os.Exit(0)
	}

	if !keepTestDir {
		tmpDir = func(t *testing.T) string {
			t.Helper()
			return t.TempDir()
		}
	} else {
		tmpDir = func(t *testing.T) string {
			t.Helper()
			dir, err := os.MkdirTemp("", t.Name()+"*")
			require.NoError(t, err)
			_, err = fmt.Fprintf(t.Output(), "TEMPDIR %s: -test.keepdir used, so it won't be automatically deleted", dir)
			require.NoError(t, err)
			return dir
		}
	}

	if !isExecutable("penguin-ci") {
		slog.Warn("cannot locate penguin-ci binary: run go build -race -cover -covermode=atomic -o penguin-ci ./cmd/penguin/ first, integration tests are ignored")
		os.Exit(0)
	}

	var err error
	penguinPath, err = filepath.Abs("penguin-ci")
	if err != nil {
		slog.Error("can't get abspath for penguin-ci", "error", err)
		os.Exit(1)
	}
	shPath, err = exec.LookPath("sh")
	if err != nil {
		slog.Warn("binary sh not available, integration tests are ignored", "error", err)
		os.Exit(0)
	}
	coverDir, err := filepath.Abs("coverage")
	if err != nil {
		slog.Error("can't get value for GOCOVERDIR for penguin-ci", "error", err)
		os.Exit(1)
	}
	err = rmRfMkdirp(coverDir)
	if err != nil {
		slog.Error("can't reset GOCOVERDIR for penguin-ci", "error", err, "coverdir", coverDir)
		os.Exit(1)
	}

	err = os.Setenv("GOCOVERDIR", coverDir)
	if err != nil {
		slog.Error("can't set GOCOVERDIR env variable", "error", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// setup writes the settings and the profile file into a fresh directory
// and returns the path of the settings.
func setup(t *testing.T) string {
	t.Helper()
	dir := tmpDir(t)

	const config = `
version: 0
profiles: default.ini
elevation: none
log: stderr
processes:
    - penguin-ci-none
primary_process: penguin-ci-none
`
	profiles := fmt.Sprintf(`
[SCRIPT_OPTIONS]

[Echo]
executable = %[1]s
args = -c 'echo "Loading hostlist list-general.txt"; echo "windivert initialized. capture is started."; echo done'

[Sleep]
executable = %[1]s
args = -c 'echo ready; exec sleep 60'

[Broken]
executable = bin/winws
args = --wf-tcp=80,443
`, shPath)

	creat(t, filepath.Join(dir, "penguin.yaml"), []byte(config))
	creat(t, filepath.Join(dir, "default.ini"), []byte(profiles))
	return filepath.Join(dir, "penguin.yaml")
}

func penguin(ctx context.Context, configPath string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, penguinPath, append(args, "--config", configPath)...)
	cmd.Env = append(os.Environ(), "PENGUINCONFIG="+configPath)
	return cmd
}

func TestProfiles(t *testing.T) {
	configPath := setup(t)

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	t.Cleanup(cancel)
	var stdout, stderr bytes.Buffer
	cmd := penguin(ctx, configPath, "profiles")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		t.Logf("%s", stderr.String())
		require.NoError(t, err)
	}

	out := stdout.String()
	for _, name := range []string{"Broken", "Echo", "Sleep"} {
		require.Contains(t, out, name)
	}
}

func TestRun(t *testing.T) {
	configPath := setup(t)

	ctx, cancel := context.WithTimeout(t.Context(), 60*time.Second)
	t.Cleanup(cancel)
	var stdout, stderr bytes.Buffer
	cmd := penguin(ctx, configPath, "run", "Echo")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		t.Logf("%s", stderr.String())
		require.NoError(t, err)
	}

	require.Equal(t, "Your configuration is running\ndone\n", stdout.String())

	// the started profile is remembered
	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "last_profile: Echo")
}

func TestRunMissingExecutable(t *testing.T) {
	configPath := setup(t)

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	t.Cleanup(cancel)
	var stderr bytes.Buffer
	cmd := penguin(ctx, configPath, "run", "Broken")
	cmd.Stderr = &stderr
	err := cmd.Run()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 1, exitErr.ExitCode())
	require.Contains(t, stderr.String(), "executable not found")
}

func TestSingleInstance(t *testing.T) {
	configPath := setup(t)

	ctx, cancel := context.WithTimeout(t.Context(), 60*time.Second)
	t.Cleanup(cancel)

	var stderr bytes.Buffer
	first := penguin(ctx, configPath, "run", "Sleep")
	first.Stderr = &stderr
	stdout, err := first.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, first.Start())

	line, err := bufio.NewReader(stdout).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "ready\n", line)

	var stderr2 bytes.Buffer
	second := penguin(ctx, configPath, "run", "Echo")
	second.Stderr = &stderr2
	err = second.Run()
	require.Error(t, err)
	require.Contains(t, stderr2.String(), "already running")

	// interrupt stops the profile and ends the first instance cleanly
	require.NoError(t, first.Process.Signal(syscall.SIGINT))
	_, _ = io.Copy(io.Discard, stdout)
	err = first.Wait()
	if err != nil {
		t.Logf("%s", stderr.String())
		require.NoError(t, err)
	}
	require.True(t, strings.Contains(stderr.String(), "bypass stopped"))
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}

func rmRfMkdirp(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

func creat(t *testing.T, path string, content []byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, f.Close())
	}()
	_, err = f.Write(content)
	require.NoError(t, err)
	err = f.Sync()
	require.NoError(t, err)
}
