package instance_test

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhivem/penguin/internal/instance"
	"github.com/zhivem/penguin/internal/model"
)

const helperEnv = "PENGUIN_INSTANCE_HELPER_DIR"

// TestHelperProcess holds the lock in a child process, it is not a real test.
func TestHelperProcess(t *testing.T) {
	dir := os.Getenv(helperEnv)
	if dir == "" {
		t.Skip("skipped, helper process only")
	}
	lock := instance.New(dir, "penguin-test")
	if err := lock.Acquire(); err != nil {
		fmt.Fprintln(os.Stdout, "error:", err)
		os.Exit(2)
	}
	fmt.Fprintln(os.Stdout, "locked")
	time.Sleep(time.Minute)
	os.Exit(0)
}

func TestLock(t *testing.T) {
	t.Parallel()
	name := fmt.Sprintf("penguin-test-%d", time.Now().UnixNano())
	dir := t.TempDir()

	first := instance.New(dir, name)
	require.NoError(t, first.Acquire())
	require.True(t, first.IsHeld())
	// acquiring twice is no-op
	require.NoError(t, first.Acquire())

	second := instance.New(dir, name)
	err := second.Acquire()
	require.ErrorIs(t, err, model.ErrAlreadyRunning)
	require.False(t, second.IsHeld())
	require.NoError(t, second.Release())

	require.NoError(t, first.Release())
	require.NoError(t, first.Release())
	require.False(t, first.IsHeld())

	require.NoError(t, second.Acquire())
	require.NoError(t, second.Release())
}

func TestLock_CrashedHolder(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("skipped, test relies on the lock directory")
	}
	dir := t.TempDir()

	cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcess$")
	cmd.Env = append(os.Environ(), helperEnv+"="+dir)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
	})

	line, err := bufio.NewReader(stdout).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "locked\n", line)

	lock := instance.New(dir, "penguin-test")
	err = lock.Acquire()
	require.ErrorIs(t, err, model.ErrAlreadyRunning)
	require.Equal(t, cmd.Process.Pid, lock.HolderPID())

	// the OS releases the lock of a killed process
	require.NoError(t, cmd.Process.Kill())
	_ = cmd.Wait()

	require.NoError(t, lock.Acquire())
	require.Equal(t, os.Getpid(), lock.HolderPID())
	require.NoError(t, lock.Release())
	require.Zero(t, lock.HolderPID())
}
