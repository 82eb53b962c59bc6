package svcctl_test

import (
	"os/exec"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhivem/penguin/internal/model"
	"github.com/zhivem/penguin/internal/svcctl"
)

func TestExecController(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("skipped, test relies on posix shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}

	var testCases = []struct {
		scenario string
		given    svcctl.ExecController
		then     error
		fails    bool
	}{
		{
			scenario: "stopped",
			given:    svcctl.ExecController{Name: "WinDivert", Command: []string{sh, "-c", "exit 0"}},
		},
		{
			scenario: "not running",
			given:    svcctl.ExecController{Name: "WinDivert", Command: []string{sh, "-c", "exit 62"}, OKCodes: []int{60, 62}},
		},
		{
			scenario: "unexpected exit code",
			given:    svcctl.ExecController{Name: "WinDivert", Command: []string{sh, "-c", "exit 2"}, OKCodes: []int{60}},
			fails:    true,
		},
		{
			scenario: "missing command",
			given:    svcctl.ExecController{Name: "WinDivert", Command: []string{"penguin-no-such-binary"}},
			then:     model.ErrExecutableNotFound,
			fails:    true,
		},
		{
			scenario: "empty command",
			given:    svcctl.ExecController{Name: "WinDivert"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			err := tc.given.Stop(t.Context())
			if !tc.fails {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tc.then != nil {
				require.ErrorIs(t, err, tc.then)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	require.Equal(t, svcctl.Noop{}, svcctl.New(nil))
	require.NoError(t, svcctl.New(nil).Stop(t.Context()))

	ctl := svcctl.New(&model.ServiceDescriptor{Name: "x", Stop: []string{"sc", "stop", "x"}, OKCodes: []int{1062}})
	require.Equal(t, svcctl.ExecController{Name: "x", Command: []string{"sc", "stop", "x"}, OKCodes: []int{1062}}, ctl)
}
