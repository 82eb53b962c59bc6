package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRelaunchArgs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		argv []string
		then []string
	}{
		{
			name: "flags before command",
			argv: []string{"/opt/penguin", "--verbose", "run", "Bypass-X"},
			then: []string{"--verbose", "run", "Bypass-X"},
		},
		{
			name: "explicit config",
			argv: []string{"penguin", "cleanup", "--config=/etc/penguin.yaml"},
			then: []string{"cleanup", "--config=/etc/penguin.yaml"},
		},
		{
			name: "program only",
			argv: []string{"penguin"},
			then: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := relaunchArgs(tt.argv)
			require.Equal(t, tt.then, got)
			if len(got) > 0 {
				got[0] = "changed"
				require.NotEqual(t, "changed", tt.argv[1])
			}
		})
	}
}
