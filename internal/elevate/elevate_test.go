package elevate_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhivem/penguin/internal/elevate"
	"github.com/zhivem/penguin/internal/model"
)

type fakeProvider struct {
	elevated bool
	err      error
	calls    [][]string
}

func (f *fakeProvider) IsElevated() bool { return f.elevated }

func (f *fakeProvider) RelaunchElevated(args []string) error {
	f.calls = append(f.calls, args)
	return f.err
}

func TestEnsure(t *testing.T) {
	t.Parallel()

	t.Run("elevated", func(t *testing.T) {
		p := &fakeProvider{elevated: true}
		require.NoError(t, elevate.Ensure(t.Context(), p, []string{"run", "General"}))
		require.Empty(t, p.calls)
	})

	t.Run("relaunch", func(t *testing.T) {
		p := &fakeProvider{}
		require.NoError(t, elevate.Ensure(t.Context(), p, []string{"run", "General"}))
		require.Equal(t, [][]string{{"run", "General"}}, p.calls)
	})

	t.Run("denied", func(t *testing.T) {
		p := &fakeProvider{err: errors.New("the operation was canceled by the user")}
		err := elevate.Ensure(t.Context(), p, nil)
		require.ErrorIs(t, err, model.ErrElevationDenied)
		require.Len(t, p.calls, 1)
	})
}

func TestNew(t *testing.T) {
	t.Parallel()
	p := elevate.New(model.ElevationNone)
	require.Equal(t, elevate.None{}, p)
	require.True(t, p.IsElevated())
	require.NoError(t, p.RelaunchElevated([]string{"x"}))

	require.NotEqual(t, elevate.None{}, elevate.New(model.ElevationAuto))
}
