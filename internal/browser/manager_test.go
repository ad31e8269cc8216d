package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLauncher struct {
	launches int
	failWith error
	cancels  []context.CancelFunc
}

func (f *fakeLauncher) launch() (context.Context, context.CancelFunc, error) {
	f.launches++
	if f.failWith != nil {
		return nil, nil, f.failWith
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancels = append(f.cancels, cancel)
	return ctx, cancel, nil
}

func newTestManager(f *fakeLauncher) *Manager {
	return &Manager{launch: f.launch, logger: zap.NewNop()}
}

func TestDoLaunchesLazilyAndReusesSession(t *testing.T) {
	t.Parallel()

	f := &fakeLauncher{}
	m := newTestManager(f)

	for i := 0; i < 3; i++ {
		err := m.Do(context.Background(), func(browserCtx context.Context) error {
			require.NoError(t, browserCtx.Err())
			return nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, 1, f.launches)
}

func TestConnectionErrorDropsSessionForRelaunch(t *testing.T) {
	t.Parallel()

	f := &fakeLauncher{}
	m := newTestManager(f)

	err := m.Do(context.Background(), func(context.Context) error {
		return errors.New("websocket: close 1006 (abnormal closure)")
	})
	require.Error(t, err)

	require.NoError(t, m.Do(context.Background(), func(context.Context) error { return nil }))
	require.Equal(t, 2, f.launches, "a fresh session must be established after a connection failure")
}

func TestPageLevelErrorKeepsSession(t *testing.T) {
	t.Parallel()

	f := &fakeLauncher{}
	m := newTestManager(f)

	err := m.Do(context.Background(), func(context.Context) error {
		return errors.New("element not interactable")
	})
	require.Error(t, err)

	require.NoError(t, m.Do(context.Background(), func(context.Context) error { return nil }))
	require.Equal(t, 1, f.launches)
}

func TestDeadBrowserContextTriggersRelaunch(t *testing.T) {
	t.Parallel()

	f := &fakeLauncher{}
	m := newTestManager(f)

	require.NoError(t, m.Do(context.Background(), func(context.Context) error { return nil }))
	f.cancels[0]() // simulate the browser process dying between requests

	require.NoError(t, m.Do(context.Background(), func(browserCtx context.Context) error {
		require.NoError(t, browserCtx.Err())
		return nil
	}))
	require.Equal(t, 2, f.launches)
}

func TestLaunchFailureLeavesManagerDisconnected(t *testing.T) {
	t.Parallel()

	f := &fakeLauncher{failWith: errors.New("chrome failed to start")}
	m := newTestManager(f)

	err := m.Do(context.Background(), func(context.Context) error { return nil })
	require.Error(t, err)

	f.failWith = nil
	require.NoError(t, m.Do(context.Background(), func(context.Context) error { return nil }))
	require.Equal(t, 2, f.launches)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	f := &fakeLauncher{}
	m := newTestManager(f)

	require.NoError(t, m.Do(context.Background(), func(context.Context) error { return nil }))
	m.Close()
	m.Close()

	require.NoError(t, m.Do(context.Background(), func(context.Context) error { return nil }))
	require.Equal(t, 2, f.launches)
}

func TestDoRespectsCanceledCaller(t *testing.T) {
	t.Parallel()

	f := &fakeLauncher{}
	m := newTestManager(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Do(ctx, func(context.Context) error { return nil })
	require.Error(t, err)
	require.Zero(t, f.launches)
}

func TestIsConnectionError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline is a wait timeout", context.DeadlineExceeded, false},
		{"wrapped deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), false},
		{"canceled browser context", context.Canceled, true},
		{"closed network conn", fmt.Errorf("send: %w", io.ErrUnexpectedEOF), true},
		{"websocket teardown", errors.New("websocket: close 1006 (abnormal closure)"), true},
		{"target crashed", errors.New("chromedp: Target crashed"), true},
		{"launch failure", errors.New("chrome failed to start: exit status 1"), true},
		{"page-level failure", errors.New("could not find node"), false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, IsConnectionError(tc.err))
		})
	}
}
