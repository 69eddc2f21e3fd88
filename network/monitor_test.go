package network

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline/logger"
	"github.com/saiset-co/sai-offline/types"
)

type stubConfig struct {
	cfg *types.ServiceConfig
}

func (s *stubConfig) Load() error { return nil }

func (s *stubConfig) GetConfig() *types.ServiceConfig { return s.cfg }

func (s *stubConfig) GetValue(string, interface{}) interface{} { return nil }

func (s *stubConfig) GetAs(string, interface{}) error { return nil }

func newTestMonitor(t *testing.T, initialOnline bool) *Monitor {
	t.Helper()

	cfg := &stubConfig{cfg: &types.ServiceConfig{
		Network: &types.NetworkConfig{InitialOnline: initialOnline},
	}}

	monitor, err := NewMonitor(context.Background(), logger.NewZapWrapper(zap.NewNop()), cfg)
	require.NoError(t, err)
	require.NoError(t, monitor.Start())
	t.Cleanup(func() { _ = monitor.Stop() })

	return monitor
}

func TestMonitor_InitialState(t *testing.T) {
	t.Parallel()

	assert.True(t, newTestMonitor(t, true).IsOnline())
	assert.False(t, newTestMonitor(t, false).IsOnline())
}

func TestMonitor_SetOnline_NotifiesOnChangeOnly(t *testing.T) {
	t.Parallel()

	monitor := newTestMonitor(t, true)

	var transitions []bool
	var mu sync.Mutex
	monitor.Subscribe(func(online bool) {
		mu.Lock()
		transitions = append(transitions, online)
		mu.Unlock()
	})

	monitor.SetOnline(true)
	monitor.SetOnline(false)
	monitor.SetOnline(false)
	monitor.SetOnline(true)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false, true}, transitions, "repeated states must not re-notify")
}

func TestMonitor_Unsubscribe(t *testing.T) {
	t.Parallel()

	monitor := newTestMonitor(t, true)

	var calls int
	var mu sync.Mutex
	unsubscribe := monitor.Subscribe(func(online bool) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	monitor.SetOnline(false)
	unsubscribe()
	monitor.SetOnline(true)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestMonitor_MultipleSubscribers(t *testing.T) {
	t.Parallel()

	monitor := newTestMonitor(t, true)

	var mu sync.Mutex
	counts := make(map[int]int)
	for i := 0; i < 3; i++ {
		i := i
		monitor.Subscribe(func(online bool) {
			mu.Lock()
			counts[i]++
			mu.Unlock()
		})
	}

	monitor.SetOnline(false)

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < 3; i++ {
		assert.Equal(t, 1, counts[i])
	}
}

func TestMonitor_StartStopLifecycle(t *testing.T) {
	t.Parallel()

	cfg := &stubConfig{cfg: &types.ServiceConfig{
		Network: &types.NetworkConfig{InitialOnline: true},
	}}

	monitor, err := NewMonitor(context.Background(), logger.NewZapWrapper(zap.NewNop()), cfg)
	require.NoError(t, err)

	require.NoError(t, monitor.Start())
	assert.True(t, monitor.IsRunning())
	assert.ErrorIs(t, monitor.Start(), types.ErrManagerIsRunning)

	require.NoError(t, monitor.Stop())
	assert.False(t, monitor.IsRunning())
	assert.ErrorIs(t, monitor.Stop(), types.ErrManagerNotRunning)
}
