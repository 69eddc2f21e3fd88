package network

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const defaultProbeTimeout = 5 * time.Second

// Monitor tracks the online/offline flag for the whole service. Transitions
// arrive either from the host through SetOnline or from the optional HTTP
// probe loop. Listeners fire only on actual changes.
type Monitor struct {
	ctx         context.Context
	cancel      context.CancelFunc
	logger      types.Logger
	config      *types.NetworkConfig
	client      *fasthttp.Client
	online      atomic.Bool
	mu          sync.RWMutex
	subscribers map[int64]types.NetworkListener
	nextSubID   int64
	wg          sync.WaitGroup
	state       atomic.Value
}

func NewMonitor(ctx context.Context, logger types.Logger, config types.ConfigManager) (*Monitor, error) {
	networkConfig := config.GetConfig().Network
	if networkConfig == nil {
		networkConfig = &types.NetworkConfig{InitialOnline: true}
	}

	monitorCtx, cancel := context.WithCancel(ctx)

	m := &Monitor{
		ctx:         monitorCtx,
		cancel:      cancel,
		logger:      logger,
		config:      networkConfig,
		client:      &fasthttp.Client{},
		subscribers: make(map[int64]types.NetworkListener),
	}

	m.online.Store(networkConfig.InitialOnline)
	m.state.Store(StateStopped)

	return m, nil
}

func (m *Monitor) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrManagerIsRunning
	}

	defer func() {
		if m.getState() == StateStarting {
			m.setState(StateRunning)
		}
	}()

	if m.config.Probe != nil && m.config.Probe.Enabled {
		m.wg.Add(1)
		go m.probeLoop()
	}

	m.logger.Info("Network monitor started", zap.Bool("online", m.online.Load()))
	return nil
}

func (m *Monitor) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrManagerNotRunning
	}

	defer func() {
		m.setState(StateStopped)
	}()

	m.cancel()
	m.wg.Wait()

	m.logger.Info("Network monitor stopped gracefully")
	return nil
}

func (m *Monitor) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *Monitor) IsOnline() bool {
	return m.online.Load()
}

func (m *Monitor) SetOnline(online bool) {
	if m.online.Swap(online) == online {
		return
	}

	m.logger.Info("Connectivity changed", zap.Bool("online", online))
	m.notify(online)
}

func (m *Monitor) Subscribe(listener types.NetworkListener) func() {
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.subscribers[id] = listener
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

func (m *Monitor) notify(online bool) {
	m.mu.RLock()
	listeners := make([]types.NetworkListener, 0, len(m.subscribers))
	for _, listener := range m.subscribers {
		listeners = append(listeners, listener)
	}
	m.mu.RUnlock()

	for _, listener := range listeners {
		listener(online)
	}
}

func (m *Monitor) probeLoop() {
	defer m.wg.Done()

	interval := m.config.Probe.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(m.probe())
		}
	}
}

func (m *Monitor) probe() bool {
	timeout := m.config.Probe.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(m.config.Probe.URL)
	req.Header.SetMethod(fasthttp.MethodHead)

	if err := m.client.DoTimeout(req, resp, timeout); err != nil {
		m.logger.Debug("Connectivity probe failed", zap.Error(err))
		return false
	}

	return resp.StatusCode() < fasthttp.StatusInternalServerError
}

func (m *Monitor) getState() State {
	return m.state.Load().(State)
}

func (m *Monitor) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *Monitor) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}
