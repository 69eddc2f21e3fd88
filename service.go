package offline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline/conflict"
	"github.com/saiset-co/sai-offline/config"
	"github.com/saiset-co/sai-offline/cron"
	"github.com/saiset-co/sai-offline/health"
	"github.com/saiset-co/sai-offline/logger"
	"github.com/saiset-co/sai-offline/maintenance"
	"github.com/saiset-co/sai-offline/metrics"
	"github.com/saiset-co/sai-offline/network"
	"github.com/saiset-co/sai-offline/notify"
	"github.com/saiset-co/sai-offline/query"
	"github.com/saiset-co/sai-offline/storage"
	"github.com/saiset-co/sai-offline/syncer"
	"github.com/saiset-co/sai-offline/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	maintenanceJobName = "cache_maintenance"
	syncJobName        = "sync_drain"
)

// Service is the composition root: one durable store shared by the query
// orchestrator, the maintenance engine, the sync engine and the conflict
// detector, plus the ambient managers around them.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc

	Config        types.ConfigManager
	Logger        types.LoggerManager
	Metrics       types.MetricsManager
	Health        *health.Manager
	Store         types.StoreManager
	Network       *network.Monitor
	Notifications *notify.Hub
	Queries       *query.Orchestrator
	Maintenance   *maintenance.Engine
	Sync          *syncer.Engine
	Conflicts     *conflict.Detector
	Cron          types.CronManager

	state atomic.Value
}

// NewService loads configuration from a YAML file.
func NewService(ctx context.Context, configPath string) (*Service, error) {
	cm, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return nil, err
	}

	return newService(ctx, cm)
}

// NewServiceWithConfig assembles the service around an in-memory config,
// for hosts that do not ship a config file.
func NewServiceWithConfig(ctx context.Context, cfg *types.ServiceConfig) (*Service, error) {
	cm, err := config.NewStaticManager(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return newService(ctx, cm)
}

func newService(ctx context.Context, cm *config.ConfigurationManager) (*Service, error) {
	serviceCtx, cancel := context.WithCancel(ctx)

	loggerManager, err := logger.NewManager(serviceCtx, cm)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to create logger manager")
	}

	s := &Service{
		ctx:    serviceCtx,
		cancel: cancel,
		Config: cm,
		Logger: loggerManager,
	}

	s.state.Store(StateStopped)

	serviceConfig := cm.GetConfig()

	if serviceConfig.Metrics != nil && serviceConfig.Metrics.Enabled {
		metricsManager, err := metrics.NewManager(serviceCtx, cm, loggerManager)
		if err != nil {
			cancel()
			return nil, types.WrapError(err, "failed to create metrics manager")
		}
		s.Metrics = metricsManager
	}

	if serviceConfig.Health != nil && serviceConfig.Health.Enabled {
		healthManager, err := health.NewManager(serviceCtx, cm, loggerManager)
		if err != nil {
			cancel()
			return nil, types.WrapError(err, "failed to create health manager")
		}
		s.Health = healthManager
	}

	store, err := storage.NewManager(serviceCtx, cm, loggerManager, s.Metrics, s.Health)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to create store manager")
	}
	s.Store = store

	monitor, err := network.NewMonitor(serviceCtx, loggerManager, cm)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to create network monitor")
	}
	s.Network = monitor

	s.Notifications = notify.NewHub(loggerManager)

	orchestrator, err := query.NewOrchestrator(loggerManager, cm, store, monitor, s.Metrics)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to create query orchestrator")
	}
	s.Queries = orchestrator

	engine, err := maintenance.NewEngine(loggerManager, cm, store, s.Metrics)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to create maintenance engine")
	}
	s.Maintenance = engine

	syncEngine, err := syncer.NewEngine(serviceCtx, loggerManager, cm, store, monitor, s.Notifications, s.Metrics)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to create sync engine")
	}
	s.Sync = syncEngine

	s.Conflicts = conflict.NewDetector(loggerManager, store)

	if serviceConfig.Cron != nil && serviceConfig.Cron.Enabled {
		cronManager, err := cron.NewManager(serviceCtx, cm, loggerManager, s.Metrics, s.Health)
		if err != nil {
			cancel()
			return nil, types.WrapError(err, "failed to create cron manager")
		}
		s.Cron = cronManager
	}

	return s, nil
}

func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrServiceIsRunning
	}

	defer func() {
		if s.getState() == StateStarting {
			s.setState(StateRunning)
		}
	}()

	for _, c := range s.startOrder() {
		if c.manager == nil {
			continue
		}
		if err := c.manager.Start(); err != nil {
			s.setState(StateStopped)
			return types.WrapError(err, "failed to start "+c.name)
		}
	}

	s.registerHealthCheckers()

	if err := s.scheduleJobs(); err != nil {
		s.setState(StateStopped)
		return err
	}

	// Startup sweep is expired-only: scoring every entry would delay
	// readiness.
	go func() {
		sweepCtx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
		defer cancel()

		if _, err := s.Maintenance.CleanupExpiredEntries(sweepCtx); err != nil {
			s.Logger.Warn("Startup expiry sweep failed", zap.Error(err))
		}
	}()

	s.Logger.Info("Offline service started",
		zap.String("name", s.Config.GetConfig().Name),
		zap.String("version", s.Config.GetConfig().Version))

	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrServiceIsNotRunning
	}

	defer func() {
		s.setState(StateStopped)
		s.cancel()
	}()

	var firstErr error

	order := s.startOrder()
	for i := len(order) - 1; i >= 0; i-- {
		c := order[i]
		if c.manager == nil {
			continue
		}
		if err := c.manager.Stop(); err != nil {
			s.Logger.Error("Failed to stop component",
				zap.String("component", c.name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.Logger.Info("Offline service stopped")
	return firstErr
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

type component struct {
	name    string
	manager types.LifecycleManager
}

func (s *Service) startOrder() []component {
	components := []component{
		{"logger", s.Logger},
		{"store", s.Store},
		{"network", s.Network},
		{"maintenance", s.Maintenance},
		{"sync", s.Sync},
	}

	if s.Metrics != nil {
		components = append([]component{{"metrics", s.Metrics}}, components...)
	}
	if s.Health != nil {
		components = append(components, component{"health", s.Health})
	}
	if s.Cron != nil {
		if lifecycle, ok := s.Cron.(types.LifecycleManager); ok {
			components = append(components, component{"cron", lifecycle})
		}
	}

	return components
}

func (s *Service) scheduleJobs() error {
	if s.Cron == nil {
		return nil
	}

	serviceConfig := s.Config.GetConfig()

	if serviceConfig.Maintenance != nil && serviceConfig.Maintenance.Enabled && serviceConfig.Maintenance.Schedule != "" {
		err := s.Cron.Add(maintenanceJobName, serviceConfig.Maintenance.Schedule, func() {
			jobCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
			defer cancel()

			if _, err := s.Maintenance.PerformCacheMaintenance(jobCtx); err != nil {
				s.Logger.Error("Scheduled cache maintenance failed", zap.Error(err))
			}
		})
		if err != nil {
			return types.WrapError(err, "failed to schedule cache maintenance")
		}
	}

	if serviceConfig.Sync != nil && serviceConfig.Sync.Enabled && serviceConfig.Sync.Schedule != "" {
		err := s.Cron.Add(syncJobName, serviceConfig.Sync.Schedule, func() {
			jobCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
			defer cancel()

			if _, err := s.Sync.TriggerSync(jobCtx); err != nil {
				s.Logger.Error("Scheduled sync drain failed", zap.Error(err))
			}
		})
		if err != nil {
			return types.WrapError(err, "failed to schedule sync drain")
		}
	}

	return nil
}

func (s *Service) registerHealthCheckers() {
	if s.Health == nil {
		return
	}

	s.Health.RegisterChecker("store", func(ctx context.Context) types.HealthCheck {
		if !s.Store.IsRunning() {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: "store is not running"}
		}

		count, err := s.Store.CacheCount(ctx)
		if err != nil {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: err.Error()}
		}

		return types.HealthCheck{
			Status:  types.StatusHealthy,
			Details: map[string]interface{}{"cache_entries": count},
		}
	})

	s.Health.RegisterChecker("network", func(ctx context.Context) types.HealthCheck {
		// Offline is an expected state for this service, not a failure.
		return types.HealthCheck{
			Status:  types.StatusHealthy,
			Details: map[string]interface{}{"online": s.Network.IsOnline()},
		}
	})

	s.Health.RegisterChecker("sync_queue", func(ctx context.Context) types.HealthCheck {
		pending, err := s.Store.QueueCount(ctx)
		if err != nil {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: err.Error()}
		}

		return types.HealthCheck{
			Status:  types.StatusHealthy,
			Message: fmt.Sprintf("%d pending mutations", pending),
			Details: map[string]interface{}{"pending": pending},
		}
	})
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
