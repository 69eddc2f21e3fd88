package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-offline/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() (*Loader, error) {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

func (l *Loader) LoadFromFile(ctx context.Context, configPath string) (*types.ServiceConfig, *map[string]interface{}, error) {
	if configPath == "" {
		return nil, nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil, types.WrapError(err, "file not found: "+configPath)
	}

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, nil, types.WrapError(err, "failed to read config file")
	}

	config := l.Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, nil, types.WrapError(err, "failed to parse YAML config")
	}

	rawData := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &rawData); err != nil {
		return nil, nil, types.WrapError(err, "failed to parse YAML config")
	}

	if err := l.Validate(config); err != nil {
		return nil, nil, err
	}

	return config, &rawData, nil
}

func (l *Loader) Validate(config *types.ServiceConfig) error {
	if config == nil {
		return types.ErrConfigIsNil
	}

	if err := l.validator.Struct(config); err != nil {
		return types.WrapError(err, "config validation failed")
	}

	return nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:    "sai-offline",
		Version: "0.1.0",
		Logger: &types.LoggerConfig{
			Level: "debug",
		},
		Storage: &types.StorageConfig{
			Type: "sqlite",
			Path: "offline.db",
			Compression: &types.CompressionConfig{
				Enabled:      false,
				MinSizeBytes: 4096,
			},
		},
		Network: &types.NetworkConfig{
			InitialOnline: true,
			Probe: &types.ProbeConfig{
				Enabled:  false,
				Interval: 30 * time.Second,
				Timeout:  5 * time.Second,
			},
		},
		Query: &types.QueryConfig{
			DefaultTTL:      5 * time.Minute,
			DefaultStrategy: types.StrategyNetworkFirst,
		},
		Maintenance: &types.MaintenanceConfig{
			Enabled:               true,
			MaxSizeBytes:          50 * 1024 * 1024,
			TargetSizeRatio:       0.8,
			MinEntriesPerCategory: 5,
			MaxAgeWindow:          7 * 24 * time.Hour,
			DefaultPriority:       5,
			Schedule:              "@every 30m",
		},
		Sync: &types.SyncConfig{
			Enabled:     true,
			MaxRetries:  3,
			SettleDelay: time.Second,
			Schedule:    "@every 5m",
		},
		Cron: &types.CronConfig{
			Enabled:  true,
			Timezone: "UTC",
		},
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Type:    "prometheus",
		},
		Health: &types.HealthConfig{
			Enabled: false,
		},
	}
}
