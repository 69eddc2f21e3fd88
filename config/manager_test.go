package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-offline/types"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_Defaults(t *testing.T) {
	t.Parallel()

	loader, err := NewLoader()
	require.NoError(t, err)

	cfg := loader.Defaults()
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, types.StrategyNetworkFirst, cfg.Query.DefaultStrategy)
	assert.Equal(t, 5*time.Minute, cfg.Query.DefaultTTL)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, time.Second, cfg.Sync.SettleDelay)
	assert.Equal(t, "@every 30m", cfg.Maintenance.Schedule)
	assert.Equal(t, "@every 5m", cfg.Sync.Schedule)
	assert.Equal(t, 0.8, cfg.Maintenance.TargetSizeRatio)
	assert.Equal(t, 5, cfg.Maintenance.MinEntriesPerCategory)
	assert.False(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Health.Enabled)
}

func TestConfigurationManager_LoadFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
name: notes-app
version: 2.1.0
storage:
  type: memory
sync:
  enabled: true
  max_retries: 5
  settle_delay: 2s
`)

	cm, err := NewConfigurationManager(context.Background(), path)
	require.NoError(t, err)

	cfg := cm.GetConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "notes-app", cfg.Name)
	assert.Equal(t, "2.1.0", cfg.Version)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Sync.SettleDelay)

	// Sections absent from the file keep their defaults.
	assert.Equal(t, types.StrategyNetworkFirst, cfg.Query.DefaultStrategy)
}

func TestConfigurationManager_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewConfigurationManager(context.Background(), filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestConfigurationManager_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewConfigurationManager(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrConfigNotFound)
}

func TestConfigurationManager_InvalidYAML(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "name: [unclosed")

	_, err := NewConfigurationManager(context.Background(), path)
	assert.Error(t, err)
}

func TestNewStaticManager_MergesOntoDefaults(t *testing.T) {
	t.Parallel()

	cm, err := NewStaticManager(context.Background(), &types.ServiceConfig{
		Name:    "embedded-app",
		Storage: &types.StorageConfig{Type: "memory"},
	})
	require.NoError(t, err)

	cfg := cm.GetConfig()
	assert.Equal(t, "embedded-app", cfg.Name)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 3, cfg.Sync.MaxRetries, "untouched sections keep their defaults")
	assert.NotEmpty(t, cfg.Version)
}

func TestNewStaticManager_NilConfigUsesDefaults(t *testing.T) {
	t.Parallel()

	cm, err := NewStaticManager(context.Background(), nil)
	require.NoError(t, err)

	cfg := cm.GetConfig()
	assert.Equal(t, "sai-offline", cfg.Name)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
}

func TestNewStaticManager_ValidationFailure(t *testing.T) {
	t.Parallel()

	_, err := NewStaticManager(context.Background(), &types.ServiceConfig{
		Maintenance: &types.MaintenanceConfig{
			Enabled:         true,
			TargetSizeRatio: 2.5,
		},
	})
	assert.Error(t, err)
}

func TestConfigurationManager_Lifecycle(t *testing.T) {
	t.Parallel()

	cm, err := NewStaticManager(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, cm.Start())
	assert.True(t, cm.IsRunning())
	assert.ErrorIs(t, cm.Start(), types.ErrManagerIsRunning)

	require.NoError(t, cm.Stop())
	assert.False(t, cm.IsRunning())
}
