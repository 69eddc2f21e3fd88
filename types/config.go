package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name        string             `yaml:"name" json:"name" validate:"required"`
	Version     string             `yaml:"version" json:"version" validate:"required"`
	Logger      *LoggerConfig      `yaml:"logger" json:"logger"`
	Storage     *StorageConfig     `yaml:"storage" json:"storage"`
	Network     *NetworkConfig     `yaml:"network" json:"network"`
	Query       *QueryConfig       `yaml:"query" json:"query"`
	Maintenance *MaintenanceConfig `yaml:"maintenance" json:"maintenance"`
	Sync        *SyncConfig        `yaml:"sync" json:"sync"`
	Cron        *CronConfig        `yaml:"cron" json:"cron"`
	Metrics     *MetricsConfig     `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig      `yaml:"health" json:"health"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level"`
	Config interface{} `yaml:"config" json:"config"`
}

type StorageConfig struct {
	Type        string             `yaml:"type" json:"type" validate:"required"`
	Path        string             `yaml:"path" json:"path"`
	Config      interface{}        `yaml:"config" json:"config"`
	Compression *CompressionConfig `yaml:"compression" json:"compression"`
}

type CompressionConfig struct {
	Enabled      bool `yaml:"enabled" json:"enabled"`
	MinSizeBytes int  `yaml:"min_size_bytes" json:"min_size_bytes" validate:"min=0"`
}

type NetworkConfig struct {
	InitialOnline bool         `yaml:"initial_online" json:"initial_online"`
	Probe         *ProbeConfig `yaml:"probe" json:"probe"`
}

type ProbeConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	URL      string        `yaml:"url" json:"url" validate:"required_if=Enabled true"`
	Interval time.Duration `yaml:"interval" json:"interval"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

type QueryConfig struct {
	DefaultTTL      time.Duration `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
	DefaultStrategy string        `yaml:"default_strategy" json:"default_strategy"`
}

type MaintenanceConfig struct {
	Enabled               bool           `yaml:"enabled" json:"enabled"`
	MaxSizeBytes          int64          `yaml:"max_size_bytes" json:"max_size_bytes" validate:"min=0"`
	TargetSizeRatio       float64        `yaml:"target_size_ratio" json:"target_size_ratio" validate:"min=0,max=1"`
	MinEntriesPerCategory int            `yaml:"min_entries_per_category" json:"min_entries_per_category" validate:"min=0"`
	MaxAgeWindow          time.Duration  `yaml:"max_age_window" json:"max_age_window"`
	DefaultPriority       int            `yaml:"default_priority" json:"default_priority"`
	Priorities            []PriorityRule `yaml:"priorities" json:"priorities"`
	Schedule              string         `yaml:"schedule" json:"schedule"`
}

// PriorityRule maps a cache key prefix to an eviction priority.
// Rules are evaluated in order; the first matching prefix wins.
type PriorityRule struct {
	Prefix   string `yaml:"prefix" json:"prefix" validate:"required"`
	Priority int    `yaml:"priority" json:"priority" validate:"min=1"`
}

type SyncConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	MaxRetries  int           `yaml:"max_retries" json:"max_retries" validate:"min=0"`
	SettleDelay time.Duration `yaml:"settle_delay" json:"settle_delay"`
	Schedule    string        `yaml:"schedule" json:"schedule"`
}

type CronConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Timezone string `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
}

type MetricsConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Type    string            `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{}       `yaml:"config" json:"config"`
	Prefix  string            `yaml:"prefix" json:"prefix"`
	Labels  map[string]string `yaml:"labels" json:"labels"`
}

type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}
