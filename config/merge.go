package config

import (
	"github.com/saiset-co/sai-offline/types"
)

// mergeConfig overlays the non-empty sections of src onto dst. Section
// pointers replace wholesale; there is no per-field deep merge.
func mergeConfig(dst, src *types.ServiceConfig) error {
	if src == nil {
		return nil
	}

	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Version != "" {
		dst.Version = src.Version
	}
	if src.Logger != nil {
		dst.Logger = src.Logger
	}
	if src.Storage != nil {
		dst.Storage = src.Storage
	}
	if src.Network != nil {
		dst.Network = src.Network
	}
	if src.Query != nil {
		dst.Query = src.Query
	}
	if src.Maintenance != nil {
		dst.Maintenance = src.Maintenance
	}
	if src.Sync != nil {
		dst.Sync = src.Sync
	}
	if src.Cron != nil {
		dst.Cron = src.Cron
	}
	if src.Metrics != nil {
		dst.Metrics = src.Metrics
	}
	if src.Health != nil {
		dst.Health = src.Health
	}

	return nil
}
