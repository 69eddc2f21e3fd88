package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigInvalidPath    = errors.New("config invalid path")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigLoadFailed     = errors.New("config load failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrStoreClosed          = errors.New("store closed")
	ErrStoreTypeUnknown     = errors.New("store type unknown")
	ErrStoreIsDisabled      = errors.New("store is disabled")
	ErrCacheKeyEmpty        = errors.New("cache key empty")
	ErrCacheEntryNotFound   = errors.New("cache entry not found")
	ErrQueueItemNotFound    = errors.New("queue item not found")
	ErrSessionEntryNotFound = errors.New("session entry not found")
)

var (
	ErrNoCachedData       = errors.New("no cached data available")
	ErrUnknownStrategy    = errors.New("unknown cache strategy")
	ErrFetcherIsNil       = errors.New("fetcher is nil")
	ErrQueryKeyEmpty      = errors.New("query key empty")
	ErrMaintenanceFailed  = errors.New("cache maintenance failed")
	ErrSizeEstimateFailed = errors.New("size estimate failed")
)

var (
	ErrSyncHandlerNotFound = errors.New("sync handler not found")
	ErrSyncInProgress      = errors.New("sync already in progress")
	ErrSyncOffline         = errors.New("sync skipped while offline")
	ErrSyncActionEmpty     = errors.New("sync action is empty")
	ErrSyncHandlerIsNil    = errors.New("sync handler is nil")
)

var (
	ErrCronJobNotFound       = errors.New("cron job not found")
	ErrCronIsRunning         = errors.New("cron is running")
	ErrCronSchedulerStopped  = errors.New("cron scheduler stopped")
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobFailed         = errors.New("cron job failed")
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
	ErrCronJobTimeout        = errors.New("cron job timeout")
)

var (
	ErrMetricsTypeUnknown   = errors.New("metrics type unknown")
	ErrMetricsStartFailed   = errors.New("metrics start failed")
	ErrMetricsConfigInvalid = errors.New("metrics config invalid")
	ErrMetricsIsDisabled    = errors.New("metrics manager is disabled")
	ErrMetricsNotRunning    = errors.New("metrics manager is not running")
)

var (
	ErrHealthCheckFailed   = errors.New("health check failed")
	ErrHealthCheckTimeout  = errors.New("health check timeout")
	ErrHealthIsNotRunning  = errors.New("health manager is not running")
	ErrLoggerTypeUnknown   = errors.New("logger type unknown")
	ErrLoggerConfigInvalid = errors.New("logger config invalid")
	ErrLogFileIsEmpty      = errors.New("log file is empty")
	ErrLogFileWrongFormat  = errors.New("log file wrong format")
)

var (
	ErrServiceIsRunning     = errors.New("service is running")
	ErrServiceIsNotRunning  = errors.New("service is not running")
	ErrComponentNotFound    = errors.New("component not found")
	ErrComponentStartFailed = errors.New("component start failed")
	ErrComponentStopFailed  = errors.New("component stop failed")
	ErrManagerNotRunning    = errors.New("manager not running")
	ErrManagerIsRunning     = errors.New("manager already running")
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrOperationFailed  = errors.New("operation failed")
	ErrNotImplemented   = errors.New("not implemented")
	ErrResourceNotFound = errors.New("resource not found")
	ErrInternalError    = errors.New("internal error")
	ErrContextCancelled = errors.New("context cancelled")
	ErrContextTimeout   = errors.New("context timeout")
	ErrInvalidState     = errors.New("invalid state")
	ErrNotSupported     = errors.New("not supported")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewError(message string) error {
	return errors.New(message)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
