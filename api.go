package offline

import (
	"context"
	"time"

	"github.com/saiset-co/sai-offline/types"
)

// The methods below are the host-facing surface; each delegates to the
// owning component so embedders can hold a single *Service.

func (s *Service) CachedQuery(ctx context.Context, fetcher types.Fetcher, opts types.QueryOptions) (*types.QueryResult, error) {
	return s.Queries.CachedQuery(ctx, fetcher, opts)
}

func (s *Service) Prefetch(ctx context.Context, fetcher types.Fetcher, key string, ttl time.Duration) error {
	return s.Queries.Prefetch(ctx, fetcher, key, ttl)
}

func (s *Service) Invalidate(ctx context.Context, key string) error {
	return s.Queries.Invalidate(ctx, key)
}

func (s *Service) ClearCacheByPrefix(ctx context.Context, prefix string) (int, error) {
	return s.Maintenance.ClearCacheByPrefix(ctx, prefix)
}

func (s *Service) RegisterSyncHandler(action string, handler types.SyncHandler) {
	s.Sync.RegisterSyncHandler(action, handler)
}

func (s *Service) QueueMutation(ctx context.Context, action string, payload []byte) (int64, error) {
	return s.Sync.QueueMutation(ctx, action, payload)
}

func (s *Service) TriggerSync(ctx context.Context) (*types.SyncResult, error) {
	return s.Sync.TriggerSync(ctx)
}

func (s *Service) SubscribeQueue(listener types.QueueListener) func() {
	return s.Sync.SubscribeQueue(listener)
}

func (s *Service) OnSyncNotification(callback types.NotificationCallback) func() {
	return s.Notifications.OnSyncNotification(callback)
}

// SetOnline reports a connectivity transition observed by the host
// platform; a transition to online schedules a queue drain.
func (s *Service) SetOnline(online bool) {
	s.Network.SetOnline(online)
}

func (s *Service) IsOnline() bool {
	return s.Network.IsOnline()
}

func (s *Service) TrackEditStart(ctx context.Context, recordType, recordID string, data interface{}, userID string) error {
	return s.Conflicts.TrackEditStart(ctx, recordType, recordID, data, userID)
}

func (s *Service) ClearEditTracking(ctx context.Context, recordType, recordID string) error {
	return s.Conflicts.ClearEditTracking(ctx, recordType, recordID)
}

func (s *Service) CheckForConflict(ctx context.Context, recordType, recordID string, serverData interface{}, serverUpdatedAt *time.Time) (*types.ConflictInfo, error) {
	return s.Conflicts.CheckForConflict(ctx, recordType, recordID, serverData, serverUpdatedAt)
}

func (s *Service) SuggestResolution(conflict *types.ConflictInfo) types.Resolution {
	return s.Conflicts.SuggestResolution(conflict)
}

func (s *Service) MergeRecords(original, local, server map[string]interface{}) *types.MergeResult {
	return s.Conflicts.MergeRecords(original, local, server)
}
