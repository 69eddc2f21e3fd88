package offline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-offline/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	svc, err := NewServiceWithConfig(context.Background(), &types.ServiceConfig{
		Name:    "offline-test",
		Version: "0.0.1",
		Logger:  &types.LoggerConfig{Level: "error"},
		Storage: &types.StorageConfig{Type: "memory"},
		Network: &types.NetworkConfig{InitialOnline: true},
		Sync: &types.SyncConfig{
			Enabled:     true,
			MaxRetries:  3,
			SettleDelay: 10 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start())

	t.Cleanup(func() {
		if svc.IsRunning() {
			_ = svc.Stop()
		}
	})

	return svc
}

func TestService_QueryAndInvalidate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	fetcher := func(ctx context.Context) ([]byte, error) {
		return []byte(`{"title":"remote"}`), nil
	}

	result, err := svc.CachedQuery(ctx, fetcher, types.QueryOptions{Key: "notes:1"})
	require.NoError(t, err)
	assert.False(t, result.FromCache)

	// Second read offline still succeeds from the durable cache.
	svc.SetOnline(false)
	result, err = svc.CachedQuery(ctx, fetcher, types.QueryOptions{Key: "notes:1"})
	require.NoError(t, err)
	assert.True(t, result.FromCache)
	assert.Equal(t, []byte(`{"title":"remote"}`), result.Data)

	svc.SetOnline(true)
	require.NoError(t, svc.Invalidate(ctx, "notes:1"))

	svc.SetOnline(false)
	_, err = svc.CachedQuery(ctx, fetcher, types.QueryOptions{Key: "notes:1"})
	assert.ErrorIs(t, err, types.ErrNoCachedData)
}

func TestService_OfflineMutationReplay(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var applied atomic.Int32
	svc.RegisterSyncHandler("create_note", func(ctx context.Context, payload []byte) error {
		applied.Add(1)
		return nil
	})

	svc.SetOnline(false)

	_, err := svc.QueueMutation(ctx, "create_note", []byte(`{"title":"offline"}`))
	require.NoError(t, err)

	result, err := svc.TriggerSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Success, "nothing syncs while offline")

	svc.SetOnline(true)

	require.Eventually(t, func() bool {
		return applied.Load() == 1
	}, 3*time.Second, 20*time.Millisecond, "reconnect should replay the queued mutation")
}

func TestService_ConflictWorkflow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	record := map[string]interface{}{"title": "draft", "body": "text"}
	require.NoError(t, svc.TrackEditStart(ctx, "note", "1", record, "user-1"))

	serverCopy := map[string]interface{}{"title": "draft", "body": "server-edit"}
	later := time.Now().Add(time.Minute)

	info, err := svc.CheckForConflict(ctx, "note", "1", serverCopy, &later)
	require.NoError(t, err)
	require.True(t, info.HasConflict)
	assert.Equal(t, types.ConflictConcurrentEdit, info.ConflictType)
	assert.Equal(t, types.ResolutionKeepServer, svc.SuggestResolution(info))

	local := map[string]interface{}{"title": "my title", "body": "text"}
	merge := svc.MergeRecords(record, local, serverCopy)
	assert.Empty(t, merge.Conflicts)
	assert.Equal(t, "my title", merge.Merged["title"])
	assert.Equal(t, "server-edit", merge.Merged["body"])

	require.NoError(t, svc.ClearEditTracking(ctx, "note", "1"))
}

func TestService_StartStop(t *testing.T) {
	svc := newTestService(t)

	assert.True(t, svc.IsRunning())
	assert.ErrorIs(t, svc.Start(), types.ErrServiceIsRunning)

	require.NoError(t, svc.Stop())
	assert.False(t, svc.IsRunning())
	assert.ErrorIs(t, svc.Stop(), types.ErrServiceIsNotRunning)
}
