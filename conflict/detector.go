package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline/types"
	"github.com/saiset-co/sai-offline/utils"
)

const editKeyPrefix = "edit:"

// Detector provides optimistic concurrency on top of the session region.
// Baselines are cheap fingerprints, not cryptographic hashes; they answer
// "did this record change since editing began", nothing more.
type Detector struct {
	store  types.StoreManager
	logger types.Logger
}

func NewDetector(logger types.Logger, store types.StoreManager) *Detector {
	return &Detector{
		store:  store,
		logger: logger,
	}
}

// GenerateChecksum hashes the canonical JSON form of data, so two values
// that differ only in map key order fingerprint identically.
func (d *Detector) GenerateChecksum(data interface{}) (string, error) {
	canonical, err := utils.MarshalCanonical(data)
	if err != nil {
		return "", types.WrapError(err, "failed to serialize data for checksum")
	}

	return fmt.Sprintf("%016x", xxhash.Sum64(canonical)), nil
}

func (d *Detector) TrackEditStart(ctx context.Context, recordType, recordID string, data interface{}, userID string) error {
	checksum, err := d.GenerateChecksum(data)
	if err != nil {
		return err
	}

	version := &types.EditVersion{
		RecordID:   recordID,
		RecordType: recordType,
		Timestamp:  time.Now(),
		Checksum:   checksum,
		UserID:     userID,
	}

	encoded, err := utils.Marshal(version)
	if err != nil {
		return types.WrapError(err, "failed to serialize edit baseline")
	}

	if err := d.store.SessionSet(ctx, editKey(recordType, recordID), encoded); err != nil {
		return types.WrapError(err, "failed to store edit baseline")
	}

	d.logger.Debug("Edit tracking started",
		zap.String("record_type", recordType),
		zap.String("record_id", recordID))

	return nil
}

func (d *Detector) ClearEditTracking(ctx context.Context, recordType, recordID string) error {
	return d.store.SessionDelete(ctx, editKey(recordType, recordID))
}

func (d *Detector) CheckForConflict(ctx context.Context, recordType, recordID string, serverData interface{}, serverUpdatedAt *time.Time) (*types.ConflictInfo, error) {
	if deleted := d.CheckForDeletion(serverData); deleted.HasConflict {
		return deleted, nil
	}

	baseline, err := d.loadBaseline(ctx, recordType, recordID)
	if err != nil {
		return nil, err
	}

	// Nothing tracked: optimistic, there is no baseline to contradict.
	if baseline == nil {
		return &types.ConflictInfo{HasConflict: false}, nil
	}

	serverChecksum, err := d.GenerateChecksum(serverData)
	if err != nil {
		return nil, err
	}

	if serverChecksum == baseline.Checksum {
		return &types.ConflictInfo{HasConflict: false, LocalVersion: baseline}, nil
	}

	serverTime := time.Now()
	if serverUpdatedAt != nil {
		serverTime = *serverUpdatedAt
	}

	conflictType := types.ConflictStaleData
	if serverTime.After(baseline.Timestamp) {
		conflictType = types.ConflictConcurrentEdit
	}

	return &types.ConflictInfo{
		HasConflict:  true,
		ConflictType: conflictType,
		LocalVersion: baseline,
		ServerVersion: &types.EditVersion{
			RecordID:   recordID,
			RecordType: recordType,
			Timestamp:  serverTime,
			Checksum:   serverChecksum,
		},
	}, nil
}

func (d *Detector) CheckForDeletion(serverData interface{}) *types.ConflictInfo {
	if serverData == nil {
		return &types.ConflictInfo{
			HasConflict:  true,
			ConflictType: types.ConflictDeleted,
		}
	}

	return &types.ConflictInfo{HasConflict: false}
}

// SuggestResolution encodes the policy table. Deletions force a human
// decision; a concurrent edit defers to the server so nobody's write is
// silently discarded; stale data keeps the local edit since only its read
// was outdated.
func (d *Detector) SuggestResolution(conflict *types.ConflictInfo) types.Resolution {
	if conflict == nil || !conflict.HasConflict {
		return types.ResolutionKeepServer
	}

	switch conflict.ConflictType {
	case types.ConflictDeleted:
		return types.ResolutionCancel
	case types.ConflictConcurrentEdit:
		return types.ResolutionKeepServer
	case types.ConflictStaleData:
		return types.ResolutionKeepLocal
	default:
		return types.ResolutionKeepServer
	}
}

func (d *Detector) loadBaseline(ctx context.Context, recordType, recordID string) (*types.EditVersion, error) {
	encoded, err := d.store.SessionGet(ctx, editKey(recordType, recordID))
	if err != nil {
		if types.IsError(err, types.ErrSessionEntryNotFound) {
			return nil, nil
		}
		return nil, types.WrapError(err, "failed to load edit baseline")
	}

	var baseline types.EditVersion
	if err := utils.Unmarshal(encoded, &baseline); err != nil {
		return nil, types.WrapError(err, "failed to decode edit baseline")
	}

	return &baseline, nil
}

func editKey(recordType, recordID string) string {
	return editKeyPrefix + recordType + ":" + recordID
}
