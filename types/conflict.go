package types

import (
	"context"
	"time"
)

const (
	ConflictConcurrentEdit ConflictType = "concurrent_edit"
	ConflictStaleData      ConflictType = "stale_data"
	ConflictDeleted        ConflictType = "deleted"
)

const (
	ResolutionKeepLocal  Resolution = "keep_local"
	ResolutionKeepServer Resolution = "keep_server"
	ResolutionMerge      Resolution = "merge"
	ResolutionCancel     Resolution = "cancel"
)

type ConflictType string

type Resolution string

type ConflictDetector interface {
	GenerateChecksum(data interface{}) (string, error)
	TrackEditStart(ctx context.Context, recordType, recordID string, data interface{}, userID string) error
	ClearEditTracking(ctx context.Context, recordType, recordID string) error
	CheckForConflict(ctx context.Context, recordType, recordID string, serverData interface{}, serverUpdatedAt *time.Time) (*ConflictInfo, error)
	CheckForDeletion(serverData interface{}) *ConflictInfo
	SuggestResolution(conflict *ConflictInfo) Resolution
	MergeRecords(original, local, server map[string]interface{}) *MergeResult
}

// EditVersion is the baseline captured when a caller begins editing a
// record. One baseline exists per (recordType, recordID); a repeated
// TrackEditStart overwrites it.
type EditVersion struct {
	RecordID   string    `json:"record_id"`
	RecordType string    `json:"record_type"`
	Timestamp  time.Time `json:"timestamp"`
	Checksum   string    `json:"checksum"`
	UserID     string    `json:"user_id,omitempty"`
}

// ConflictInfo is derived on every check and never persisted.
type ConflictInfo struct {
	HasConflict   bool         `json:"has_conflict"`
	LocalVersion  *EditVersion `json:"local_version,omitempty"`
	ServerVersion *EditVersion `json:"server_version,omitempty"`
	ConflictType  ConflictType `json:"conflict_type,omitempty"`
}

type MergeResult struct {
	Merged    map[string]interface{} `json:"merged"`
	Conflicts []FieldConflict        `json:"conflicts"`
}

type FieldConflict struct {
	Field  string      `json:"field"`
	Local  interface{} `json:"local"`
	Server interface{} `json:"server"`
}
