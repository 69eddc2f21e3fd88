package conflict

import (
	"bytes"

	"github.com/saiset-co/sai-offline/types"
	"github.com/saiset-co/sai-offline/utils"
)

// MergeRecords does a per-field three-way merge with server as the base.
// A field changed only locally takes the local value; changed on both
// sides with different results it is recorded as a conflict and the local
// value wins, biasing toward the active editor.
func (d *Detector) MergeRecords(original, local, server map[string]interface{}) *types.MergeResult {
	merged := make(map[string]interface{}, len(server))
	for field, value := range server {
		merged[field] = value
	}

	result := &types.MergeResult{Merged: merged}

	for field := range fieldUnion(original, local, server) {
		origValue, inOrig := original[field]
		localValue, inLocal := local[field]
		serverValue, inServer := server[field]

		localChanged := changed(origValue, inOrig, localValue, inLocal)
		serverChanged := changed(origValue, inOrig, serverValue, inServer)

		switch {
		case localChanged && serverChanged:
			if fieldEqual(localValue, serverValue) {
				continue
			}
			result.Conflicts = append(result.Conflicts, types.FieldConflict{
				Field:  field,
				Local:  localValue,
				Server: serverValue,
			})
			setOrDelete(merged, field, localValue, inLocal)
		case localChanged:
			setOrDelete(merged, field, localValue, inLocal)
		}
	}

	return result
}

func fieldUnion(maps ...map[string]interface{}) map[string]struct{} {
	union := make(map[string]struct{})
	for _, m := range maps {
		for field := range m {
			union[field] = struct{}{}
		}
	}
	return union
}

func changed(origValue interface{}, inOrig bool, newValue interface{}, inNew bool) bool {
	if inOrig != inNew {
		return true
	}
	if !inOrig {
		return false
	}
	return !fieldEqual(origValue, newValue)
}

// fieldEqual compares values through their canonical encoding so nested
// maps compare by content regardless of key order.
func fieldEqual(a, b interface{}) bool {
	aBytes, aErr := utils.MarshalCanonical(a)
	bBytes, bErr := utils.MarshalCanonical(b)
	if aErr != nil || bErr != nil {
		return false
	}
	return bytes.Equal(aBytes, bBytes)
}

func setOrDelete(merged map[string]interface{}, field string, value interface{}, present bool) {
	if present {
		merged[field] = value
	} else {
		delete(merged, field)
	}
}
