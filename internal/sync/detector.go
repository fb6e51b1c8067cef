package sync

import (
	"encoding/json"
	"reflect"

	"github.com/ferris/airbase/internal/remote"
)

// Verdict is the conflict detector's decision for one queued mutation.
type Verdict int

const (
	VerdictNoConflict Verdict = iota
	VerdictConflict
)

func (v Verdict) String() string {
	if v == VerdictConflict {
		return "conflict"
	}
	return "no-conflict"
}

// metadataFields are entity bookkeeping, never user edits; they don't count
// toward field overlap.
var metadataFields = map[string]bool{
	"id":         true,
	"base_id":    true,
	"table_id":   true,
	"version":    true,
	"created_at": true,
	"updated_at": true,
}

// Detect decides whether a queued mutation can be applied safely against the
// server's current snapshot. Both inputs are immutable; the detector never
// resolves anything, it only classifies.
//
// Policy is last-writer-wins with field narrowing: a conflict is raised only
// when the remote version strictly exceeds the version the local mutation
// was based on AND at least one field the mutation touched differs remotely.
// A nil remote snapshot means the server has no record of the entity, so the
// change applies as a plain create/update.
func Detect(baseVersion int64, localPayload json.RawMessage, remoteSnap *remote.Snapshot) Verdict {
	if remoteSnap == nil {
		return VerdictNoConflict
	}
	if remoteSnap.Version <= baseVersion {
		return VerdictNoConflict
	}

	var local, remoteDoc map[string]any
	if err := json.Unmarshal(localPayload, &local); err != nil {
		// Unparseable payload: versions already diverged, classify as
		// conflict rather than risk clobbering the remote edit.
		return VerdictConflict
	}
	if err := json.Unmarshal(remoteSnap.Data, &remoteDoc); err != nil {
		return VerdictConflict
	}

	if fieldsOverlap(local, remoteDoc, true) {
		return VerdictConflict
	}
	return VerdictNoConflict
}

// fieldsOverlap reports whether any field touched locally holds a different
// value remotely. Nested objects (a record's fields document) are compared
// key by key so a partial update only overlaps the keys it actually sets.
func fieldsOverlap(local, remote map[string]any, topLevel bool) bool {
	for key, localVal := range local {
		if topLevel && metadataFields[key] {
			continue
		}
		remoteVal, ok := remote[key]
		if !ok {
			// The remote side never set this field; writing it cannot
			// clobber a remote edit.
			continue
		}
		localMap, localIsMap := localVal.(map[string]any)
		remoteMap, remoteIsMap := remoteVal.(map[string]any)
		if localIsMap && remoteIsMap {
			if fieldsOverlap(localMap, remoteMap, false) {
				return true
			}
			continue
		}
		if !reflect.DeepEqual(localVal, remoteVal) {
			return true
		}
	}
	return false
}
