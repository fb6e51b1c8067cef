package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ferris/airbase/internal/models"
)

// RecordConflict appends a detected conflict to the conflict log so it stays
// visible across restarts until resolved.
func (db *DB) RecordConflict(c models.Conflict) error {
	localJSON := "null"
	if c.LocalSnapshot != nil {
		localJSON = string(c.LocalSnapshot)
	}
	remoteJSON := "null"
	if c.RemoteSnapshot != nil {
		remoteJSON = string(c.RemoteSnapshot)
	}
	_, err := db.conn.Exec(`
		INSERT INTO sync_conflicts (change_id, entity_type, entity_id, local_data, remote_data, detected_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ChangeID, c.EntityType, c.EntityID, localJSON, remoteJSON,
		c.DetectedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record conflict %s/%s: %w", c.EntityType, c.EntityID, err)
	}
	return nil
}

// ListConflicts returns recorded conflicts, most recent first.
func (db *DB) ListConflicts(limit int) ([]models.Conflict, error) {
	rows, err := db.conn.Query(`
		SELECT change_id, entity_type, entity_id, COALESCE(local_data,'null'), COALESCE(remote_data,'null'), detected_at
		FROM sync_conflicts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []models.Conflict
	for rows.Next() {
		var c models.Conflict
		var local, remote, ts string
		if err := rows.Scan(&c.ChangeID, &c.EntityType, &c.EntityID, &local, &remote, &ts); err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		c.LocalSnapshot = json.RawMessage(local)
		c.RemoteSnapshot = json.RawMessage(remote)
		c.DetectedAt, _ = parseTimestamp(ts)
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// ClearConflictsFor removes logged conflicts for a change once it has been
// resolved or discarded.
func (db *DB) ClearConflictsFor(changeID int64) error {
	_, err := db.conn.Exec(`DELETE FROM sync_conflicts WHERE change_id = ?`, changeID)
	if err != nil {
		return fmt.Errorf("clear conflicts for change %d: %w", changeID, err)
	}
	return nil
}
