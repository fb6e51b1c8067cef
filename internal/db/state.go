package db

import (
	"database/sql"
	"fmt"
	"time"
)

// LastSyncAt returns the time the last successful sync cycle completed, or
// nil when no cycle has run yet.
func (db *DB) LastSyncAt() (*time.Time, error) {
	var value string
	err := db.conn.QueryRow(`SELECT value FROM sync_state WHERE key = 'last_sync_at'`).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read last sync time: %w", err)
	}
	t, err := parseTimestamp(value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SetLastSyncAt records the completion time of a sync cycle.
func (db *DB) SetLastSyncAt(t time.Time) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO sync_state (key, value) VALUES ('last_sync_at', ?)`,
		t.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set last sync time: %w", err)
	}
	return nil
}
