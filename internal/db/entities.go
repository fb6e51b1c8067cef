package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ferris/airbase/internal/models"
)

// Entity is one stored snapshot. Data holds the entity's JSON document
// verbatim; the store never merges fields, it overwrites by id.
type Entity struct {
	Type       models.EntityType
	ID         string
	ParentID   string
	Data       json.RawMessage
	SyncStatus models.SyncStatus
	Version    int64
	UpdatedAt  time.Time
}

// SaveEntity inserts or overwrites an entity snapshot. The write is a single
// statement, so a concurrent reader sees either the old or the new snapshot,
// never a partial one.
func (db *DB) SaveEntity(e Entity) error {
	if e.ID == "" {
		return fmt.Errorf("save entity: empty id")
	}
	if len(e.Data) == 0 {
		e.Data = json.RawMessage("{}")
	}
	_, err := db.conn.Exec(`
		INSERT INTO entities (entity_type, id, parent_id, data, sync_status, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, id) DO UPDATE SET
			parent_id   = excluded.parent_id,
			data        = excluded.data,
			sync_status = excluded.sync_status,
			version     = excluded.version,
			updated_at  = excluded.updated_at`,
		e.Type, e.ID, e.ParentID, string(e.Data), e.SyncStatus, e.Version,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save entity %s/%s: %w", e.Type, e.ID, err)
	}
	return nil
}

// GetEntity returns the stored snapshot, or nil when absent.
func (db *DB) GetEntity(entityType models.EntityType, id string) (*Entity, error) {
	row := db.conn.QueryRow(`
		SELECT entity_type, id, parent_id, data, sync_status, version, updated_at
		FROM entities WHERE entity_type = ? AND id = ?`, entityType, id)
	return scanEntity(row)
}

// ListByParent returns all entities of a type under the given parent,
// ordered by insertion. Top-level types (bases) use an empty parent id.
func (db *DB) ListByParent(entityType models.EntityType, parentID string) ([]Entity, error) {
	rows, err := db.conn.Query(`
		SELECT entity_type, id, parent_id, data, sync_status, version, updated_at
		FROM entities WHERE entity_type = ? AND parent_id = ?
		ORDER BY rowid ASC`, entityType, parentID)
	if err != nil {
		return nil, fmt.Errorf("list %s by parent %s: %w", entityType, parentID, err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		e, err := scanEntityRows(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	return entities, rows.Err()
}

// MarkSynced flips an entity's sync status to synced.
func (db *DB) MarkSynced(entityType models.EntityType, id string) error {
	return db.setSyncStatus(entityType, id, models.StatusSynced)
}

// MarkFailed flips an entity's sync status to failed, making exhausted
// retries visible to the caller.
func (db *DB) MarkFailed(entityType models.EntityType, id string) error {
	return db.setSyncStatus(entityType, id, models.StatusFailed)
}

// MarkPending flips an entity's sync status back to pending.
func (db *DB) MarkPending(entityType models.EntityType, id string) error {
	return db.setSyncStatus(entityType, id, models.StatusPending)
}

func (db *DB) setSyncStatus(entityType models.EntityType, id string, status models.SyncStatus) error {
	_, err := db.conn.Exec(
		`UPDATE entities SET sync_status = ? WHERE entity_type = ? AND id = ?`,
		status, entityType, id,
	)
	if err != nil {
		return fmt.Errorf("mark %s/%s %s: %w", entityType, id, status, err)
	}
	return nil
}

// DeleteEntity removes a stored snapshot. Deleting an absent entity is a no-op.
func (db *DB) DeleteEntity(entityType models.EntityType, id string) error {
	_, err := db.conn.Exec(
		`DELETE FROM entities WHERE entity_type = ? AND id = ?`, entityType, id)
	if err != nil {
		return fmt.Errorf("delete entity %s/%s: %w", entityType, id, err)
	}
	return nil
}

func scanEntity(row *sql.Row) (*Entity, error) {
	var e Entity
	var data, ts string
	err := row.Scan(&e.Type, &e.ID, &e.ParentID, &data, &e.SyncStatus, &e.Version, &ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	e.Data = json.RawMessage(data)
	e.UpdatedAt, _ = parseTimestamp(ts)
	return &e, nil
}

func scanEntityRows(rows *sql.Rows) (*Entity, error) {
	var e Entity
	var data, ts string
	if err := rows.Scan(&e.Type, &e.ID, &e.ParentID, &data, &e.SyncStatus, &e.Version, &ts); err != nil {
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	e.Data = json.RawMessage(data)
	e.UpdatedAt, _ = parseTimestamp(ts)
	return &e, nil
}

// parseTimestamp tries common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}
