package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ferris/airbase/internal/models"
)

// Enqueue appends a mutation to the pending change queue and returns it.
//
// Cancellation rule: enqueueing a delete for an entity whose create is still
// queued removes the create (and any queued updates) instead of appending
// the delete — the server has never seen the id, so there is nothing to
// delete remotely. In that case Enqueue returns (nil, nil).
func (db *DB) Enqueue(changeType models.ChangeType, entityType models.EntityType, entityID string, payload json.RawMessage, baseVersion int64) (*models.PendingChange, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	if changeType == models.ChangeDelete {
		cancelled, err := db.cancelQueuedCreate(entityType, entityID)
		if err != nil {
			return nil, err
		}
		if cancelled {
			return nil, nil
		}
	}

	change := models.PendingChange{
		EntityType:     entityType,
		EntityID:       entityID,
		ChangeType:     changeType,
		Payload:        payload,
		BaseVersion:    baseVersion,
		IdempotencyKey: uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
	}

	res, err := db.conn.Exec(`
		INSERT INTO pending_changes (entity_type, entity_id, change_type, payload, base_version, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		change.EntityType, change.EntityID, change.ChangeType,
		string(change.Payload), change.BaseVersion, change.IdempotencyKey,
		change.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s %s/%s: %w", changeType, entityType, entityID, err)
	}

	change.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("enqueue last insert id: %w", err)
	}
	return &change, nil
}

// cancelQueuedCreate removes a still-queued create (and any updates riding on
// it) for the entity. Returns true when a create was found and removed.
func (db *DB) cancelQueuedCreate(entityType models.EntityType, entityID string) (bool, error) {
	var createID int64
	err := db.conn.QueryRow(`
		SELECT id FROM pending_changes
		WHERE entity_type = ? AND entity_id = ? AND change_type = ?`,
		entityType, entityID, models.ChangeCreate,
	).Scan(&createID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup queued create: %w", err)
	}

	_, err = db.conn.Exec(`
		DELETE FROM pending_changes WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID)
	if err != nil {
		return false, fmt.Errorf("cancel queued create %s/%s: %w", entityType, entityID, err)
	}
	return true, nil
}

// HasQueuedDelete reports whether a delete is already queued for the entity.
// An entity awaiting deletion accepts no further mutations.
func (db *DB) HasQueuedDelete(entityType models.EntityType, entityID string) (bool, error) {
	var n int
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM pending_changes
		WHERE entity_type = ? AND entity_id = ? AND change_type = ?`,
		entityType, entityID, models.ChangeDelete,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup queued delete: %w", err)
	}
	return n > 0, nil
}

// HasQueuedChanges reports whether any change is queued for the entity. New
// mutations on such an entity must queue behind them to keep per-entity order.
func (db *DB) HasQueuedChanges(entityType models.EntityType, entityID string) (bool, error) {
	var n int
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM pending_changes
		WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup queued changes: %w", err)
	}
	return n > 0, nil
}

// ListPending returns all queued changes in creation order.
func (db *DB) ListPending() ([]models.PendingChange, error) {
	rows, err := db.conn.Query(`
		SELECT id, entity_type, entity_id, change_type, payload, base_version, idempotency_key, created_at, retry_count, last_error
		FROM pending_changes ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending changes: %w", err)
	}
	defer rows.Close()

	var changes []models.PendingChange
	for rows.Next() {
		var c models.PendingChange
		var payload, ts string
		if err := rows.Scan(&c.ID, &c.EntityType, &c.EntityID, &c.ChangeType, &payload, &c.BaseVersion, &c.IdempotencyKey, &ts, &c.RetryCount, &c.LastError); err != nil {
			return nil, fmt.Errorf("scan pending change: %w", err)
		}
		c.Payload = json.RawMessage(payload)
		c.CreatedAt, _ = parseTimestamp(ts)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// CountPending returns the number of queued changes.
func (db *DB) CountPending() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM pending_changes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// GetChange returns a single queued change by id, or nil when absent.
func (db *DB) GetChange(id int64) (*models.PendingChange, error) {
	var c models.PendingChange
	var payload, ts string
	err := db.conn.QueryRow(`
		SELECT id, entity_type, entity_id, change_type, payload, base_version, idempotency_key, created_at, retry_count, last_error
		FROM pending_changes WHERE id = ?`, id,
	).Scan(&c.ID, &c.EntityType, &c.EntityID, &c.ChangeType, &payload, &c.BaseVersion, &c.IdempotencyKey, &ts, &c.RetryCount, &c.LastError)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get change %d: %w", id, err)
	}
	c.Payload = json.RawMessage(payload)
	c.CreatedAt, _ = parseTimestamp(ts)
	return &c, nil
}

// Remove deletes a queued change.
func (db *DB) Remove(id int64) error {
	_, err := db.conn.Exec(`DELETE FROM pending_changes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove change %d: %w", id, err)
	}
	return nil
}

// IncrementRetry bumps a change's retry counter and records the error that
// caused it. Returns the new retry count.
func (db *DB) IncrementRetry(id int64, errMsg string) (int, error) {
	_, err := db.conn.Exec(
		`UPDATE pending_changes SET retry_count = retry_count + 1, last_error = ? WHERE id = ?`,
		errMsg, id,
	)
	if err != nil {
		return 0, fmt.Errorf("increment retry %d: %w", id, err)
	}
	var count int
	if err := db.conn.QueryRow(`SELECT retry_count FROM pending_changes WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("read retry count %d: %w", id, err)
	}
	return count, nil
}

// ParkChange sets a change's retry counter straight to the bound so the
// scheduler stops auto-retrying it. Used when the server rejects a change
// outright and retrying cannot help.
func (db *DB) ParkChange(id int64, retryCount int, errMsg string) error {
	_, err := db.conn.Exec(
		`UPDATE pending_changes SET retry_count = ?, last_error = ? WHERE id = ?`,
		retryCount, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("park change %d: %w", id, err)
	}
	return nil
}

// ResetRetry clears a change's retry counter and last error so the scheduler
// picks it up again. Used for manual retry of a failed change.
func (db *DB) ResetRetry(id int64) error {
	_, err := db.conn.Exec(
		`UPDATE pending_changes SET retry_count = 0, last_error = '' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("reset retry %d: %w", id, err)
	}
	return nil
}

// RewriteEntityID repoints every queued change from a provisional id to the
// server-issued one, including payload references to the old id (records
// created offline carry their provisional table id in the payload).
func (db *DB) RewriteEntityID(oldID, newID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin rewrite tx: %w", err)
	}
	defer tx.Rollback()

	if err := rewriteEntityIDTx(tx, oldID, newID); err != nil {
		return err
	}
	return tx.Commit()
}

func rewriteEntityIDTx(tx *sql.Tx, oldID, newID string) error {
	if _, err := tx.Exec(
		`UPDATE pending_changes SET entity_id = ? WHERE entity_id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("rewrite entity id %s -> %s: %w", oldID, newID, err)
	}

	rows, err := tx.Query(`SELECT id, payload FROM pending_changes`)
	if err != nil {
		return fmt.Errorf("scan payloads for rewrite: %w", err)
	}
	defer rows.Close()

	type patch struct {
		id      int64
		payload string
	}
	var patches []patch
	for rows.Next() {
		var id int64
		var payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scan payload row: %w", err)
		}
		rewritten, changed, err := rewritePayloadRefs([]byte(payload), oldID, newID)
		if err != nil {
			return fmt.Errorf("rewrite payload of change %d: %w", id, err)
		}
		if changed {
			patches = append(patches, patch{id: id, payload: string(rewritten)})
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range patches {
		if _, err := tx.Exec(`UPDATE pending_changes SET payload = ? WHERE id = ?`, p.payload, p.id); err != nil {
			return fmt.Errorf("update payload of change %d: %w", p.id, err)
		}
	}
	return nil
}

// rewritePayloadRefs replaces top-level string values equal to oldID. Only
// identifier fields live at the top level of a change payload; nested record
// fields are user data and are left alone.
func rewritePayloadRefs(payload []byte, oldID, newID string) ([]byte, bool, error) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return payload, false, err
	}
	changed := false
	for k, v := range doc {
		if s, ok := v.(string); ok && s == oldID {
			doc[k] = newID
			changed = true
		}
	}
	if !changed {
		return payload, false, nil
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return payload, false, err
	}
	return out, true, nil
}

// ConfirmCreate finalizes a confirmed create in one transaction: the entity
// row moves from its provisional id to the server id, children are
// repointed, remaining queued changes are rewritten, the change is removed,
// and the entity is marked synced. Convergence depends on all of this being
// atomic.
func (db *DB) ConfirmCreate(entityType models.EntityType, oldID, newID string, data json.RawMessage, version int64, changeID int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin confirm create tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE entities SET id = ?, data = ?, sync_status = ?, version = ?, updated_at = ?
		WHERE entity_type = ? AND id = ?`,
		newID, string(data), models.StatusSynced, version,
		time.Now().UTC().Format(time.RFC3339Nano), entityType, oldID,
	); err != nil {
		return fmt.Errorf("remap entity %s/%s: %w", entityType, oldID, err)
	}

	// Children created offline still point at the provisional parent id.
	if oldID != newID {
		if _, err := tx.Exec(
			`UPDATE entities SET parent_id = ? WHERE parent_id = ?`, newID, oldID); err != nil {
			return fmt.Errorf("repoint children of %s: %w", oldID, err)
		}
		if err := rewriteEntityIDTx(tx, oldID, newID); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`DELETE FROM pending_changes WHERE id = ?`, changeID); err != nil {
		return fmt.Errorf("remove confirmed create %d: %w", changeID, err)
	}
	return tx.Commit()
}

// ConfirmUpdate persists the server's snapshot, marks the entity synced, and
// removes the confirmed change atomically.
func (db *DB) ConfirmUpdate(entityType models.EntityType, id string, data json.RawMessage, version int64, changeID int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin confirm update tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE entities SET data = ?, sync_status = ?, version = ?, updated_at = ?
		WHERE entity_type = ? AND id = ?`,
		string(data), models.StatusSynced, version,
		time.Now().UTC().Format(time.RFC3339Nano), entityType, id,
	); err != nil {
		return fmt.Errorf("confirm update %s/%s: %w", entityType, id, err)
	}

	if _, err := tx.Exec(`DELETE FROM pending_changes WHERE id = ?`, changeID); err != nil {
		return fmt.Errorf("remove confirmed update %d: %w", changeID, err)
	}
	return tx.Commit()
}

// ConfirmDelete removes the local entity and the confirmed change atomically.
func (db *DB) ConfirmDelete(entityType models.EntityType, id string, changeID int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin confirm delete tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM entities WHERE entity_type = ? AND id = ?`, entityType, id); err != nil {
		return fmt.Errorf("confirm delete %s/%s: %w", entityType, id, err)
	}
	if _, err := tx.Exec(`DELETE FROM pending_changes WHERE id = ?`, changeID); err != nil {
		return fmt.Errorf("remove confirmed delete %d: %w", changeID, err)
	}
	return tx.Commit()
}
