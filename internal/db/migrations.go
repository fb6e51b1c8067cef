package db

import "fmt"

const schemaVersion = 1

var schema = `
CREATE TABLE IF NOT EXISTS schema_info (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	entity_type TEXT NOT NULL,
	id          TEXT NOT NULL,
	parent_id   TEXT NOT NULL DEFAULT '',
	data        JSON NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'pending',
	version     INTEGER NOT NULL DEFAULT 1,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (entity_type, id)
);
CREATE INDEX IF NOT EXISTS idx_entities_parent ON entities(entity_type, parent_id);

CREATE TABLE IF NOT EXISTS pending_changes (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type     TEXT NOT NULL,
	entity_id       TEXT NOT NULL,
	change_type     TEXT NOT NULL,
	payload         JSON NOT NULL DEFAULT '{}',
	base_version    INTEGER NOT NULL DEFAULT 0,
	idempotency_key TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	retry_count     INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_pending_entity ON pending_changes(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS sync_conflicts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	change_id   INTEGER NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	local_data  JSON,
	remote_data JSON,
	detected_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sync_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// migrate creates the schema and stamps the version. Schema statements are
// idempotent, so re-running against an existing database is safe.
func (db *DB) migrate() error {
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", schemaVersion),
	)
	if err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return nil
}

// SchemaVersion returns the stamped schema version, 0 when unstamped.
func (db *DB) SchemaVersion() (int, error) {
	var value string
	err := db.conn.QueryRow(`SELECT value FROM schema_info WHERE key = 'version'`).Scan(&value)
	if err != nil {
		return 0, nil
	}
	var v int
	fmt.Sscanf(value, "%d", &v)
	return v, nil
}
