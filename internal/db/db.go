package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const dbFile = ".airbase/local.db"

// DB wraps the local SQLite database holding entity snapshots and the
// pending change queue.
type DB struct {
	conn *sql.DB
}

// Open opens an existing local database and runs any pending migrations.
func Open(baseDir string) (*DB, error) {
	dbPath := filepath.Join(baseDir, dbFile)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: run 'ab init' first")
	}

	return open(dbPath)
}

// Initialize creates the local database, its directory, and the schema.
func Initialize(baseDir string) (*DB, error) {
	dbPath := filepath.Join(baseDir, dbFile)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	return open(dbPath)
}

func open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode allows concurrent reads while writes are serialized, so a
	// reader never observes a half-written entity.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Slightly faster writes, still safe with WAL
	conn.Exec("PRAGMA synchronous=NORMAL")

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// OpenConn wraps an already-open connection and ensures the schema exists.
// Used by tests to run against an in-memory database.
func OpenConn(conn *sql.DB) (*DB, error) {
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// ClearAll wipes all local state: entity snapshots, queued changes, and the
// conflict log.
func (db *DB) ClearAll() error {
	_, err := db.conn.Exec(`
		DELETE FROM entities;
		DELETE FROM pending_changes;
		DELETE FROM sync_conflicts;
	`)
	if err != nil {
		return fmt.Errorf("clear all: %w", err)
	}
	return nil
}
