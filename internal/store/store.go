// Package store persists graph snapshots in SQLite so indexing can resume
// incrementally across sessions.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNoSnapshot is returned by LoadSnapshot when nothing has been saved.
var ErrNoSnapshot = errors.New("store: no snapshot")

// schemaVersion is bumped whenever schemaDDL changes incompatibly.
const schemaVersion = "1"

// Store is the SQLite persistence layer for graph snapshots.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Clear deletes every saved row, leaving the schema in place.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear: begin: %w", err)
	}
	defer tx.Rollback()

	if err := clearTx(ctx, tx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return tx.Commit()
}

// clearTx deletes in reverse-dependency order to respect FK constraints.
func clearTx(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{
		"errors",
		"locations",
		"contributions",
		"file_contributions",
		"node_attributes",
		"edges",
		"nodes",
		"files",
		"metadata",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  signature       TEXT NOT NULL,
  sealed          BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS file_contributions (
  file_id         INTEGER NOT NULL REFERENCES files(id),
  entity_id       INTEGER NOT NULL,
  PRIMARY KEY (file_id, entity_id)
);

CREATE TABLE IF NOT EXISTS nodes (
  id              INTEGER PRIMARY KEY,
  kind            TEXT NOT NULL,
  name            TEXT NOT NULL,
  attributes      TEXT,
  UNIQUE (kind, name)
);

CREATE TABLE IF NOT EXISTS node_attributes (
  node_id         INTEGER NOT NULL REFERENCES nodes(id),
  file            TEXT NOT NULL,
  key             TEXT NOT NULL,
  value           TEXT NOT NULL,
  PRIMARY KEY (node_id, file, key)
);

CREATE TABLE IF NOT EXISTS edges (
  id              INTEGER PRIMARY KEY,
  kind            TEXT NOT NULL,
  source_id       INTEGER NOT NULL REFERENCES nodes(id),
  target_id       INTEGER NOT NULL REFERENCES nodes(id),
  UNIQUE (kind, source_id, target_id)
);

CREATE TABLE IF NOT EXISTS contributions (
  entity_id       INTEGER NOT NULL,
  file            TEXT NOT NULL,
  PRIMARY KEY (entity_id, file)
);

CREATE TABLE IF NOT EXISTS locations (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL,
  file            TEXT NOT NULL,
  owner_id        INTEGER NOT NULL,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS errors (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL,
  file            TEXT NOT NULL,
  message         TEXT NOT NULL,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(name);
CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);
CREATE INDEX IF NOT EXISTS idx_locations_file ON locations(file);
CREATE INDEX IF NOT EXISTS idx_locations_owner ON locations(owner_id);
CREATE INDEX IF NOT EXISTS idx_errors_file ON errors(file);
CREATE INDEX IF NOT EXISTS idx_contributions_file ON contributions(file);
CREATE INDEX IF NOT EXISTS idx_node_attributes_file ON node_attributes(file);
`
