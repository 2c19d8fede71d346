// Package store implements the PersistenceStore component: durable records
// for messages, groups, tasks, workspaces, bindings, tokens, per-workspace
// sessions, and container/request metrics, backed by embedded SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nanogridbot/nanogridbot/internal/config"
	"github.com/nanogridbot/nanogridbot/internal/rterr"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) the SQLite database at cfg.Path, enables
// WAL mode and a busy timeout so writers retry instead of failing with
// SQLITE_BUSY, and runs migrations.
func New(cfg config.StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = "data/messages.db"
	}
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, rterr.New(rterr.Database, "create data dir", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, rterr.New(rterr.Database, "open sqlite", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	if err := db.Ping(); err != nil {
		return nil, rterr.New(rterr.Database, "ping sqlite", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, rterr.New(rterr.Database, "exec "+p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, rterr.New(rterr.Database, "migrate", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id          TEXT PRIMARY KEY,
			chat_jid    TEXT NOT NULL,
			sender      TEXT NOT NULL,
			sender_name TEXT,
			content     TEXT NOT NULL,
			timestamp   DATETIME NOT NULL,
			is_from_me  INTEGER NOT NULL DEFAULT 0,
			role        TEXT NOT NULL DEFAULT 'user'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages(chat_jid, timestamp)`,
		`CREATE TABLE IF NOT EXISTS groups (
			jid              TEXT PRIMARY KEY,
			name             TEXT NOT NULL,
			folder           TEXT NOT NULL,
			trigger_pattern  TEXT,
			container_config TEXT,
			requires_trigger INTEGER NOT NULL DEFAULT 0,
			is_main          INTEGER NOT NULL DEFAULT 0,
			created_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at       DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			group_folder   TEXT NOT NULL,
			prompt         TEXT NOT NULL,
			schedule_type  TEXT NOT NULL,
			schedule_value TEXT NOT NULL,
			status         TEXT NOT NULL DEFAULT 'active',
			next_run       DATETIME,
			context_mode   TEXT NOT NULL DEFAULT 'isolated',
			target_chat_jid TEXT,
			created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(status, next_run)`,
		`CREATE TABLE IF NOT EXISTS workspaces (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS access_tokens (
			id           TEXT PRIMARY KEY,
			token_hash   BLOB NOT NULL,
			salt         BLOB NOT NULL,
			workspace_id TEXT NOT NULL REFERENCES workspaces(id),
			used         INTEGER NOT NULL DEFAULT 0,
			created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS channel_bindings (
			channel_jid  TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL REFERENCES workspaces(id),
			created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			group_folder TEXT PRIMARY KEY,
			session_id   TEXT NOT NULL,
			updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS container_metrics (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			group_folder TEXT NOT NULL,
			chat_jid     TEXT,
			status       TEXT NOT NULL,
			start_time   DATETIME NOT NULL,
			end_time     DATETIME,
			duration_ms  INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS request_metrics (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			group_folder TEXT NOT NULL,
			kind         TEXT NOT NULL,
			status       TEXT NOT NULL,
			created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}
