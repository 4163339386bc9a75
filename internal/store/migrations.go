package store

import (
	"database/sql"
	"fmt"
)

// migration is one forward-only schema step, tracked by version number in
// schema_migrations the same way the retrieved sync-daemon reference
// tracks its own SQLite schema version.
type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS files (
				id TEXT PRIMARY KEY,
				path TEXT NOT NULL,
				current_version TEXT,
				owner_id TEXT NOT NULL DEFAULT '',
				is_deleted INTEGER NOT NULL DEFAULT 0,
				original_hash_id TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_files_path_live ON files(path) WHERE is_deleted = 0`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_files_original_hash_id ON files(original_hash_id) WHERE original_hash_id IS NOT NULL`,

			`CREATE TABLE IF NOT EXISTS versions (
				id TEXT PRIMARY KEY,
				file_id TEXT NOT NULL REFERENCES files(id),
				blake3_hash TEXT NOT NULL,
				size_bytes INTEGER NOT NULL,
				tier_id INTEGER NOT NULL,
				created_by TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_versions_file_id ON versions(file_id, created_at)`,

			`CREATE TABLE IF NOT EXISTS blob_containers (
				id TEXT PRIMARY KEY,
				disk_path TEXT NOT NULL UNIQUE,
				total_size INTEGER NOT NULL DEFAULT 0,
				chunk_count INTEGER NOT NULL DEFAULT 0,
				is_sealed INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				sealed_at TEXT
			)`,

			`CREATE TABLE IF NOT EXISTS chunks (
				hash TEXT PRIMARY KEY,
				length_bytes INTEGER NOT NULL,
				refcount INTEGER NOT NULL DEFAULT 0,
				container_id TEXT REFERENCES blob_containers(id),
				offset_bytes INTEGER,
				stored_length_bytes INTEGER,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chunks_refcount_zero ON chunks(refcount) WHERE refcount = 0`,
			`CREATE INDEX IF NOT EXISTS idx_chunks_container ON chunks(container_id)`,

			`CREATE TABLE IF NOT EXISTS version_chunks (
				version_id TEXT NOT NULL REFERENCES versions(id),
				chunk_index INTEGER NOT NULL,
				chunk_hash TEXT REFERENCES chunks(hash),
				chunk_offset INTEGER NOT NULL,
				inline_data BLOB,
				UNIQUE(version_id, chunk_index)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_version_chunks_hash ON version_chunks(chunk_hash)`,

			`CREATE TABLE IF NOT EXISTS sync_conflicts (
				id TEXT PRIMARY KEY,
				file_id TEXT NOT NULL REFERENCES files(id),
				local_version TEXT,
				remote_version TEXT,
				kind TEXT NOT NULL,
				detected_at TEXT NOT NULL,
				resolution TEXT NOT NULL DEFAULT 'unresolved',
				resolved_at TEXT,
				resolved_by TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_conflicts_file ON sync_conflicts(file_id)`,

			`CREATE TABLE IF NOT EXISTS share_links (
				id TEXT PRIMARY KEY,
				file_id TEXT NOT NULL REFERENCES files(id),
				token TEXT NOT NULL UNIQUE,
				password_hash TEXT,
				permissions TEXT NOT NULL,
				expires_at TEXT,
				max_uses INTEGER,
				used_count INTEGER NOT NULL DEFAULT 0,
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				last_accessed_at TEXT
			)`,

			`CREATE TABLE IF NOT EXISTS selective_sync_rules (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				pattern TEXT NOT NULL,
				priority INTEGER NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 1
			)`,
			`CREATE INDEX IF NOT EXISTS idx_selective_rules_user ON selective_sync_rules(user_id, priority DESC)`,

			`CREATE TABLE IF NOT EXISTS device_sync_state (
				user_id TEXT NOT NULL,
				device_id TEXT NOT NULL,
				last_cursor TEXT NOT NULL,
				synced_bytes INTEGER NOT NULL DEFAULT 0,
				max_sync_bytes INTEGER,
				UNIQUE(user_id, device_id)
			)`,
		},
	},
}

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[int]bool{}
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d: %w", m.version, err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version, applied_at) VALUES (?, ?)`,
			m.version, nowUTC().Format(timeLayout)); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"
