// Package store is the persistence layer realizing the logical schema from
// spec §6. It owns the *sql.DB handle and the SQL of the repositories;
// other components call those concrete repository types and use
// database/sql only for the *sql.Tx that WithTx hands them, never opening
// a connection themselves, so the SQL engine stays swappable as spec §1
// requires ("relational-database choice is external").
//
// It is backed by modernc.org/sqlite, the pure-Go driver the retrieved
// sync-daemon reference uses for its own embedded session/bitmap store,
// accessed through database/sql the same way.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a SQL handle plus the repositories built on top of it.
type DB struct {
	sql *sql.DB

	Files      *FileRepo
	Versions   *VersionRepo
	Chunks     *ChunkRepo
	Containers *ContainerRepo
	Conflicts  *ConflictRepo
	Shares     *ShareRepo
	Selective  *SelectiveRuleRepo
	Devices    *DeviceRepo
}

// Open creates (or reuses) the SQLite database at path, applies any
// pending migrations, and wires up the repositories.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only allows one writer at a time; a single connection avoids
	// SQLITE_BUSY under our own workload instead of papering over it with
	// retry loops at every call site.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if _, err := sqlDB.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := sqlDB.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := applyMigrations(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	db := &DB{sql: sqlDB}
	db.Files = &FileRepo{db: sqlDB}
	db.Versions = &VersionRepo{db: sqlDB}
	db.Chunks = &ChunkRepo{db: sqlDB}
	db.Containers = &ContainerRepo{db: sqlDB}
	db.Conflicts = &ConflictRepo{db: sqlDB}
	db.Shares = &ShareRepo{db: sqlDB}
	db.Selective = &SelectiveRuleRepo{db: sqlDB}
	db.Devices = &DeviceRepo{db: sqlDB}
	return db, nil
}

// Close drains the database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

// SchemaVersion returns the highest applied migration version, or 0 on a
// freshly created database with no rows yet.
func (d *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := d.sql.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}

// WithTx runs fn inside a single transaction, committing on success and
// rolling back on error or panic. This is the mechanism behind commit
// atomicity (spec §4.6, §5, §9): callers that must touch several tables
// indivisibly — e.g. a version insert, its manifest rows, and the file's
// current_version pointer — pass all of those statements to one WithTx
// call so a crash mid-commit can never leave a partially visible version.
func (d *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil
	}
	return &t
}
