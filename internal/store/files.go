package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/entanglement/entanglement/internal/corekit"
)

// FileRepo persists the files table.
type FileRepo struct{ db *sql.DB }

func scanFile(row interface{ Scan(...any) error }) (File, error) {
	var f File
	var currentVersion, originalHashID sql.NullString
	var isDeleted int
	var createdAt, updatedAt string
	err := row.Scan(&f.ID, &f.Path, &currentVersion, &f.OwnerID, &isDeleted,
		&originalHashID, &createdAt, &updatedAt)
	if err != nil {
		return File{}, err
	}
	f.CurrentVersion = currentVersion.String
	f.OriginalHashID = originalHashID.String
	f.IsDeleted = isDeleted != 0
	f.CreatedAt, _ = parseTime(createdAt)
	f.UpdatedAt, _ = parseTime(updatedAt)
	return f, nil
}

const fileColumns = `id, path, current_version, owner_id, is_deleted, original_hash_id, created_at, updated_at`

// ByPath resolves a live (non-deleted) file by its normalized path.
func (r *FileRepo) ByPath(ctx context.Context, path string) (File, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE path = ? AND is_deleted = 0`, path)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return File{}, corekit.ErrNotFound
	}
	if err != nil {
		return File{}, fmt.Errorf("query file by path: %w", err)
	}
	return f, nil
}

// ByID resolves a file by id, regardless of deletion state (version history
// must remain reachable per spec §3).
func (r *FileRepo) ByID(ctx context.Context, id string) (File, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return File{}, corekit.ErrNotFound
	}
	if err != nil {
		return File{}, fmt.Errorf("query file by id: %w", err)
	}
	return f, nil
}

// ByOriginalHashID resolves a file by its sticky virtual-directory id
// (spec §4.6, §3).
func (r *FileRepo) ByOriginalHashID(ctx context.Context, hashID string) (File, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE original_hash_id = ?`, hashID)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return File{}, corekit.ErrNotFound
	}
	if err != nil {
		return File{}, fmt.Errorf("query file by original hash id: %w", err)
	}
	return f, nil
}

// ListLivePrefix returns all live files whose path starts with prefix,
// ordered by path, used by list_directory to synthesize virtual
// directories (spec §4.6).
func (r *FileRepo) ListLivePrefix(ctx context.Context, prefix string) ([]File, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE path LIKE ? AND is_deleted = 0 ORDER BY path`,
		prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("list files by prefix: %w", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListUpdatedSince returns every file for owner (including soft-deleted
// ones, so deletions surface as change events) updated strictly after
// since, ordered oldest-first so callers can fold a monotonic cursor
// (spec §4.7 changes_since).
func (r *FileRepo) ListUpdatedSince(ctx context.Context, ownerID string, since time.Time) ([]File, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE owner_id = ? AND updated_at > ? ORDER BY updated_at`,
		ownerID, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("list files updated since: %w", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// InsertTx creates a new file row within an existing transaction.
func (r *FileRepo) InsertTx(ctx context.Context, tx *sql.Tx, f File) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO files (id, path, current_version, owner_id, is_deleted, original_hash_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Path, nullableString(f.CurrentVersion), f.OwnerID, boolToInt(f.IsDeleted),
		nullableString(f.OriginalHashID), formatTime(f.CreatedAt), formatTime(f.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// SetCurrentVersionTx updates a file's current_version pointer within an
// existing transaction, part of the atomic commit_version write set.
func (r *FileRepo) SetCurrentVersionTx(ctx context.Context, tx *sql.Tx, fileID, versionID string, updatedAt time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE files SET current_version = ?, updated_at = ? WHERE id = ?`,
		versionID, formatTime(updatedAt), fileID)
	if err != nil {
		return fmt.Errorf("update current version: %w", err)
	}
	return nil
}

// RenameTx updates a file's path within an existing transaction.
func (r *FileRepo) RenameTx(ctx context.Context, tx *sql.Tx, fileID, newPath string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE files SET path = ?, updated_at = ? WHERE id = ?`,
		newPath, formatTime(nowUTC()), fileID)
	if err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// SoftDeleteTx marks a file deleted within an existing transaction. It
// deliberately does not touch chunk refcounts (spec §4.6).
func (r *FileRepo) SoftDeleteTx(ctx context.Context, tx *sql.Tx, fileID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE files SET is_deleted = 1, updated_at = ? WHERE id = ?`,
		formatTime(nowUTC()), fileID)
	if err != nil {
		return fmt.Errorf("soft delete file: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
