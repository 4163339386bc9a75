package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/entanglement/entanglement/internal/corekit"
)

// ConflictRepo persists the sync_conflicts table (spec §4.9).
type ConflictRepo struct{ db *sql.DB }

func scanConflict(row interface{ Scan(...any) error }) (Conflict, error) {
	var c Conflict
	var localVersion, remoteVersion, resolvedBy sql.NullString
	var detectedAt string
	var resolvedAt sql.NullString
	err := row.Scan(&c.ID, &c.FileID, &localVersion, &remoteVersion, &c.Kind,
		&detectedAt, &c.Resolution, &resolvedAt, &resolvedBy)
	if err != nil {
		return Conflict{}, err
	}
	c.LocalVersion = localVersion.String
	c.RemoteVersion = remoteVersion.String
	c.ResolvedBy = resolvedBy.String
	c.DetectedAt, _ = parseTime(detectedAt)
	c.ResolvedAt = parseNullTime(resolvedAt)
	return c, nil
}

const conflictColumns = `id, file_id, local_version, remote_version, kind, detected_at, resolution, resolved_at, resolved_by`

// ByID resolves a single conflict record.
func (r *ConflictRepo) ByID(ctx context.Context, id string) (Conflict, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM sync_conflicts WHERE id = ?`, id)
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Conflict{}, corekit.ErrNotFound
	}
	if err != nil {
		return Conflict{}, fmt.Errorf("query conflict: %w", err)
	}
	return c, nil
}

// Unresolved returns every open conflict for a file.
func (r *ConflictRepo) Unresolved(ctx context.Context, fileID string) ([]Conflict, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+conflictColumns+` FROM sync_conflicts WHERE file_id = ? AND resolution = 'unresolved' ORDER BY detected_at`,
		fileID)
	if err != nil {
		return nil, fmt.Errorf("query unresolved conflicts: %w", err)
	}
	defer rows.Close()

	var out []Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertTx records a newly detected conflict within an existing transaction.
func (r *ConflictRepo) InsertTx(ctx context.Context, tx *sql.Tx, c Conflict) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO sync_conflicts (id, file_id, local_version, remote_version, kind, detected_at, resolution, resolved_at, resolved_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FileID, nullableString(c.LocalVersion), nullableString(c.RemoteVersion), c.Kind,
		formatTime(c.DetectedAt), c.Resolution, formatNullTime(c.ResolvedAt), nullableString(c.ResolvedBy))
	if err != nil {
		return fmt.Errorf("insert conflict: %w", err)
	}
	return nil
}

// ResolveTx marks a conflict resolved within an existing transaction.
func (r *ConflictRepo) ResolveTx(ctx context.Context, tx *sql.Tx, id, resolution, resolvedBy string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE sync_conflicts SET resolution = ?, resolved_at = ?, resolved_by = ? WHERE id = ?`,
		resolution, formatTime(nowUTC()), resolvedBy, id)
	if err != nil {
		return fmt.Errorf("resolve conflict: %w", err)
	}
	return nil
}
