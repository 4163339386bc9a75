package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/entanglement/entanglement/internal/corekit"
)

// VersionRepo persists the versions and version_chunks tables.
type VersionRepo struct{ db *sql.DB }

func scanVersion(row interface{ Scan(...any) error }) (Version, error) {
	var v Version
	var createdAt string
	err := row.Scan(&v.ID, &v.FileID, &v.Blake3Hash, &v.SizeBytes, &v.TierID, &v.CreatedBy, &createdAt)
	if err != nil {
		return Version{}, err
	}
	v.CreatedAt, _ = parseTime(createdAt)
	return v, nil
}

const versionColumns = `id, file_id, blake3_hash, size_bytes, tier_id, created_by, created_at`

// ByID resolves a single version by id.
func (r *VersionRepo) ByID(ctx context.Context, id string) (Version, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE id = ?`, id)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, corekit.ErrNotFound
	}
	if err != nil {
		return Version{}, fmt.Errorf("query version: %w", err)
	}
	return v, nil
}

// History returns every version of a file, newest first, for version
// history browsing and restore (spec §4.6).
func (r *VersionRepo) History(ctx context.Context, fileID string) ([]Version, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE file_id = ? ORDER BY created_at DESC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("query version history: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// InsertTx creates a version row within an existing transaction.
func (r *VersionRepo) InsertTx(ctx context.Context, tx *sql.Tx, v Version) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO versions (id, file_id, blake3_hash, size_bytes, tier_id, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.FileID, v.Blake3Hash, v.SizeBytes, v.TierID, v.CreatedBy, formatTime(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

// InsertManifestTx writes the chunk manifest for a version within an
// existing transaction, one row per (version, chunk_index) pair. This,
// together with the chunks IncRefTx calls and the file's
// current_version update, forms the atomic write set behind commit_version
// (spec §4.6, §5).
func (r *VersionRepo) InsertManifestTx(ctx context.Context, tx *sql.Tx, entries []ManifestEntry) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO version_chunks (version_id, chunk_index, chunk_hash, chunk_offset, inline_data) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare manifest insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		var hash any
		if !e.IsInline() {
			hash = e.ChunkHash
		}
		if _, err := stmt.ExecContext(ctx, e.VersionID, e.Index, hash, e.ChunkOffset, e.InlineData); err != nil {
			return fmt.Errorf("insert manifest entry %d: %w", e.Index, err)
		}
	}
	return nil
}

// Manifest returns the ordered chunk list reconstructing a version's
// content (spec §4.6 resolve_path / download).
func (r *VersionRepo) Manifest(ctx context.Context, versionID string) ([]ManifestEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT version_id, chunk_index, chunk_hash, chunk_offset, inline_data FROM version_chunks
		 WHERE version_id = ? ORDER BY chunk_index`, versionID)
	if err != nil {
		return nil, fmt.Errorf("query manifest: %w", err)
	}
	defer rows.Close()

	var out []ManifestEntry
	for rows.Next() {
		var e ManifestEntry
		var hash sql.NullString
		if err := rows.Scan(&e.VersionID, &e.Index, &hash, &e.ChunkOffset, &e.InlineData); err != nil {
			return nil, err
		}
		e.ChunkHash = hash.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// ManifestHashesTx returns the distinct chunk hashes referenced by a
// version, used when discarding a version to drop its chunk refcounts.
func (r *VersionRepo) ManifestHashesTx(ctx context.Context, tx *sql.Tx, versionID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT DISTINCT chunk_hash FROM version_chunks WHERE version_id = ? AND chunk_hash IS NOT NULL`, versionID)
	if err != nil {
		return nil, fmt.Errorf("query manifest hashes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
