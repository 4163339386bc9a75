package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/entanglement/entanglement/internal/corekit"
)

// ChunkRepo persists the chunks table, the single source of truth for both
// the dedup map (C5) and the physical location a packfile container or the
// legacy blob layout resolves to (C4). Both components read and write
// through this repo rather than keeping their own copies.
type ChunkRepo struct{ db *sql.DB }

func scanChunk(row interface{ Scan(...any) error }) (Chunk, error) {
	var c Chunk
	var containerID sql.NullString
	var offset, storedLength sql.NullInt64
	var createdAt string
	err := row.Scan(&c.Hash, &c.LengthBytes, &c.Refcount, &containerID, &offset, &storedLength, &createdAt)
	if err != nil {
		return Chunk{}, err
	}
	c.ContainerID = containerID.String
	c.Offset = uint64(offset.Int64)
	c.StoredLength = uint64(storedLength.Int64)
	c.CreatedAt, _ = parseTime(createdAt)
	return c, nil
}

const chunkColumns = `hash, length_bytes, refcount, container_id, offset_bytes, stored_length_bytes, created_at`

// Get resolves a chunk by its content hash.
func (r *ChunkRepo) Get(ctx context.Context, hash string) (Chunk, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE hash = ?`, hash)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Chunk{}, corekit.ErrNotFound
	}
	if err != nil {
		return Chunk{}, fmt.Errorf("query chunk: %w", err)
	}
	return c, nil
}

// Contains reports which of the given hashes are already indexed, for the
// delta-sync check_chunks step (spec §4.7).
func (r *ChunkRepo) Contains(ctx context.Context, hashes []string) (map[string]bool, error) {
	out := make(map[string]bool, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	placeholders := make([]byte, 0, len(hashes)*2)
	args := make([]any, len(hashes))
	for i, h := range hashes {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = h
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT hash FROM chunks WHERE hash IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("query chunk presence: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out[h] = true
	}
	return out, rows.Err()
}

// CreateTx inserts a brand new chunk row with refcount 0, within an
// existing transaction. Callers must have already confirmed the hash is
// absent. commit_version owns every refcount increment (spec §3 Chunk
// invariant: refcount equals the number of manifest entries referencing
// it), so a chunk that is written but never committed into a manifest
// stays at refcount 0 and is reclaimed by the next GC pass.
func (r *ChunkRepo) CreateTx(ctx context.Context, tx *sql.Tx, c Chunk) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO chunks (hash, length_bytes, refcount, container_id, offset_bytes, stored_length_bytes, created_at)
		 VALUES (?, ?, 0, ?, ?, ?, ?)`,
		c.Hash, c.LengthBytes, nullableString(c.ContainerID), c.Offset, c.StoredLength, formatTime(nowUTC()))
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

// SetLocationTx records where a chunk's bytes physically live once its
// container has been written, within an existing transaction.
func (r *ChunkRepo) SetLocationTx(ctx context.Context, tx *sql.Tx, hash, containerID string, offset, storedLength uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE chunks SET container_id = ?, offset_bytes = ?, stored_length_bytes = ? WHERE hash = ?`,
		containerID, offset, storedLength, hash)
	if err != nil {
		return fmt.Errorf("set chunk location: %w", err)
	}
	return nil
}

// IncRefTx bumps a chunk's refcount by one within an existing transaction,
// called during commit_version once per manifest entry that references the
// chunk.
func (r *ChunkRepo) IncRefTx(ctx context.Context, tx *sql.Tx, hash string) error {
	res, err := tx.ExecContext(ctx, `UPDATE chunks SET refcount = refcount + 1 WHERE hash = ?`, hash)
	if err != nil {
		return fmt.Errorf("incref chunk: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return corekit.ErrNotFound
	}
	return nil
}

// DecRefTx drops a chunk's refcount by one within an existing transaction,
// called when a version referencing it is permanently discarded. Refcount
// is never allowed to go negative.
func (r *ChunkRepo) DecRefTx(ctx context.Context, tx *sql.Tx, hash string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE chunks SET refcount = refcount - 1 WHERE hash = ? AND refcount > 0`, hash)
	if err != nil {
		return fmt.Errorf("decref chunk: %w", err)
	}
	return nil
}

// ListZeroRefcount returns up to limit chunks eligible for garbage
// collection (spec §4.12).
func (r *ChunkRepo) ListZeroRefcount(ctx context.Context, limit int) ([]Chunk, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE refcount = 0 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list zero-refcount chunks: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteTx removes a chunk's index row within an existing transaction, the
// final step of reclaiming a zero-refcount chunk.
func (r *ChunkRepo) DeleteTx(ctx context.Context, tx *sql.Tx, hash string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE hash = ? AND refcount = 0`, hash)
	if err != nil {
		return fmt.Errorf("delete chunk: %w", err)
	}
	return nil
}

// ListByContainer returns every chunk stored in the given container, used
// by compaction to know what must be rewritten or dropped.
func (r *ChunkRepo) ListByContainer(ctx context.Context, containerID string) ([]Chunk, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE container_id = ? ORDER BY offset_bytes`, containerID)
	if err != nil {
		return nil, fmt.Errorf("list chunks by container: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
