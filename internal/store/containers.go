package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/entanglement/entanglement/internal/corekit"
)

// ContainerRepo persists the blob_containers table (spec §4.4).
type ContainerRepo struct{ db *sql.DB }

func scanContainer(row interface{ Scan(...any) error }) (Container, error) {
	var c Container
	var isSealed int
	var createdAt string
	var sealedAt sql.NullString
	err := row.Scan(&c.ID, &c.DiskPath, &c.TotalSize, &c.ChunkCount, &isSealed, &createdAt, &sealedAt)
	if err != nil {
		return Container{}, err
	}
	c.IsSealed = isSealed != 0
	c.CreatedAt, _ = parseTime(createdAt)
	c.SealedAt = parseNullTime(sealedAt)
	return c, nil
}

const containerColumns = `id, disk_path, total_size, chunk_count, is_sealed, created_at, sealed_at`

// ByID resolves a container by id.
func (r *ContainerRepo) ByID(ctx context.Context, id string) (Container, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+containerColumns+` FROM blob_containers WHERE id = ?`, id)
	c, err := scanContainer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Container{}, corekit.ErrNotFound
	}
	if err != nil {
		return Container{}, fmt.Errorf("query container: %w", err)
	}
	return c, nil
}

// CurrentUnsealed returns the single container still accepting appends, if
// any (spec §4.4: exactly one container is written to at a time).
func (r *ContainerRepo) CurrentUnsealed(ctx context.Context) (Container, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+containerColumns+` FROM blob_containers WHERE is_sealed = 0 ORDER BY created_at DESC LIMIT 1`)
	c, err := scanContainer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Container{}, corekit.ErrNotFound
	}
	if err != nil {
		return Container{}, fmt.Errorf("query current container: %w", err)
	}
	return c, nil
}

// InsertTx creates a new container row within an existing transaction.
func (r *ContainerRepo) InsertTx(ctx context.Context, tx *sql.Tx, c Container) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO blob_containers (id, disk_path, total_size, chunk_count, is_sealed, created_at, sealed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DiskPath, c.TotalSize, c.ChunkCount, boolToInt(c.IsSealed), formatTime(c.CreatedAt), formatNullTime(c.SealedAt))
	if err != nil {
		return fmt.Errorf("insert container: %w", err)
	}
	return nil
}

// GrowTx records that length bytes were appended and one more chunk was
// written, within an existing transaction.
func (r *ContainerRepo) GrowTx(ctx context.Context, tx *sql.Tx, id string, length uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE blob_containers SET total_size = total_size + ?, chunk_count = chunk_count + 1 WHERE id = ?`,
		length, id)
	if err != nil {
		return fmt.Errorf("grow container: %w", err)
	}
	return nil
}

// SealTx marks a container as no longer accepting appends, typically once
// it crosses the seal threshold (spec §4.4).
func (r *ContainerRepo) SealTx(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE blob_containers SET is_sealed = 1, sealed_at = ? WHERE id = ?`,
		formatTime(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("seal container: %w", err)
	}
	return nil
}

// ListSealed returns every sealed container; the caller picks out the
// compaction candidates among them (spec §4.12). Occupancy is computed
// by the caller from ChunkRepo.ListByContainer against total_size; this
// just returns every sealed container for the caller to filter, since the
// live/dead split requires joining against refcount.
func (r *ContainerRepo) ListSealed(ctx context.Context) ([]Container, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+containerColumns+` FROM blob_containers WHERE is_sealed = 1`)
	if err != nil {
		return nil, fmt.Errorf("list sealed containers: %w", err)
	}
	defer rows.Close()

	var out []Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteTx removes a container row within an existing transaction, once
// compaction has rewritten or dropped everything it held.
func (r *ContainerRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM blob_containers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete container: %w", err)
	}
	return nil
}
