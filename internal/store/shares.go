package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/entanglement/entanglement/internal/corekit"
)

// ShareRepo persists the share_links table (spec §4.11).
type ShareRepo struct{ db *sql.DB }

func scanShare(row interface{ Scan(...any) error }) (ShareLink, error) {
	var s ShareLink
	var passwordHash sql.NullString
	var expiresAt, lastAccessedAt sql.NullString
	var maxUses sql.NullInt64
	var isActive int
	var createdAt string
	err := row.Scan(&s.ID, &s.FileID, &s.Token, &passwordHash, &s.Permissions,
		&expiresAt, &maxUses, &s.UsedCount, &isActive, &createdAt, &lastAccessedAt)
	if err != nil {
		return ShareLink{}, err
	}
	s.PasswordHash = passwordHash.String
	s.IsActive = isActive != 0
	s.CreatedAt, _ = parseTime(createdAt)
	s.ExpiresAt = parseNullTime(expiresAt)
	s.LastAccessedAt = parseNullTime(lastAccessedAt)
	if maxUses.Valid {
		n := int(maxUses.Int64)
		s.MaxUses = &n
	}
	return s, nil
}

const shareColumns = `id, file_id, token, password_hash, permissions, expires_at, max_uses, used_count, is_active, created_at, last_accessed_at`

// ByToken resolves a share link by its public token, the lookup path for
// every token-bearing request (spec §4.11).
func (r *ShareRepo) ByToken(ctx context.Context, token string) (ShareLink, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+shareColumns+` FROM share_links WHERE token = ?`, token)
	s, err := scanShare(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ShareLink{}, corekit.ErrNotFound
	}
	if err != nil {
		return ShareLink{}, fmt.Errorf("query share by token: %w", err)
	}
	return s, nil
}

// ByFile returns every share link created for a file.
func (r *ShareRepo) ByFile(ctx context.Context, fileID string) ([]ShareLink, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+shareColumns+` FROM share_links WHERE file_id = ? ORDER BY created_at DESC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("query shares by file: %w", err)
	}
	defer rows.Close()

	var out []ShareLink
	for rows.Next() {
		s, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Insert creates a new share link.
func (r *ShareRepo) Insert(ctx context.Context, s ShareLink) error {
	var maxUses sql.NullInt64
	if s.MaxUses != nil {
		maxUses = sql.NullInt64{Int64: int64(*s.MaxUses), Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO share_links (id, file_id, token, password_hash, permissions, expires_at, max_uses, used_count, is_active, created_at, last_accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.FileID, s.Token, nullableString(s.PasswordHash), s.Permissions,
		formatNullTime(s.ExpiresAt), maxUses, s.UsedCount, boolToInt(s.IsActive),
		formatTime(s.CreatedAt), formatNullTime(s.LastAccessedAt))
	if err != nil {
		return fmt.Errorf("insert share: %w", err)
	}
	return nil
}

// RecordUseTx atomically bumps used_count and last_accessed_at within an
// existing transaction, and deactivates the link if max_uses is now
// reached. The caller is responsible for re-checking expiry/active state
// before granting access; this call just records the access.
func (r *ShareRepo) RecordUseTx(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE share_links SET used_count = used_count + 1, last_accessed_at = ?,
		 is_active = CASE WHEN max_uses IS NOT NULL AND used_count + 1 >= max_uses THEN 0 ELSE is_active END
		 WHERE id = ?`,
		formatTime(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("record share use: %w", err)
	}
	return nil
}

// RevokeTx deactivates a share link within an existing transaction.
func (r *ShareRepo) RevokeTx(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `UPDATE share_links SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("revoke share: %w", err)
	}
	return nil
}
