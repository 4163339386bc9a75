package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/entanglement/entanglement/internal/corekit"
)

// DeviceRepo persists the device_sync_state table, tracking each device's
// changes_since cursor and bandwidth quota (spec §4.7).
type DeviceRepo struct{ db *sql.DB }

// Get resolves a device's sync state, or ErrNotFound if the device has
// never synced before (callers should then treat cursor as the epoch).
func (r *DeviceRepo) Get(ctx context.Context, userID, deviceID string) (DeviceSyncState, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, device_id, last_cursor, synced_bytes, max_sync_bytes FROM device_sync_state
		 WHERE user_id = ? AND device_id = ?`, userID, deviceID)
	var d DeviceSyncState
	var lastCursor string
	var maxSyncBytes sql.NullInt64
	err := row.Scan(&d.UserID, &d.DeviceID, &lastCursor, &d.SyncedBytes, &maxSyncBytes)
	if errors.Is(err, sql.ErrNoRows) {
		return DeviceSyncState{}, corekit.ErrNotFound
	}
	if err != nil {
		return DeviceSyncState{}, fmt.Errorf("query device state: %w", err)
	}
	d.LastCursor, _ = parseTime(lastCursor)
	if maxSyncBytes.Valid {
		n := uint64(maxSyncBytes.Int64)
		d.MaxSyncBytes = &n
	}
	return d, nil
}

// Upsert records a device's new cursor position and cumulative synced
// bytes after a successful changes_since round trip.
func (r *DeviceRepo) Upsert(ctx context.Context, d DeviceSyncState) error {
	var maxSyncBytes sql.NullInt64
	if d.MaxSyncBytes != nil {
		maxSyncBytes = sql.NullInt64{Int64: int64(*d.MaxSyncBytes), Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_sync_state (user_id, device_id, last_cursor, synced_bytes, max_sync_bytes)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, device_id) DO UPDATE SET
		   last_cursor = excluded.last_cursor,
		   synced_bytes = excluded.synced_bytes,
		   max_sync_bytes = excluded.max_sync_bytes`,
		d.UserID, d.DeviceID, formatTime(d.LastCursor), d.SyncedBytes, maxSyncBytes)
	if err != nil {
		return fmt.Errorf("upsert device state: %w", err)
	}
	return nil
}
