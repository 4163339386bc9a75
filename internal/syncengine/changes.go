package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entanglement/entanglement/internal/corekit"
	"github.com/entanglement/entanglement/internal/store"
)

// ChangeEvent mirrors a file's current state as of a changes_since poll.
type ChangeEvent struct {
	Path      string
	IsDeleted bool
	UpdatedAt time.Time
}

// ChangesSince implements spec §4.7's change enumeration contract: every
// file owned by userID updated after cursor (including deletions) that
// passes the requesting device's selective-sync filter, plus a new cursor
// no earlier than the latest observed update. deviceID is optional; when
// set, its sync cursor is persisted for resume after reconnect.
func (e *Engine) ChangesSince(ctx context.Context, userID string, cursor time.Time, deviceID string) ([]ChangeEvent, time.Time, error) {
	updated, err := e.db.Files.ListUpdatedSince(ctx, userID, cursor)
	if err != nil {
		return nil, cursor, fmt.Errorf("list updated files: %w", err)
	}

	var filter interface{ Matches(string) bool }
	if e.sel != nil {
		f, err := e.sel.FilterForUser(ctx, userID)
		if err != nil {
			return nil, cursor, fmt.Errorf("load selective filter: %w", err)
		}
		filter = f
	}

	newCursor := cursor
	events := make([]ChangeEvent, 0, len(updated))
	for _, f := range updated {
		if filter != nil && !filter.Matches(f.Path) {
			continue
		}
		events = append(events, ChangeEvent{Path: f.Path, IsDeleted: f.IsDeleted, UpdatedAt: f.UpdatedAt})
		if f.UpdatedAt.After(newCursor) {
			newCursor = f.UpdatedAt
		}
	}

	if deviceID != "" {
		state, err := e.db.Devices.Get(ctx, userID, deviceID)
		if errors.Is(err, corekit.ErrNotFound) {
			state = store.DeviceSyncState{UserID: userID, DeviceID: deviceID}
		} else if err != nil {
			return nil, cursor, fmt.Errorf("load device state: %w", err)
		}
		state.LastCursor = newCursor
		if err := e.db.Devices.Upsert(ctx, state); err != nil {
			return nil, cursor, fmt.Errorf("update device cursor: %w", err)
		}
	}

	return events, newCursor, nil
}
