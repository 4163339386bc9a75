// Package conflict implements the conflict detector and resolution
// operations from spec §4.9. Detection itself happens inside
// versiongraph.CommitVersion, which rejects a stale parent with
// *corekit.ConflictError; this package classifies the failure into
// one of the three conflict kinds, records it, and drives the three
// resolution paths (keep-local, keep-remote, keep-both).
package conflict

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/entanglement/entanglement/internal/corekit"
	"github.com/entanglement/entanglement/internal/store"
	"github.com/entanglement/entanglement/internal/versiongraph"
)

// Detector classifies and records commit conflicts, and resolves them.
type Detector struct {
	db    *store.DB
	graph *versiongraph.Graph
}

func New(db *store.DB, graph *versiongraph.Graph) *Detector {
	return &Detector{db: db, graph: graph}
}

// Kind of conflict, per spec §4.9.
const (
	KindEditEdit   = "edit-edit"
	KindEditDelete = "edit-delete"
	KindDeleteEdit = "delete-edit"
)

// Classify determines the conflict kind for a rejected commit, given
// whether the client's own submission was a delete.
func Classify(file store.File, clientIsDelete bool) string {
	switch {
	case file.IsDeleted && !clientIsDelete:
		return KindEditDelete
	case !file.IsDeleted && clientIsDelete:
		return KindDeleteEdit
	default:
		return KindEditEdit
	}
}

// Record persists a new conflict as unresolved and returns it.
func (d *Detector) Record(ctx context.Context, fileID, localVersion, remoteVersion, kind string) (store.Conflict, error) {
	c := store.Conflict{
		ID:            corekit.NewID(),
		FileID:        fileID,
		LocalVersion:  localVersion,
		RemoteVersion: remoteVersion,
		Kind:          kind,
		DetectedAt:    time.Now().UTC(),
		Resolution:    "unresolved",
	}
	err := d.db.WithTx(ctx, func(tx *sql.Tx) error {
		return d.db.Conflicts.InsertTx(ctx, tx, c)
	})
	if err != nil {
		return store.Conflict{}, fmt.Errorf("record conflict: %w", err)
	}
	return c, nil
}

// KeepLocal resolves a conflict by resubmitting the client's manifest
// against the server's current version as the new parent, producing a new
// version (spec §4.9).
func (d *Detector) KeepLocal(ctx context.Context, conflictID string, req versiongraph.CommitRequest) (store.Version, error) {
	c, err := d.db.Conflicts.ByID(ctx, conflictID)
	if err != nil {
		return store.Version{}, err
	}
	file, err := d.db.Files.ByID(ctx, c.FileID)
	if err != nil {
		return store.Version{}, err
	}
	req.FileID = file.ID
	req.ParentVersionID = file.CurrentVersion

	v, err := d.graph.CommitVersion(ctx, req)
	if err != nil {
		return store.Version{}, err
	}
	if err := d.resolve(ctx, conflictID, "keep-local", req.CreatedBy); err != nil {
		return store.Version{}, err
	}
	return v, nil
}

// KeepRemote resolves a conflict by discarding the client's submission;
// the server's version stands and no new version is created (spec §4.9).
func (d *Detector) KeepRemote(ctx context.Context, conflictID, resolvedBy string) error {
	return d.resolve(ctx, conflictID, "keep-remote", resolvedBy)
}

// KeepBoth resolves a conflict by committing the client's manifest to a
// derived path `{stem} (conflict {timestamp}){ext}` instead of overwriting
// the server's file (spec §4.9).
func (d *Detector) KeepBoth(ctx context.Context, conflictID string, req versiongraph.CommitRequest) (store.Version, error) {
	c, err := d.db.Conflicts.ByID(ctx, conflictID)
	if err != nil {
		return store.Version{}, err
	}
	file, err := d.db.Files.ByID(ctx, c.FileID)
	if err != nil {
		return store.Version{}, err
	}

	req.FileID = ""
	req.Path = derivedConflictPath(file.Path, time.Now().UTC())
	req.ParentVersionID = ""

	v, err := d.graph.CommitVersion(ctx, req)
	if err != nil {
		return store.Version{}, err
	}
	if err := d.resolve(ctx, conflictID, "keep-both", req.CreatedBy); err != nil {
		return store.Version{}, err
	}
	return v, nil
}

func (d *Detector) resolve(ctx context.Context, conflictID, resolution, resolvedBy string) error {
	return d.db.WithTx(ctx, func(tx *sql.Tx) error {
		return d.db.Conflicts.ResolveTx(ctx, tx, conflictID, resolution, resolvedBy)
	})
}

// derivedConflictPath builds `{stem} (conflict {timestamp}){ext}` from an
// original path (spec §4.9).
func derivedConflictPath(original string, at time.Time) string {
	dir := path.Dir(original)
	base := path.Base(original)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stamped := fmt.Sprintf("%s (conflict %s)%s", stem, at.Format("20060102T150405"), ext)
	if dir == "." || dir == "/" {
		return "/" + stamped
	}
	return dir + "/" + stamped
}
