// Package versiongraph implements the version graph (spec §4.6): path
// resolution, virtual-directory synthesis, atomic version commit, rename
// with cascading descendant rewrite, restore, and soft-delete. It is the
// component every other piece of the sync surface ultimately calls through
// to read or mutate file state.
package versiongraph

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/entanglement/entanglement/internal/chunkindex"
	"github.com/entanglement/entanglement/internal/corekit"
	"github.com/entanglement/entanglement/internal/hasher"
	"github.com/entanglement/entanglement/internal/store"
)

// Graph resolves and mutates the file/version tree.
type Graph struct {
	db    *store.DB
	chunk *chunkindex.Index
}

func New(db *store.DB, chunk *chunkindex.Index) *Graph {
	return &Graph{db: db, chunk: chunk}
}

// Entry is one row of a list_directory result, either a real File or a
// synthesized virtual directory.
type Entry struct {
	Path        string
	IsVirtual   bool
	File        *store.File
	DisplayName string
}

// ResolvePath returns the live file at path, or corekit.ErrNotFound.
func (g *Graph) ResolvePath(ctx context.Context, path string) (store.File, error) {
	norm, err := corekit.NormalizePath(path)
	if err != nil {
		return store.File{}, err
	}
	return g.db.Files.ByPath(ctx, norm)
}

// ListDirectory returns real files and synthesized virtual directories
// directly under path (spec §4.6). A virtual directory's id is the BLAKE3
// of its canonical path; if a live File already sits at that directory path
// (having been explicitly materialized before), the entry carries that File
// and is not marked virtual.
func (g *Graph) ListDirectory(ctx context.Context, path string) ([]Entry, error) {
	norm, err := corekit.NormalizePath(path)
	if err != nil {
		return nil, err
	}
	prefix := norm
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	files, err := g.db.Files.ListLivePrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list files under %s: %w", prefix, err)
	}

	materializedDirs := make(map[string]store.File) // canonical dir path -> File
	entries := make(map[string]Entry)
	virtualDirs := map[string]bool{}

	for _, f := range files {
		if strings.HasSuffix(f.Path, "/") {
			materializedDirs[f.Path] = f
		}
		rel := strings.TrimPrefix(f.Path, prefix)
		if rel == "" {
			continue
		}
		parts := strings.SplitN(rel, "/", 2)
		if len(parts) == 1 {
			// direct child file
			ff := f
			entries[f.Path] = Entry{Path: f.Path, File: &ff, DisplayName: parts[0]}
			continue
		}
		// f lives deeper; its first path segment is a virtual directory
		// unless some File already materializes that exact prefix.
		dirPath := prefix + parts[0] + "/"
		virtualDirs[dirPath] = true
	}

	for dirPath := range virtualDirs {
		if mf, ok := materializedDirs[dirPath]; ok {
			mfc := mf
			entries[dirPath] = Entry{Path: dirPath, File: &mfc, DisplayName: displayName(dirPath)}
			continue
		}
		entries[dirPath] = Entry{Path: dirPath, IsVirtual: true, DisplayName: displayName(dirPath)}
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func displayName(dirPath string) string {
	trimmed := strings.TrimSuffix(dirPath, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return trimmed
	}
	return trimmed[idx+1:]
}

// VirtualDirHashID returns the stable id a virtual directory at path would
// carry if materialized (spec §4.6: "original_hash_id = BLAKE3(path)").
func VirtualDirHashID(path string) string {
	return hasher.HexString(hasher.Sum256([]byte(path)))
}

// Materialize creates a real File for a previously-virtual directory,
// stamping original_hash_id so clients holding the virtual id keep
// resolving to the same entity.
func (g *Graph) Materialize(ctx context.Context, path, ownerID string) (store.File, error) {
	norm, err := corekit.NormalizePath(path)
	if err != nil {
		return store.File{}, err
	}
	if !strings.HasSuffix(norm, "/") {
		norm += "/"
	}
	if existing, err := g.db.Files.ByPath(ctx, norm); err == nil {
		return existing, nil
	}

	now := time.Now().UTC()
	f := store.File{
		ID:             corekit.NewID(),
		Path:           norm,
		OwnerID:        ownerID,
		OriginalHashID: VirtualDirHashID(norm),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := g.db.WithTx(ctx, func(tx *sql.Tx) error {
		return g.db.Files.InsertTx(ctx, tx, f)
	}); err != nil {
		return store.File{}, fmt.Errorf("materialize directory: %w", err)
	}
	return f, nil
}

// CommitRequest carries the inputs to CommitVersion.
type CommitRequest struct {
	FileID           string
	Path             string // used only when FileID is empty, to create the file
	OwnerID          string
	ParentVersionID  string // empty means "no known parent"
	Manifest         []ChunkRef
	Blake3Hash       string
	SizeBytes        uint64
	TierID           int
	CreatedBy        string
}

// ChunkRef is one manifest entry's chunk reference, offset computed by the
// caller as the cumulative sum of prior chunk lengths (spec §3). A tier-0
// (Inline) entry leaves Hash empty and carries its content in InlineData
// instead of referencing the chunk store.
type ChunkRef struct {
	Hash       string
	Offset     uint64
	InlineData []byte
}

// CommitVersion atomically creates a new Version, its manifest rows, and
// updates the file's current_version pointer, then increments refcount for
// every chunk in the manifest (spec §4.6). If file_id is empty a new File
// is created at Path first. CommitVersion itself compares ParentVersionID
// with the file's current version, before and again inside the write
// transaction, and returns *corekit.ConflictError on a mismatch;
// classifying and recording that conflict is left to the caller.
func (g *Graph) CommitVersion(ctx context.Context, req CommitRequest) (store.Version, error) {
	now := time.Now().UTC()
	var file store.File
	var err error
	isNewFile := false

	if req.FileID == "" {
		norm, nerr := corekit.NormalizePath(req.Path)
		if nerr != nil {
			return store.Version{}, nerr
		}
		existing, lookupErr := g.db.Files.ByPath(ctx, norm)
		if lookupErr == nil {
			file = existing
		} else {
			isNewFile = true
			file = store.File{
				ID:        corekit.NewID(),
				Path:      norm,
				OwnerID:   req.OwnerID,
				CreatedAt: now,
				UpdatedAt: now,
			}
		}
	} else {
		file, err = g.db.Files.ByID(ctx, req.FileID)
		if err != nil {
			return store.Version{}, err
		}
	}

	if file.IsDeleted {
		return store.Version{}, &corekit.ConflictError{FileID: file.ID, Current: file.CurrentVersion, Kind: "edit-delete"}
	}
	if file.CurrentVersion != req.ParentVersionID {
		return store.Version{}, &corekit.ConflictError{FileID: file.ID, Current: file.CurrentVersion, Kind: "edit-edit"}
	}

	version := store.Version{
		ID:         corekit.NewID(),
		FileID:     file.ID,
		Blake3Hash: req.Blake3Hash,
		SizeBytes:  req.SizeBytes,
		TierID:     req.TierID,
		CreatedBy:  req.CreatedBy,
		CreatedAt:  now,
	}
	entries := make([]store.ManifestEntry, len(req.Manifest))
	for i, c := range req.Manifest {
		entries[i] = store.ManifestEntry{VersionID: version.ID, Index: i, ChunkHash: c.Hash, ChunkOffset: c.Offset, InlineData: c.InlineData}
	}

	err = g.db.WithTx(ctx, func(tx *sql.Tx) error {
		if !isNewFile {
			// Re-check the head inside the transaction so that of two
			// concurrent commits against the same parent only one succeeds.
			var current sql.NullString
			if qerr := tx.QueryRowContext(ctx, `SELECT current_version FROM files WHERE id = ?`, file.ID).Scan(&current); qerr != nil {
				return qerr
			}
			if current.String != req.ParentVersionID {
				return &corekit.ConflictError{FileID: file.ID, Current: current.String, Kind: "edit-edit"}
			}
		}
		if isNewFile {
			if ierr := g.db.Files.InsertTx(ctx, tx, file); ierr != nil {
				return ierr
			}
		}
		if ierr := g.db.Versions.InsertTx(ctx, tx, version); ierr != nil {
			return ierr
		}
		if ierr := g.db.Versions.InsertManifestTx(ctx, tx, entries); ierr != nil {
			return ierr
		}
		if ierr := g.db.Files.SetCurrentVersionTx(ctx, tx, file.ID, version.ID, now); ierr != nil {
			return ierr
		}
		for _, c := range req.Manifest {
			if c.Hash == "" {
				continue // inline entry, never stored in the chunk store
			}
			if ierr := g.db.Chunks.IncRefTx(ctx, tx, c.Hash); ierr != nil {
				return ierr
			}
		}
		return nil
	})
	if err != nil {
		return store.Version{}, fmt.Errorf("commit version: %w", err)
	}
	return version, nil
}

// Rename updates a file's path; for directories, every descendant path is
// rewritten in the same transaction so no path is left stale mid-rename
// (spec §4.6, §9 — a prior implementation corrupted state by rewriting
// descendants outside the rename transaction).
func (g *Graph) Rename(ctx context.Context, fileID, newPath string) error {
	newNorm, err := corekit.NormalizePath(newPath)
	if err != nil {
		return err
	}
	file, err := g.db.Files.ByID(ctx, fileID)
	if err != nil {
		return err
	}
	oldPrefix := file.Path
	isDir := strings.HasSuffix(oldPrefix, "/")
	var descendants []store.File
	if isDir {
		if !strings.HasSuffix(newNorm, "/") {
			newNorm += "/"
		}
		// Read before the transaction opens: the store runs on a single
		// connection, so a non-transactional query inside WithTx would block.
		if descendants, err = g.db.Files.ListLivePrefix(ctx, oldPrefix); err != nil {
			return err
		}
	}

	return g.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := g.db.Files.RenameTx(ctx, tx, fileID, newNorm); err != nil {
			return err
		}
		if !isDir {
			return nil
		}
		newPrefix := newNorm
		if !strings.HasSuffix(newPrefix, "/") {
			newPrefix += "/"
		}
		for _, d := range descendants {
			if d.ID == fileID {
				continue
			}
			rewritten := newPrefix + strings.TrimPrefix(d.Path, oldPrefix)
			if err := g.db.Files.RenameTx(ctx, tx, d.ID, rewritten); err != nil {
				return err
			}
		}
		return nil
	})
}

// Restore creates a new Version whose manifest equals an old version's,
// incrementing chunk refcounts accordingly (spec §4.6).
func (g *Graph) Restore(ctx context.Context, fileID, versionID, createdBy string) (store.Version, error) {
	old, err := g.db.Versions.ByID(ctx, versionID)
	if err != nil {
		return store.Version{}, err
	}
	if old.FileID != fileID {
		return store.Version{}, corekit.ErrInvalidManifest
	}
	manifest, err := g.db.Versions.Manifest(ctx, versionID)
	if err != nil {
		return store.Version{}, err
	}
	file, err := g.db.Files.ByID(ctx, fileID)
	if err != nil {
		return store.Version{}, err
	}

	refs := make([]ChunkRef, len(manifest))
	for i, m := range manifest {
		refs[i] = ChunkRef{Hash: m.ChunkHash, Offset: m.ChunkOffset, InlineData: m.InlineData}
	}
	return g.CommitVersion(ctx, CommitRequest{
		FileID:          fileID,
		ParentVersionID: file.CurrentVersion,
		Manifest:        refs,
		Blake3Hash:      old.Blake3Hash,
		SizeBytes:       old.SizeBytes,
		TierID:          old.TierID,
		CreatedBy:       createdBy,
	})
}

// SoftDelete marks a file deleted without touching chunk refcounts (spec
// §4.6: history is retained until a tombstone-expiry policy, out of scope).
func (g *Graph) SoftDelete(ctx context.Context, fileID string) error {
	return g.db.WithTx(ctx, func(tx *sql.Tx) error {
		return g.db.Files.SoftDeleteTx(ctx, tx, fileID)
	})
}

// History returns a file's versions newest-first.
func (g *Graph) History(ctx context.Context, fileID string) ([]store.Version, error) {
	return g.db.Versions.History(ctx, fileID)
}
