// Package syncengine orchestrates the upload and download contracts from
// spec §4.7: chunking + hashing a file, negotiating missing chunks with
// the server, committing a version, downloading and reassembling content
// by manifest, and enumerating changes for reconnecting clients.
package syncengine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/entanglement/entanglement/internal/changebus"
	"github.com/entanglement/entanglement/internal/chunker"
	"github.com/entanglement/entanglement/internal/chunkindex"
	"github.com/entanglement/entanglement/internal/conflict"
	"github.com/entanglement/entanglement/internal/corekit"
	"github.com/entanglement/entanglement/internal/hasher"
	"github.com/entanglement/entanglement/internal/selective"
	"github.com/entanglement/entanglement/internal/store"
	"github.com/entanglement/entanglement/internal/tier"
	"github.com/entanglement/entanglement/internal/versiongraph"
)

// Engine drives uploads, downloads, and change enumeration.
type Engine struct {
	db       *store.DB
	graph    *versiongraph.Graph
	chunk    *chunkindex.Index
	bus      *changebus.Bus
	sel      *selective.Store
	conflict *conflict.Detector
}

func New(db *store.DB, graph *versiongraph.Graph, chunk *chunkindex.Index, bus *changebus.Bus, sel *selective.Store, conflicts *conflict.Detector) *Engine {
	return &Engine{db: db, graph: graph, chunk: chunk, bus: bus, sel: sel, conflict: conflicts}
}

// UploadRequest carries the inputs to Upload.
type UploadRequest struct {
	Path            string
	OwnerID         string
	ParentVersionID string
	Content         io.Reader
	FileSize        uint64 // used only for tier selection; the stream is re-read for chunking
	Extension       string
	Actor           string
}

// UploadResult is returned on success.
type UploadResult struct {
	Version store.Version
}

// Upload implements spec §4.7's upload contract: tier selection, combined
// chunking + whole-file hashing, missing-chunk negotiation, upload of the
// missing chunks, and an atomic commit_version. On conflict it returns
// *corekit.ConflictError wrapping the server's current version so the
// caller can drive resolution.
func (e *Engine) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	params := tier.Select(req.FileSize, req.Extension)
	tierID := int(params.ID)

	var manifest []versiongraph.ChunkRef
	var wholeHash [32]byte
	var size uint64

	if params.ID == tier.Inline {
		// Tier 0 bypasses fastcdc.NewChunker entirely: the whole file
		// becomes a single manifest entry carrying its own bytes, never
		// touching the chunk store (spec §4.2, §3 Version invariant).
		data, err := io.ReadAll(req.Content)
		if err != nil {
			return UploadResult{}, fmt.Errorf("read inline content: %w", err)
		}
		wholeHash = hasher.Sum256(data)
		size = uint64(len(data))
		if len(data) > 0 {
			manifest = []versiongraph.ChunkRef{{InlineData: data, Offset: 0}}
		}
	} else {
		c := chunker.New(params)
		whole := hasher.New()

		type pendingChunk struct {
			hash   [32]byte
			data   []byte
			offset uint64
		}
		var pending []pendingChunk
		var offset uint64

		err := c.Each(req.Content, func(cut chunker.Cut) error {
			whole.Update(cut.Data)
			pending = append(pending, pendingChunk{hash: cut.Hash, data: append([]byte{}, cut.Data...), offset: offset})
			offset += cut.Length
			return nil
		})
		if err != nil {
			return UploadResult{}, fmt.Errorf("chunk upload content: %w", err)
		}

		wholeHash = whole.Finalize()
		size = offset

		hashes := make([][32]byte, len(pending))
		for i, p := range pending {
			hashes[i] = p.hash
		}
		missing, err := e.chunk.Contains(ctx, hashes)
		if err != nil {
			return UploadResult{}, fmt.Errorf("check missing chunks: %w", err)
		}

		manifest = make([]versiongraph.ChunkRef, len(pending))
		for i, p := range pending {
			if !missing[p.hash] {
				p := p
				if err := withRetry(ctx, func() error {
					_, err := e.chunk.Put(ctx, p.hash, p.data)
					return err
				}); err != nil {
					return UploadResult{}, fmt.Errorf("upload chunk: %w", err)
				}
			}
			manifest[i] = versiongraph.ChunkRef{Hash: hasher.HexString(p.hash), Offset: p.offset}
		}
	}

	commitReq := versiongraph.CommitRequest{
		Path:            req.Path,
		OwnerID:         req.OwnerID,
		ParentVersionID: req.ParentVersionID,
		Manifest:        manifest,
		Blake3Hash:      hasher.HexString(wholeHash),
		SizeBytes:       size,
		TierID:          tierID,
		CreatedBy:       req.Actor,
	}
	version, err := e.graph.CommitVersion(ctx, commitReq)
	if err != nil {
		var ce *corekit.ConflictError
		if errors.As(err, &ce) && e.conflict != nil {
			file, ferr := e.db.Files.ByID(ctx, ce.FileID)
			if ferr == nil {
				kind := conflict.Classify(file, false)
				if _, recErr := e.conflict.Record(ctx, ce.FileID, req.ParentVersionID, ce.Current, kind); recErr != nil {
					return UploadResult{}, fmt.Errorf("record conflict: %w", recErr)
				}
			}
		}
		return UploadResult{}, err
	}

	if e.bus != nil {
		e.bus.Publish(changebus.Event{
			Path:    req.Path,
			Action:  changebus.ActionUpdate,
			Actor:   req.Actor,
			OwnerID: req.OwnerID,
		})
	}
	return UploadResult{Version: version}, nil
}

// Download implements spec §4.7's download contract: resolve the
// manifest, fetch each chunk in order, and verify the running hash matches
// the stored whole-file digest before returning bytes to the caller.
func (e *Engine) Download(ctx context.Context, w io.Writer, versionID string) error {
	version, err := e.db.Versions.ByID(ctx, versionID)
	if err != nil {
		return err
	}
	manifest, err := e.db.Versions.Manifest(ctx, versionID)
	if err != nil {
		return err
	}

	running := hasher.New()
	for _, entry := range manifest {
		var data []byte
		if entry.IsInline() {
			data = entry.InlineData
		} else {
			hash, err := hasher.FromHex(entry.ChunkHash)
			if err != nil {
				return fmt.Errorf("parse manifest hash: %w", err)
			}
			data, err = e.chunk.Read(ctx, hash)
			if err != nil {
				return fmt.Errorf("read chunk %s: %w", entry.ChunkHash, err)
			}
		}
		running.Update(data)
		if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("write chunk bytes: %w", err)
		}
	}

	if hasher.HexString(running.Finalize()) != version.Blake3Hash {
		return corekit.ErrIntegrity
	}
	return nil
}
