package entangle

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/entanglement/entanglement/internal/changebus"
	"github.com/entanglement/entanglement/internal/hasher"
	"github.com/entanglement/entanglement/internal/server"
	"github.com/entanglement/entanglement/internal/sharetoken"
	"github.com/entanglement/entanglement/internal/store"
	"github.com/entanglement/entanglement/internal/syncengine"
)

// Client is the §6 API surface implemented on top of a *server.Core. It
// has no network concerns of its own; an HTTP or gRPC transport wraps it,
// and in-process callers can use it directly. The entanglementd CLI works
// on *server.Core itself rather than through Client.
type Client struct {
	core *server.Core
}

// New wraps core as a Client.
func New(core *server.Core) *Client {
	return &Client{core: core}
}

// CheckChunks reports which of hashes are not yet stored.
func (c *Client) CheckChunks(ctx context.Context, hashes [][32]byte) ([][32]byte, error) {
	present, err := c.core.Chunks.Contains(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("check chunks: %w", err)
	}
	var missing [][32]byte
	for _, h := range hashes {
		if !present[h] {
			missing = append(missing, h)
		}
	}
	return missing, nil
}

// PutChunk writes a chunk's bytes, deduplicating against existing storage.
func (c *Client) PutChunk(ctx context.Context, hash [32]byte, data []byte) (bool, error) {
	return c.core.Chunks.Put(ctx, hash, data)
}

// GetChunk reads a chunk's bytes by hash.
func (c *Client) GetChunk(ctx context.Context, hash [32]byte) ([]byte, error) {
	return c.core.Chunks.Read(ctx, hash)
}

// CommitVersion atomically commits a new version (spec §4.6).
func (c *Client) CommitVersion(ctx context.Context, req CommitRequest) (store.Version, error) {
	return c.core.Graph.CommitVersion(ctx, req)
}

// List returns the entries directly under path (spec §4.6).
func (c *Client) List(ctx context.Context, path string) ([]Entry, error) {
	return c.core.Graph.ListDirectory(ctx, path)
}

// Upload chunks, hashes, negotiates, and commits a whole file in one call
// (spec §4.7).
func (c *Client) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	res, err := c.core.Sync.Upload(ctx, syncengine.UploadRequest{
		Path:            req.Path,
		OwnerID:         req.OwnerID,
		ParentVersionID: req.ParentVersionID,
		Content:         req.Content,
		FileSize:        req.FileSize,
		Extension:       req.Extension,
		Actor:           req.Actor,
	})
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{Version: res.Version}, nil
}

// Download reassembles a version's content into w, verifying the
// whole-file digest (spec §4.7).
func (c *Client) Download(ctx context.Context, w io.Writer, versionID string) error {
	return c.core.Sync.Download(ctx, w, versionID)
}

// ChangesSince enumerates changes for a reconnecting client (spec §4.7,
// §4.10).
func (c *Client) ChangesSince(ctx context.Context, userID string, cursor time.Time, deviceID string) ([]syncengine.ChangeEvent, time.Time, error) {
	return c.core.Sync.ChangesSince(ctx, userID, cursor, deviceID)
}

// Subscribe opens a live change feed for principal (spec §4.8).
func (c *Client) Subscribe(ctx context.Context, principal string) (<-chan changebus.Delivery, func(), error) {
	return c.core.Bus.Subscribe(ctx, principal)
}

// CreateShare issues a new share token for fileID (spec §4.11).
func (c *Client) CreateShare(ctx context.Context, fileID string, opts ShareOptions) (store.ShareLink, error) {
	return c.core.Shares.Create(ctx, fileID, opts)
}

// ValidateShare checks a token/password pair and returns the grant it
// authorizes (spec §4.11).
func (c *Client) ValidateShare(ctx context.Context, token, password string) (sharetoken.Grant, error) {
	return c.core.Shares.Validate(ctx, token, password)
}

// HashChunk is a convenience wrapper exposing BLAKE3 hashing to callers
// that need to compute a chunk hash before calling CheckChunks.
func HashChunk(data []byte) [32]byte {
	return hasher.Sum256(data)
}
