// Package packstore implements the append-only packfile container layout
// (spec §4.4): chunks are zstd-framed and appended to a container file until
// it crosses the seal threshold, at which point it is closed to further
// writes and a new container is opened. This mirrors the way the retrieved
// delta-archiving reference frames each chunk with klauspost/compress/zstd
// before writing it to its own GDELTA02 container, adapted here to a series
// of size-bounded containers that each hold many chunks instead of one big
// archive file.
package packstore

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/entanglement/entanglement/internal/corekit"
	"github.com/entanglement/entanglement/internal/hasher"
	"github.com/entanglement/entanglement/internal/store"
)

// SealThreshold is the container size (spec §4.4) past which a container is
// sealed and a new one opened for subsequent writes.
const SealThreshold = 64 * 1024 * 1024

// Store writes and reads chunk bytes from packfile containers on disk,
// delegating all refcount/dedup bookkeeping to the caller (chunkindex).
type Store struct {
	dir          string
	db           *store.DB
	encoder      *zstd.Encoder
	decoder      *zstd.Decoder
	sealThreshold uint64

	mu      sync.Mutex // serializes appends so offset bookkeeping stays correct
	current *openContainer
}

type openContainer struct {
	meta store.Container
	f    *os.File
}

// New opens a packstore rooted at dir, creating it if absent, using the
// default SealThreshold.
func New(dir string, db *store.DB) (*Store, error) {
	return NewWithSealThreshold(dir, db, SealThreshold)
}

// NewWithSealThreshold opens a packstore with a caller-supplied seal
// threshold, falling back to SealThreshold when sealThreshold is zero.
func NewWithSealThreshold(dir string, db *store.DB, sealThreshold uint64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create packstore dir: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if sealThreshold == 0 {
		sealThreshold = SealThreshold
	}
	return &Store{dir: dir, db: db, encoder: enc, decoder: dec, sealThreshold: sealThreshold}, nil
}

// Close releases the zstd codecs and any open container file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encoder.Close()
	s.decoder.Close()
	if s.current != nil {
		return s.current.f.Close()
	}
	return nil
}

// Put compresses data and appends it to the current (or a freshly created)
// container, recording the chunk's location transactionally. Callers are
// responsible for having already confirmed hash is new — chunkindex routes
// dedup decisions through here before calling Put (spec §4.4, §4.5).
func (s *Store) Put(ctx context.Context, hash [32]byte, data []byte) error {
	compressed := s.encoder.EncodeAll(data, nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.ensureOpenContainerLocked(ctx)
	if err != nil {
		return err
	}

	offset := c.meta.TotalSize
	if _, err := c.f.Write(compressed); err != nil {
		return fmt.Errorf("append chunk to container: %w", err)
	}
	if err := c.f.Sync(); err != nil {
		return fmt.Errorf("sync container: %w", err)
	}
	c.meta.TotalSize += uint64(len(compressed))

	hashHex := hasher.HexString(hash)
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.db.Chunks.SetLocationTx(ctx, tx, hashHex, c.meta.ID, offset, uint64(len(compressed))); err != nil {
			return err
		}
		return s.db.Containers.GrowTx(ctx, tx, c.meta.ID, uint64(len(compressed)))
	})
	if err != nil {
		return fmt.Errorf("record chunk location: %w", err)
	}
	c.meta.ChunkCount++

	if c.meta.TotalSize >= s.sealThreshold {
		if err := s.sealCurrentLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Get reads and decompresses a chunk from the container at the given
// location, verifying its content hash matches before returning (spec §4.4,
// §7 CorruptChunkError).
func (s *Store) Get(ctx context.Context, hash [32]byte, containerID string, offset, storedLength uint64) ([]byte, error) {
	c, err := s.db.Containers.ByID(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("resolve container: %w", err)
	}

	f, err := os.Open(c.DiskPath)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	defer f.Close()

	compressed := make([]byte, storedLength)
	if _, err := f.ReadAt(compressed, int64(offset)); err != nil {
		return nil, fmt.Errorf("read chunk bytes: %w", err)
	}

	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress chunk: %w", err)
	}

	if hasher.Sum256(data) != hash {
		return nil, &corekit.CorruptChunkError{Hash: hash, Location: c.DiskPath}
	}
	return data, nil
}

// CopyInto streams decompressed chunk bytes directly to w, for large
// downloads that should not be fully materialized in memory.
func (s *Store) CopyInto(ctx context.Context, w io.Writer, hash [32]byte, containerID string, offset, storedLength uint64) error {
	data, err := s.Get(ctx, hash, containerID, offset, storedLength)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, bytes.NewReader(data))
	return err
}

func (s *Store) ensureOpenContainerLocked(ctx context.Context) (*openContainer, error) {
	if s.current != nil && !s.current.meta.IsSealed {
		return s.current, nil
	}

	existing, err := s.db.Containers.CurrentUnsealed(ctx)
	if err == nil {
		f, openErr := os.OpenFile(existing.DiskPath, os.O_RDWR|os.O_CREATE, 0o644)
		if openErr != nil {
			return nil, fmt.Errorf("open existing container: %w", openErr)
		}
		s.current = &openContainer{meta: existing, f: f}
		return s.current, nil
	}

	id := corekit.NewID()
	now := time.Now().UTC()
	containerDir := filepath.Join(s.dir, now.Format("2006"), now.Format("01"))
	if err := os.MkdirAll(containerDir, 0o755); err != nil {
		return nil, fmt.Errorf("create container dir: %w", err)
	}
	diskPath := filepath.Join(containerDir, "pack_"+id+".blob")
	f, err := os.OpenFile(diskPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create container file: %w", err)
	}
	meta := store.Container{ID: id, DiskPath: diskPath, CreatedAt: now}
	if err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.db.Containers.InsertTx(ctx, tx, meta)
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("insert container row: %w", err)
	}
	s.current = &openContainer{meta: meta, f: f}
	return s.current, nil
}

// sealCurrentLocked closes the current container to further appends. Called
// with s.mu held.
func (s *Store) sealCurrentLocked(ctx context.Context) error {
	if s.current == nil {
		return nil
	}
	if err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.db.Containers.SealTx(ctx, tx, s.current.meta.ID)
	}); err != nil {
		return fmt.Errorf("seal container: %w", err)
	}
	if err := s.current.f.Close(); err != nil {
		return fmt.Errorf("close sealed container: %w", err)
	}
	s.current = nil
	return nil
}
