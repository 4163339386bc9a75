// Package gc implements the garbage collector from spec §4.12: reclaiming
// zero-refcount chunks and compacting sealed containers whose live-chunk
// fraction has dropped below a threshold.
package gc

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/entanglement/entanglement/internal/hasher"
	"github.com/entanglement/entanglement/internal/packstore"
	"github.com/entanglement/entanglement/internal/store"
)

// CompactionThreshold is the live-chunk fraction below which a sealed
// container becomes a compaction candidate (spec §4.12 "threshold").
const CompactionThreshold = 0.5

// BatchSize bounds how many zero-refcount chunks Run reclaims per call.
const BatchSize = 500

// Collector runs reclamation and compaction passes.
type Collector struct {
	db        *store.DB
	pack      *packstore.Store
	threshold float64
	batchSize int
}

// New returns a Collector using the package defaults (CompactionThreshold,
// BatchSize). Use NewWithOptions to override them from config.Options.
func New(db *store.DB, pack *packstore.Store) *Collector {
	return &Collector{db: db, pack: pack, threshold: CompactionThreshold, batchSize: BatchSize}
}

// NewWithOptions returns a Collector with a caller-supplied compaction
// threshold and reclamation batch size, falling back to the package
// defaults for zero values.
func NewWithOptions(db *store.DB, pack *packstore.Store, threshold float64, batchSize int) *Collector {
	if threshold <= 0 {
		threshold = CompactionThreshold
	}
	if batchSize <= 0 {
		batchSize = BatchSize
	}
	return &Collector{db: db, pack: pack, threshold: threshold, batchSize: batchSize}
}

// Result summarizes one Run invocation.
type Result struct {
	ChunksReclaimed     int
	ContainersCompacted int
}

// Run reclaims zero-refcount chunks and compacts eligible containers (spec
// §4.12). It never deletes an unsealed container.
func (c *Collector) Run(ctx context.Context) (Result, error) {
	res, err := c.ReclaimOnly(ctx)
	if err != nil {
		return res, err
	}
	compacted, err := c.compactAll(ctx)
	res.ContainersCompacted = compacted
	return res, err
}

// ReclaimOnly deletes zero-refcount chunks without compacting any
// container, for callers that want cheap, frequent collection and leave
// compaction (which rewrites container files) to a separate, rarer pass.
func (c *Collector) ReclaimOnly(ctx context.Context) (Result, error) {
	var res Result

	zero, err := c.db.Chunks.ListZeroRefcount(ctx, c.batchSize)
	if err != nil {
		return res, fmt.Errorf("list zero-refcount chunks: %w", err)
	}
	for _, chunk := range zero {
		if err := c.db.WithTx(ctx, func(tx *sql.Tx) error {
			return c.db.Chunks.DeleteTx(ctx, tx, chunk.Hash)
		}); err != nil {
			return res, fmt.Errorf("delete chunk %s: %w", chunk.Hash, err)
		}
		res.ChunksReclaimed++
	}
	return res, nil
}

func (c *Collector) compactAll(ctx context.Context) (int, error) {
	sealed, err := c.db.Containers.ListSealed(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sealed containers: %w", err)
	}
	var n int
	for _, container := range sealed {
		compacted, err := c.maybeCompact(ctx, container)
		if err != nil {
			return n, fmt.Errorf("compact container %s: %w", container.ID, err)
		}
		if compacted {
			n++
		}
	}
	return n, nil
}

// maybeCompact rewrites container into a fresh container containing only
// its surviving (refcount > 0) chunks, if its live fraction has dropped
// below the collector's configured threshold. Each chunk's location flip
// happens in its own transaction (inside packstore.Put), so a concurrent
// reader of that chunk resolves against either the old, still-intact
// container or the new one — never a half-written state (spec §4.12).
func (c *Collector) maybeCompact(ctx context.Context, container store.Container) (bool, error) {
	chunks, err := c.db.Chunks.ListByContainer(ctx, container.ID)
	if err != nil {
		return false, err
	}
	if len(chunks) == 0 {
		return false, c.deleteEmptyContainer(ctx, container)
	}

	var liveBytes, totalBytes uint64
	live := make([]store.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		totalBytes += chunk.StoredLength
		if chunk.Refcount > 0 {
			liveBytes += chunk.StoredLength
			live = append(live, chunk)
		}
	}
	if totalBytes == 0 {
		return false, nil
	}
	fraction := float64(liveBytes) / float64(totalBytes)
	if fraction >= c.threshold {
		return false, nil
	}

	if _, err := c.rewrite(ctx, live); err != nil {
		return false, err
	}

	if err := c.db.WithTx(ctx, func(tx *sql.Tx) error {
		return c.db.Containers.DeleteTx(ctx, tx, container.ID)
	}); err != nil {
		return false, fmt.Errorf("delete old container row: %w", err)
	}
	if err := os.Remove(container.DiskPath); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("remove old container file: %w", err)
	}
	return true, nil
}

// rewrite streams every live chunk's bytes into a brand new container via
// packstore, updating each chunk's location transactionally as it goes.
// Readers resolving a chunk mid-rewrite still see its old location until
// this call updates it, and packstore.Put itself is transactional per
// chunk, so there is no window where a location points at missing bytes.
func (c *Collector) rewrite(ctx context.Context, live []store.Chunk) (string, error) {
	var lastContainer string
	for _, chunk := range live {
		hash, err := hasher.FromHex(chunk.Hash)
		if err != nil {
			return "", fmt.Errorf("parse chunk hash %s: %w", chunk.Hash, err)
		}
		data, err := c.pack.Get(ctx, hash, chunk.ContainerID, chunk.Offset, chunk.StoredLength)
		if err != nil {
			return "", fmt.Errorf("read chunk %s for compaction: %w", chunk.Hash, err)
		}
		if err := c.pack.Put(ctx, hash, data); err != nil {
			return "", fmt.Errorf("rewrite chunk %s: %w", chunk.Hash, err)
		}
		moved, err := c.db.Chunks.Get(ctx, chunk.Hash)
		if err != nil {
			return "", err
		}
		lastContainer = moved.ContainerID
	}
	return lastContainer, nil
}

func (c *Collector) deleteEmptyContainer(ctx context.Context, container store.Container) error {
	if err := c.db.WithTx(ctx, func(tx *sql.Tx) error {
		return c.db.Containers.DeleteTx(ctx, tx, container.ID)
	}); err != nil {
		return fmt.Errorf("delete empty container row: %w", err)
	}
	if err := os.Remove(container.DiskPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove empty container file: %w", err)
	}
	return nil
}

