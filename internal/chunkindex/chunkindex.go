// Package chunkindex implements the canonical dedup map (spec §4.5): given
// a content hash, decide whether its bytes are already stored and, if not,
// write them through packstore and record a fresh index entry with
// refcount 0. Writing a chunk never changes its refcount; only
// commit_version does, once per manifest entry that references it (spec
// §3 Chunk invariant), so repeated Put calls for the same hash — whether
// across files or within one file's own manifest — are pure no-ops past
// the first.
//
// The in-memory LRU front end is adapted from the retrieved delta-archiving
// reference's chunkstore.Store, which keeps a bounded "chunks" cache for
// fast existence checks plus an unbounded "allChunks" index backing the
// eventual archive layout; here the unbounded half is simply the database
// (internal/store), so only the bounded hot-path cache needs to live here.
package chunkindex

import (
	"container/list"
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/entanglement/entanglement/internal/hasher"
	"github.com/entanglement/entanglement/internal/packstore"
	"github.com/entanglement/entanglement/internal/store"
)

// DefaultCacheCapacity bounds the in-memory existence cache. 0 means
// unbounded, matching the teacher's NewStoreWithCapacity(0) convention.
const DefaultCacheCapacity = 100_000

// Index is the chunk dedup map: existence checks, writes, and refcounting.
type Index struct {
	db   *store.DB
	pack *packstore.Store

	mu        sync.Mutex
	cache     map[[32]byte]*list.Element // hot existence cache, LRU-bounded
	lru       *list.List
	maxCached int

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates an Index backed by db for bookkeeping and pack for chunk
// bytes, with an LRU existence cache bounded to maxCached entries (0 =
// unbounded).
func New(db *store.DB, pack *packstore.Store, maxCached int) *Index {
	return &Index{
		db:        db,
		pack:      pack,
		cache:     make(map[[32]byte]*list.Element),
		lru:       list.New(),
		maxCached: maxCached,
	}
}

// Contains checks a batch of hashes against the dedup map for the
// check_chunks step of delta sync (spec §4.7). It always consults the
// database — the cache only accelerates Put, not this read path, since a
// wrong "missing" answer here would cause silent data loss on commit.
func (idx *Index) Contains(ctx context.Context, hashes [][32]byte) (map[[32]byte]bool, error) {
	hexes := make([]string, len(hashes))
	byHex := make(map[string][32]byte, len(hashes))
	for i, h := range hashes {
		hx := hasher.HexString(h)
		hexes[i] = hx
		byHex[hx] = h
	}
	present, err := idx.db.Chunks.Contains(ctx, hexes)
	if err != nil {
		return nil, fmt.Errorf("check chunk presence: %w", err)
	}
	out := make(map[[32]byte]bool, len(hashes))
	for hx, h := range byHex {
		out[h] = present[hx]
	}
	return out, nil
}

// Put ensures hash is indexed and its bytes are stored, deduplicating
// against both the hot cache and the database. Returns created=false when
// the chunk already existed. Put never touches refcount — uploading a
// chunk, even the same one twice within one file's manifest, must not
// move it; only commit_version incrementing once per manifest entry may.
func (idx *Index) Put(ctx context.Context, hash [32]byte, data []byte) (created bool, err error) {
	idx.mu.Lock()
	if elem, ok := idx.cache[hash]; ok {
		idx.lru.MoveToFront(elem)
		idx.mu.Unlock()
		idx.hits.Add(1)
		return false, nil
	}
	idx.mu.Unlock()
	idx.misses.Add(1)

	hashHex := hasher.HexString(hash)
	_, err = idx.db.Chunks.Get(ctx, hashHex)
	if err == nil {
		idx.remember(hash)
		return false, nil
	}

	if err := idx.db.WithTx(ctx, func(tx *sql.Tx) error {
		return idx.db.Chunks.CreateTx(ctx, tx, store.Chunk{Hash: hashHex, LengthBytes: uint64(len(data))})
	}); err != nil {
		return false, fmt.Errorf("create chunk index row: %w", err)
	}

	if err := idx.pack.Put(ctx, hash, data); err != nil {
		return false, fmt.Errorf("write chunk bytes: %w", err)
	}

	idx.remember(hash)
	return true, nil
}

// Release drops one reference to hash, called when a version that
// referenced it is permanently discarded (spec §4.5, §4.12). It never
// deletes the chunk itself — that is the garbage collector's job once
// refcount has settled at zero.
func (idx *Index) Release(ctx context.Context, tx *sql.Tx, hash [32]byte) error {
	return idx.db.Chunks.DecRefTx(ctx, tx, hasher.HexString(hash))
}

// Read fetches a chunk's bytes by hash, falling back to the legacy
// standalone-blob layout when the index row has no container location
// (spec §4.4).
func (idx *Index) Read(ctx context.Context, hash [32]byte) ([]byte, error) {
	hashHex := hasher.HexString(hash)
	c, err := idx.db.Chunks.Get(ctx, hashHex)
	if err != nil {
		return nil, fmt.Errorf("resolve chunk: %w", err)
	}
	if !c.HasContainerLocation() {
		return idx.pack.GetLegacy(hash)
	}
	return idx.pack.Get(ctx, hash, c.ContainerID, c.Offset, c.StoredLength)
}

func (idx *Index) remember(hash [32]byte) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if elem, ok := idx.cache[hash]; ok {
		idx.lru.MoveToFront(elem)
		return
	}
	elem := idx.lru.PushFront(hash)
	idx.cache[hash] = elem
	if idx.maxCached > 0 && len(idx.cache) > idx.maxCached {
		back := idx.lru.Back()
		if back != nil {
			delete(idx.cache, back.Value.([32]byte))
			idx.lru.Remove(back)
		}
	}
}

// Stats reports hot-cache hit/miss counters for observability.
type Stats struct {
	Hits   uint64
	Misses uint64
}

func (idx *Index) Stats() Stats {
	return Stats{Hits: idx.hits.Load(), Misses: idx.misses.Load()}
}
