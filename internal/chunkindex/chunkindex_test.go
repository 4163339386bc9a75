package chunkindex

import (
	"context"
	"testing"

	"github.com/entanglement/entanglement/internal/hasher"
	"github.com/entanglement/entanglement/internal/packstore"
	"github.com/entanglement/entanglement/internal/store"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(dir + "/entanglement.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ps, err := packstore.New(dir+"/chunks", db)
	if err != nil {
		t.Fatalf("open packstore: %v", err)
	}
	t.Cleanup(func() { ps.Close() })
	return New(db, ps, 2)
}

func TestPutDeduplicates(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	data := []byte("dedup me")
	hash := hasher.Sum256(data)

	created, err := idx.Put(ctx, hash, data)
	if err != nil {
		t.Fatalf("first put: %v", err)
	}
	if !created {
		t.Fatal("expected first put to create the chunk")
	}

	created, err = idx.Put(ctx, hash, data)
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if created {
		t.Fatal("expected second put to deduplicate")
	}

	chunk, err := idx.db.Chunks.Get(ctx, hasher.HexString(hash))
	if err != nil {
		t.Fatalf("get chunk: %v", err)
	}
	if chunk.Refcount != 0 {
		t.Fatalf("expected Put to leave refcount untouched at 0, got %d", chunk.Refcount)
	}
}

func TestContainsReflectsStoredChunks(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	present := []byte("present")
	absent := []byte("absent")
	presentHash := hasher.Sum256(present)
	absentHash := hasher.Sum256(absent)

	if _, err := idx.Put(ctx, presentHash, present); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := idx.Contains(ctx, [][32]byte{presentHash, absentHash})
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if !got[presentHash] {
		t.Fatal("expected present hash to be reported as contained")
	}
	if got[absentHash] {
		t.Fatal("expected absent hash to be reported as not contained")
	}
}

func TestReadRoundTrip(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	data := []byte("round trip data for chunkindex")
	hash := hasher.Sum256(data)

	if _, err := idx.Put(ctx, hash, data); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := idx.Read(ctx, hash)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("round trip mismatch: got %q", got)
	}
}

func TestCacheEviction(t *testing.T) {
	idx := newTestIndex(t) // capacity 2
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		data := []byte{byte(i), byte(i), byte(i)}
		hash := hasher.Sum256(data)
		if _, err := idx.Put(ctx, hash, data); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	idx.mu.Lock()
	size := len(idx.cache)
	idx.mu.Unlock()
	if size > 2 {
		t.Fatalf("expected cache bounded to 2 entries, got %d", size)
	}
}
