package packstore

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/entanglement/entanglement/internal/hasher"
	"github.com/entanglement/entanglement/internal/store"
)

func newTestStore(t *testing.T) (*Store, *store.DB) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(dir + "/entanglement.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ps, err := New(dir+"/chunks", db)
	if err != nil {
		t.Fatalf("open packstore: %v", err)
	}
	t.Cleanup(func() { ps.Close() })
	return ps, db
}

func insertChunkRow(ctx context.Context, db *store.DB, hash [32]byte, length uint64) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		return db.Chunks.CreateTx(ctx, tx, store.Chunk{
			Hash:        hasher.HexString(hash),
			LengthBytes: length,
		})
	})
}

func TestPutGetRoundTrip(t *testing.T) {
	ps, db := newTestStore(t)
	ctx := context.Background()

	data := []byte("the quick brown fox jumps over the lazy dog")
	hash := hasher.Sum256(data)

	if err := insertChunkRow(ctx, db, hash, uint64(len(data))); err != nil {
		t.Fatalf("insert chunk row: %v", err)
	}

	if err := ps.Put(ctx, hash, data); err != nil {
		t.Fatalf("put: %v", err)
	}

	chunk, err := db.Chunks.Get(ctx, hasher.HexString(hash))
	if err != nil {
		t.Fatalf("get chunk row: %v", err)
	}
	if !chunk.HasContainerLocation() {
		t.Fatal("expected chunk to have a container location after Put")
	}

	got, err := ps.Get(ctx, hash, chunk.ContainerID, chunk.Offset, chunk.StoredLength)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("round trip mismatch: got %q", got)
	}
}

func TestGetDetectsCorruption(t *testing.T) {
	ps, db := newTestStore(t)
	ctx := context.Background()

	data := []byte("corruption target")
	hash := hasher.Sum256(data)
	if err := insertChunkRow(ctx, db, hash, uint64(len(data))); err != nil {
		t.Fatalf("insert chunk row: %v", err)
	}
	if err := ps.Put(ctx, hash, data); err != nil {
		t.Fatalf("put: %v", err)
	}

	chunk, err := db.Chunks.Get(ctx, hasher.HexString(hash))
	if err != nil {
		t.Fatalf("get chunk row: %v", err)
	}

	var corrupted [32]byte
	if _, err := ps.Get(ctx, corrupted, chunk.ContainerID, chunk.Offset, chunk.StoredLength); err == nil {
		t.Fatal("expected corruption error for mismatched hash")
	}
}

func TestLegacyFallback(t *testing.T) {
	ps, _ := newTestStore(t)

	data := []byte("an old standalone blob")
	hash := hasher.Sum256(data)

	legacyDir := ps.dir + "/" + hasher.HexString(hash)[:2]
	if err := os.MkdirAll(legacyDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(legacyDir+"/"+hasher.HexString(hash), data, 0o644); err != nil {
		t.Fatal(err)
	}

	if !ps.HasLegacy(hash) {
		t.Fatal("expected legacy blob to be found")
	}
	got, err := ps.GetLegacy(hash)
	if err != nil {
		t.Fatalf("get legacy: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("legacy round trip mismatch: got %q", got)
	}
}
