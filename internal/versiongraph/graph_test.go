package versiongraph

import (
	"context"
	"errors"
	"testing"

	"github.com/entanglement/entanglement/internal/chunkindex"
	"github.com/entanglement/entanglement/internal/corekit"
	"github.com/entanglement/entanglement/internal/hasher"
	"github.com/entanglement/entanglement/internal/packstore"
	"github.com/entanglement/entanglement/internal/store"
)

func newTestGraph(t *testing.T) *Graph {
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
	idx := chunkindex.New(db, ps, 100)
	return New(db, idx)
}

func commitSimpleFile(t *testing.T, g *Graph, ctx context.Context, path, content, parent string) store.Version {
	t.Helper()
	data := []byte(content)
	hash := hasher.Sum256(data)
	if _, err := g.chunk.Put(ctx, hash, data); err != nil {
		t.Fatalf("put chunk: %v", err)
	}
	v, err := g.CommitVersion(ctx, CommitRequest{
		Path:            path,
		ParentVersionID: parent,
		Manifest:        []ChunkRef{{Hash: hasher.HexString(hash), Offset: 0}},
		Blake3Hash:      hasher.HexString(hash),
		SizeBytes:       uint64(len(data)),
		TierID:          0,
		CreatedBy:       "tester",
	})
	if err != nil {
		t.Fatalf("commit version: %v", err)
	}
	return v
}

func TestCommitVersionCreatesFileAndResolves(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	commitSimpleFile(t, g, ctx, "/a/b.txt", "hello world", "")

	f, err := g.ResolvePath(ctx, "/a/b.txt")
	if err != nil {
		t.Fatalf("resolve path: %v", err)
	}
	if f.CurrentVersion == "" {
		t.Fatal("expected current_version to be set")
	}
}

func TestCommitVersionDetectsConflict(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	commitSimpleFile(t, g, ctx, "/c.txt", "v1", "")

	_, err := g.CommitVersion(ctx, CommitRequest{
		Path:            "/c.txt",
		ParentVersionID: "wrong-parent",
		Manifest:        nil,
		Blake3Hash:      "deadbeef",
		SizeBytes:       0,
	})
	var conflictErr *corekit.ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestListDirectorySynthesizesVirtualDirs(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	commitSimpleFile(t, g, ctx, "/docs/notes/todo.txt", "todo", "")
	commitSimpleFile(t, g, ctx, "/docs/readme.txt", "readme", "")

	entries, err := g.ListDirectory(ctx, "/docs")
	if err != nil {
		t.Fatalf("list directory: %v", err)
	}

	foundVirtual := false
	foundReal := false
	for _, e := range entries {
		if e.Path == "/docs/notes/" && e.IsVirtual {
			foundVirtual = true
		}
		if e.Path == "/docs/readme.txt" && !e.IsVirtual {
			foundReal = true
		}
	}
	if !foundVirtual {
		t.Fatal("expected /docs/notes/ to be synthesized as virtual")
	}
	if !foundReal {
		t.Fatal("expected /docs/readme.txt to be listed as a real file")
	}
}

func TestMaterializeStampsOriginalHashID(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	commitSimpleFile(t, g, ctx, "/proj/notes/todo.txt", "todo", "")
	wantHash := VirtualDirHashID("/proj/notes/")

	f, err := g.Materialize(ctx, "/proj/notes", "owner-1")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if f.OriginalHashID != wantHash {
		t.Fatalf("expected original_hash_id %s, got %s", wantHash, f.OriginalHashID)
	}

	byHash, err := g.db.Files.ByOriginalHashID(ctx, wantHash)
	if err != nil {
		t.Fatalf("lookup by original hash id: %v", err)
	}
	if byHash.ID != f.ID {
		t.Fatal("expected lookup by original hash id to resolve the materialized file")
	}
}

func TestRenameCascadesDescendants(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	commitSimpleFile(t, g, ctx, "/old/a.txt", "a", "")
	commitSimpleFile(t, g, ctx, "/old/sub/b.txt", "b", "")
	dir, err := g.Materialize(ctx, "/old", "owner-1")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	if err := g.Rename(ctx, dir.ID, "/new"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	if _, err := g.ResolvePath(ctx, "/old/a.txt"); !errors.Is(err, corekit.ErrNotFound) {
		t.Fatalf("expected old path gone, got %v", err)
	}
	if _, err := g.ResolvePath(ctx, "/new/a.txt"); err != nil {
		t.Fatalf("expected new path to resolve: %v", err)
	}
	if _, err := g.ResolvePath(ctx, "/new/sub/b.txt"); err != nil {
		t.Fatalf("expected nested descendant to resolve under new path: %v", err)
	}
}

func TestRestoreCreatesNewVersionWithOldManifest(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	v1 := commitSimpleFile(t, g, ctx, "/r.txt", "version one", "")
	v2 := commitSimpleFile(t, g, ctx, "/r.txt", "version two", v1.ID)

	restored, err := g.Restore(ctx, v1.FileID, v1.ID, "tester")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Blake3Hash != v1.Blake3Hash {
		t.Fatalf("expected restored hash to match v1, got %s vs %s", restored.Blake3Hash, v1.Blake3Hash)
	}
	if restored.ID == v2.ID {
		t.Fatal("restore should create a fresh version id")
	}
}

func TestSoftDeleteHidesFile(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	v := commitSimpleFile(t, g, ctx, "/gone.txt", "bye", "")
	if err := g.SoftDelete(ctx, v.FileID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := g.ResolvePath(ctx, "/gone.txt"); !errors.Is(err, corekit.ErrNotFound) {
		t.Fatalf("expected not found after soft delete, got %v", err)
	}
	if _, err := g.db.Files.ByID(ctx, v.FileID); err != nil {
		t.Fatalf("expected file to remain reachable by id for history: %v", err)
	}
}
