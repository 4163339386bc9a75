package conflict

import (
	"context"
	"strings"
	"testing"

	"github.com/entanglement/entanglement/internal/chunkindex"
	"github.com/entanglement/entanglement/internal/hasher"
	"github.com/entanglement/entanglement/internal/packstore"
	"github.com/entanglement/entanglement/internal/store"
	"github.com/entanglement/entanglement/internal/versiongraph"
)

func newTestDetector(t *testing.T) (*Detector, *versiongraph.Graph) {
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
	g := versiongraph.New(db, idx)
	return New(db, g), g
}

func commit(t *testing.T, g *versiongraph.Graph, path, content, parent string) store.Version {
	t.Helper()
	ctx := context.Background()
	data := []byte(content)
	hash := hasher.Sum256(data)
	v, err := g.CommitVersion(ctx, versiongraph.CommitRequest{
		Path:            path,
		ParentVersionID: parent,
		Manifest:        []versiongraph.ChunkRef{{InlineData: data}},
		Blake3Hash:      hasher.HexString(hash),
		SizeBytes:       uint64(len(data)),
		CreatedBy:       "tester",
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return v
}

func TestClassifyEditEdit(t *testing.T) {
	f := store.File{IsDeleted: false}
	if got := Classify(f, false); got != KindEditEdit {
		t.Fatalf("expected edit-edit, got %s", got)
	}
}

func TestClassifyEditDelete(t *testing.T) {
	f := store.File{IsDeleted: true}
	if got := Classify(f, false); got != KindEditDelete {
		t.Fatalf("expected edit-delete, got %s", got)
	}
}

func TestClassifyDeleteEdit(t *testing.T) {
	f := store.File{IsDeleted: false}
	if got := Classify(f, true); got != KindDeleteEdit {
		t.Fatalf("expected delete-edit, got %s", got)
	}
}

func TestKeepBothDerivesPath(t *testing.T) {
	d, g := newTestDetector(t)
	ctx := context.Background()

	v1 := commit(t, g, "/shared/doc.txt", "server version", "")
	file, _ := d.db.Files.ByID(ctx, v1.FileID)

	c, err := d.Record(ctx, v1.FileID, "client-parent", file.CurrentVersion, KindEditEdit)
	if err != nil {
		t.Fatalf("record conflict: %v", err)
	}

	data := []byte("client version")
	hash := hasher.Sum256(data)
	newVersion, err := d.KeepBoth(ctx, c.ID, versiongraph.CommitRequest{
		Manifest:   []versiongraph.ChunkRef{{InlineData: data}},
		Blake3Hash: hasher.HexString(hash),
		SizeBytes:  uint64(len(data)),
		CreatedBy:  "tester",
	})
	if err != nil {
		t.Fatalf("keep both: %v", err)
	}

	newFile, err := d.db.Files.ByID(ctx, newVersion.FileID)
	if err != nil {
		t.Fatalf("lookup new file: %v", err)
	}
	if newFile.Path == "/shared/doc.txt" {
		t.Fatal("expected keep-both to create a file at a derived path")
	}
	if !strings.Contains(newFile.Path, "conflict") {
		t.Fatalf("expected derived path to contain 'conflict', got %s", newFile.Path)
	}

	resolved, err := d.db.Conflicts.ByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("lookup conflict: %v", err)
	}
	if resolved.Resolution != "keep-both" {
		t.Fatalf("expected resolution keep-both, got %s", resolved.Resolution)
	}
}

func TestKeepRemoteLeavesServerVersionUntouched(t *testing.T) {
	d, g := newTestDetector(t)
	ctx := context.Background()

	v1 := commit(t, g, "/x.txt", "server", "")
	c, err := d.Record(ctx, v1.FileID, "", v1.ID, KindEditEdit)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := d.KeepRemote(ctx, c.ID, "tester"); err != nil {
		t.Fatalf("keep remote: %v", err)
	}

	file, err := d.db.Files.ByID(ctx, v1.FileID)
	if err != nil {
		t.Fatalf("lookup file: %v", err)
	}
	if file.CurrentVersion != v1.ID {
		t.Fatalf("expected current version unchanged, got %s", file.CurrentVersion)
	}
}
