package entangle

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/entanglement/entanglement/internal/config"
	"github.com/entanglement/entanglement/internal/server"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	dir := t.TempDir()
	opts := &config.Options{StorageBase: dir}
	core, err := server.New(opts, nil)
	if err != nil {
		t.Fatalf("new core: %v", err)
	}
	t.Cleanup(func() { core.Close() })
	return New(core)
}

func TestClientUploadListDownload(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	content := "facade round trip content"
	res, err := c.Upload(ctx, UploadRequest{
		Path: "/notes/a.txt", OwnerID: "user-1", Content: strings.NewReader(content),
		FileSize: uint64(len(content)), Actor: "user-1",
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	entries, err := c.List(ctx, "/notes")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Path == "/notes/a.txt" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected uploaded file to appear in listing")
	}

	var out bytes.Buffer
	if err := c.Download(ctx, &out, res.Version.ID); err != nil {
		t.Fatalf("download: %v", err)
	}
	if out.String() != content {
		t.Fatal("downloaded content does not match upload")
	}
}

func TestClientShareLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	res, err := c.Upload(ctx, UploadRequest{
		Path: "/shared.txt", OwnerID: "user-1", Content: strings.NewReader("share me"),
		FileSize: 8, Actor: "user-1",
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	file, err := c.core.Graph.ResolvePath(ctx, "/shared.txt")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	_ = res

	share, err := c.CreateShare(ctx, file.ID, ShareOptions{Permissions: []string{"view"}})
	if err != nil {
		t.Fatalf("create share: %v", err)
	}

	grant, err := c.ValidateShare(ctx, share.Token, "")
	if err != nil {
		t.Fatalf("validate share: %v", err)
	}
	if grant.FileID != file.ID {
		t.Fatalf("expected grant for %s, got %s", file.ID, grant.FileID)
	}
}
