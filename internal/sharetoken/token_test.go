package sharetoken

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/entanglement/entanglement/internal/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(dir + "/entanglement.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	now := time.Now().UTC()
	if err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		return db.Files.InsertTx(context.Background(), tx, store.File{ID: "file-1", Path: "/file-1.txt", CreatedAt: now, UpdatedAt: now})
	}); err != nil {
		t.Fatalf("insert file: %v", err)
	}
	return New(db)
}

func TestCreateAndValidate(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	link, err := r.Create(ctx, "file-1", CreateOptions{Permissions: []string{PermView, PermDownload}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	grant, err := r.Validate(ctx, link.Token, "")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if grant.FileID != "file-1" {
		t.Fatalf("expected grant for file-1, got %s", grant.FileID)
	}
}

func TestValidateRejectsWrongPassword(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	link, err := r.Create(ctx, "file-1", CreateOptions{Password: "secret", Permissions: []string{PermView}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := r.Validate(ctx, link.Token, "wrong"); err != ErrDenied {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	if _, err := r.Validate(ctx, link.Token, "secret"); err != nil {
		t.Fatalf("expected correct password to validate, got %v", err)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	link, err := r.Create(ctx, "file-1", CreateOptions{ExpiresAt: &past})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.Validate(ctx, link.Token, ""); err != ErrDenied {
		t.Fatalf("expected ErrDenied for expired token, got %v", err)
	}
}

func TestRecordUseExhaustsMaxUses(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	max := 2
	link, err := r.Create(ctx, "file-1", CreateOptions{MaxUses: &max})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := r.Validate(ctx, link.Token, ""); err != nil {
			t.Fatalf("validate %d: %v", i, err)
		}
		if err := r.RecordUse(ctx, link.Token); err != nil {
			t.Fatalf("record use %d: %v", i, err)
		}
	}

	if _, err := r.Validate(ctx, link.Token, ""); err != ErrDenied {
		t.Fatalf("expected ErrDenied after max uses reached, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	link, err := r.Create(ctx, "file-1", CreateOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.Revoke(ctx, link.Token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := r.Validate(ctx, link.Token, ""); err != ErrDenied {
		t.Fatalf("expected ErrDenied after revoke, got %v", err)
	}
}
