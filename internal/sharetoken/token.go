// Package sharetoken implements the share token registry from spec §4.11:
// bounded-access grants (expiry, max uses, optional password) over a file,
// with atomic use-counting so a token can never be redeemed past max_uses.
package sharetoken

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/entanglement/entanglement/internal/corekit"
	"github.com/entanglement/entanglement/internal/store"
)

// Permission a share grant may carry.
const (
	PermView     = "view"
	PermDownload = "download"
)

// CreateOptions mirrors spec §4.11's opts for create.
type CreateOptions struct {
	ExpiresAt   *time.Time
	MaxUses     *int
	Password    string // plaintext; hashed before storage, empty means no password
	Permissions []string
}

// Registry persists and validates share links.
type Registry struct {
	db *store.DB
}

func New(db *store.DB) *Registry {
	return &Registry{db: db}
}

// Create issues a new token for fileID.
func (r *Registry) Create(ctx context.Context, fileID string, opts CreateOptions) (store.ShareLink, error) {
	var passwordHash string
	if opts.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return store.ShareLink{}, fmt.Errorf("hash share password: %w", err)
		}
		passwordHash = string(h)
	}

	link := store.ShareLink{
		ID:           corekit.NewID(),
		FileID:       fileID,
		Token:        corekit.NewShareToken(),
		PasswordHash: passwordHash,
		Permissions:  strings.Join(opts.Permissions, ","),
		ExpiresAt:    opts.ExpiresAt,
		MaxUses:      opts.MaxUses,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.db.Shares.Insert(ctx, link); err != nil {
		return store.ShareLink{}, fmt.Errorf("create share: %w", err)
	}
	return link, nil
}

// Grant is returned by Validate on success.
type Grant struct {
	FileID      string
	Permissions []string
}

// ErrDenied is returned by Validate for any failed check (expired,
// exhausted, wrong password, inactive) without distinguishing which, so
// callers cannot probe for which reason a token failed.
var ErrDenied = fmt.Errorf("share access denied")

// Validate checks is_active, expiry, remaining uses, and password, in that
// order (spec §4.11). It does not record a use — call RecordUse after the
// caller has actually served the content.
func (r *Registry) Validate(ctx context.Context, token, password string) (Grant, error) {
	link, err := r.db.Shares.ByToken(ctx, token)
	if err != nil {
		return Grant{}, ErrDenied
	}
	if !link.IsActive {
		return Grant{}, ErrDenied
	}
	if link.ExpiresAt != nil && time.Now().UTC().After(*link.ExpiresAt) {
		return Grant{}, ErrDenied
	}
	if link.MaxUses != nil && link.UsedCount >= *link.MaxUses {
		return Grant{}, ErrDenied
	}
	if link.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(link.PasswordHash), []byte(password)); err != nil {
			return Grant{}, ErrDenied
		}
	}
	return Grant{FileID: link.FileID, Permissions: strings.Split(link.Permissions, ",")}, nil
}

// RecordUse atomically increments used_count, deactivating the link once
// max_uses is reached (spec §4.11: never double-count, never exceed
// max_uses — enforced by the single UPDATE in ShareRepo.RecordUseTx).
func (r *Registry) RecordUse(ctx context.Context, token string) error {
	link, err := r.db.Shares.ByToken(ctx, token)
	if err != nil {
		return err
	}
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		return r.db.Shares.RecordUseTx(ctx, tx, link.ID)
	})
}

// Revoke deactivates a share link ahead of its natural expiry.
func (r *Registry) Revoke(ctx context.Context, token string) error {
	link, err := r.db.Shares.ByToken(ctx, token)
	if err != nil {
		return err
	}
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		return r.db.Shares.RevokeTx(ctx, tx, link.ID)
	})
}
