package corekit

import (
	"crypto/rand"
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a new opaque identifier for Files, Versions, Conflicts and
// Packfile containers.
func NewID() string {
	return uuid.NewString()
}

// NewShareToken returns a URL-safe random bearer value for share links.
// Unlike record ids, this value is handed to untrusted clients and must
// resist guessing, so it is drawn straight from crypto/rand rather than
// from the UUID generator (which is not specified to be CSPRNG-backed).
func NewShareToken() string {
	buf := make([]byte, 20) // 160 bits
	if _, err := rand.Read(buf); err != nil {
		panic("corekit: failed to read random bytes: " + err.Error())
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	return strings.ToLower(enc)
}
