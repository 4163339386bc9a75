// Package corekit holds the error kinds, path rules, and id helpers shared
// by every core component, so that C4-C12 agree on a single vocabulary for
// boundary failures instead of each package inventing its own.
package corekit

import (
	"errors"
	"fmt"
)

// Sentinel errors for kinds that carry no extra payload.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrIntegrity      = errors.New("integrity error")
	ErrQuotaExceeded  = errors.New("quota exceeded")
	ErrInvalidPath    = errors.New("invalid path")
	ErrInvalidManifest = errors.New("invalid manifest")
	ErrTransientIO    = errors.New("transient I/O error")
	ErrPermanentIO    = errors.New("permanent I/O error")
)

// ConflictError is returned by commit_version when the caller's parent
// version does not match the file's current version. Current is the
// server's view so the caller can drive resolution (spec §4.9).
type ConflictError struct {
	FileID  string
	Current string // current server-side version id
	Kind    string // edit-edit | edit-delete | delete-edit
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict detected on file %s (%s): server is at version %s", e.FileID, e.Kind, e.Current)
}

// Is lets errors.Is(err, ErrConflict) match any *ConflictError.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ErrConflict is a sentinel usable with errors.Is against any *ConflictError.
var ErrConflict = errors.New("conflict detected")

// CorruptChunkError is returned when a chunk's stored bytes do not hash to
// the name under which they are indexed (spec §4.4, §7).
type CorruptChunkError struct {
	Hash     [32]byte
	Location string
}

func (e *CorruptChunkError) Error() string {
	return fmt.Sprintf("corrupt chunk %x at %s", e.Hash[:8], e.Location)
}

func (e *CorruptChunkError) Is(target error) bool {
	return target == ErrCorruptChunk
}

var ErrCorruptChunk = errors.New("corrupt chunk")

// IsTransient reports whether err should be retried by a caller following
// the exponential-backoff policy in spec §7.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientIO)
}
