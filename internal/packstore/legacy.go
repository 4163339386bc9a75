package packstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/entanglement/entanglement/internal/corekit"
	"github.com/entanglement/entanglement/internal/hasher"
)

// legacyPath returns the read-only sharded standalone-blob path
// <base>/<hh>/<hash>, where <hh> is the first two hex digits of the content
// hash, that a chunk written before containers existed may still live at
// (spec §4.4, §9). New writes never produce this layout.
func (s *Store) legacyPath(hash [32]byte) string {
	hex := hasher.HexString(hash)
	return filepath.Join(s.dir, hex[:2], hex)
}

// GetLegacy reads a chunk from the legacy standalone-blob layout, verifying
// its hash. It is the read-on-miss fallback used when a chunk's index row
// has no container location (spec §4.4).
func (s *Store) GetLegacy(hash [32]byte) ([]byte, error) {
	path := s.legacyPath(hash)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, corekit.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read legacy chunk: %w", err)
	}
	if hasher.Sum256(data) != hash {
		return nil, &corekit.CorruptChunkError{Hash: hash, Location: path}
	}
	return data, nil
}

// HasLegacy reports whether a chunk exists at the legacy path, without
// reading or verifying its contents.
func (s *Store) HasLegacy(hash [32]byte) bool {
	_, err := os.Stat(s.legacyPath(hash))
	return err == nil
}
