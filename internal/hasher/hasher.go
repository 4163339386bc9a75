// Package hasher provides streaming BLAKE3 hashing for whole files and
// chunks (spec §4.1, component C1). It is grounded on the zeebo/blake3
// binding the retrieved reference uses for per-chunk hashing, extended
// here with a true incremental Writer so whole-file digests don't require
// buffering the file in memory.
package hasher

import (
	"encoding/hex"
	"io"
	"os"
	"sync"

	"github.com/zeebo/blake3"
)

// readBufSize is the size of the pooled read buffers HashReader streams
// file content through.
const readBufSize = 32 * 1024

var bufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, readBufSize)
		return &buf
	},
}

// Hasher streams BLAKE3 over arbitrary-size input.
type Hasher struct {
	h *blake3.Hasher
}

// New returns a fresh streaming hasher.
func New() *Hasher {
	return &Hasher{h: blake3.New()}
}

// Update feeds more bytes into the running hash.
func (h *Hasher) Update(p []byte) {
	_, _ = h.h.Write(p) // blake3.Hasher.Write never returns an error
}

// Finalize returns the 32-byte BLAKE3 digest accumulated so far. It may be
// called multiple times; it does not consume the hasher's state.
func (h *Hasher) Finalize() [32]byte {
	var out [32]byte
	sum := h.h.Sum(nil)
	copy(out[:], sum)
	return out
}

// Sum256 computes the BLAKE3 digest of data in one call.
func Sum256(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// HexString renders a digest as lowercase hex, the form used for
// persistence and protocol use throughout the module (spec §4.1).
func HexString(digest [32]byte) string {
	return hex.EncodeToString(digest[:])
}

// FromHex parses a lowercase hex digest back into its 32-byte form.
func FromHex(s string) ([32]byte, error) {
	var out [32]byte
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(decoded) != len(out) {
		return out, hex.ErrLength
	}
	copy(out[:], decoded)
	return out, nil
}

// HashFile streams the file at path through fixed-size buffers and returns
// its BLAKE3 digest. It fails only on I/O errors from the input source.
func HashFile(path string) ([32]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, err
	}
	defer f.Close()
	return HashReader(f)
}

// HashReader streams r through fixed-size buffers and returns its BLAKE3
// digest.
func HashReader(r io.Reader) ([32]byte, error) {
	h := New()
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	buf := *bufp

	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Update(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return [32]byte{}, err
		}
	}
	return h.Finalize(), nil
}
