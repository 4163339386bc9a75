// Package chunker implements FastCDC content-defined chunking (spec §4.2,
// component C2), grounded on the same github.com/jotfs/fastcdc-go binding
// the retrieved reference chunker wraps, generalized here to take its
// (min, avg, max) parameters from a tier.Params instead of a single
// average size, and to stream chunks one at a time instead of
// materializing the whole slice.
package chunker

import (
	"io"

	"github.com/jotfs/fastcdc-go"

	"github.com/entanglement/entanglement/internal/hasher"
	"github.com/entanglement/entanglement/internal/tier"
)

// Cut is one content-defined chunk: its data, BLAKE3 hash, and its offset
// within the stream it was read from.
type Cut struct {
	Data   []byte
	Hash   [32]byte
	Offset uint64
	Length uint64
}

// Chunker splits a byte stream at data-dependent boundaries for a given
// tier's chunk-size parameters.
type Chunker struct {
	params tier.Params
}

// New returns a chunker configured for the given tier. Tier Inline must
// never reach this package; callers handle it by storing the whole file as
// a single manifest entry (spec §4.2).
func New(params tier.Params) *Chunker {
	return &Chunker{params: params}
}

// Split reads from r and returns every cut, in order. Identical input and
// identical tier parameters always produce identical cuts (spec §4.2
// determinism).
func (c *Chunker) Split(r io.Reader) ([]Cut, error) {
	var cuts []Cut
	err := c.Each(r, func(cut Cut) error {
		cuts = append(cuts, cut)
		return nil
	})
	return cuts, err
}

// Each streams cuts to fn one at a time, so a caller processing a Jumbo
// tier file never holds more than one chunk's bytes in memory at once.
// Iteration stops and Each returns fn's error the first time fn fails.
func (c *Chunker) Each(r io.Reader, fn func(Cut) error) error {
	opts := fastcdc.Options{
		MinSize:     int(c.params.MinSize),
		AverageSize: int(c.params.AvgSize),
		MaxSize:     int(c.params.MaxSize),
	}

	fc, err := fastcdc.NewChunker(r, opts)
	if err != nil {
		return err
	}

	var offset uint64
	for {
		chunk, err := fc.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		// fastcdc reuses its internal buffer between calls to Next, so the
		// data must be copied before it is handed to the caller or hashed
		// for later reuse.
		data := make([]byte, len(chunk.Data))
		copy(data, chunk.Data)

		cut := Cut{
			Data:   data,
			Hash:   hasher.Sum256(data),
			Offset: offset,
			Length: uint64(len(data)),
		}
		offset += cut.Length

		if err := fn(cut); err != nil {
			return err
		}
	}
}
