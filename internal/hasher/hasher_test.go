package hasher

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestSum256MatchesStreaming(t *testing.T) {
	data := bytes.Repeat([]byte("entanglement"), 1000)

	want := Sum256(data)

	h := New()
	h.Update(data[:100])
	h.Update(data[100:])
	got := h.Finalize()

	if want != got {
		t.Fatalf("streaming hash mismatch: want %x got %x", want, got)
	}
}

func TestHashFileMatchesHashReader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	data := bytes.Repeat([]byte{0xAB, 0xCD}, 50000)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	fromFile, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	fromReader, err := HashReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if fromFile != fromReader {
		t.Fatalf("mismatch: %x vs %x", fromFile, fromReader)
	}
	if fromFile != Sum256(data) {
		t.Fatalf("mismatch with Sum256")
	}
}

func TestHexString(t *testing.T) {
	d := Sum256([]byte("hello\n"))
	hex := HexString(d)
	if len(hex) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(hex))
	}
}
