// Package config defines entanglementd's server-level options, populated
// by the CLI layer from flags/env rather than a config file (spec §9).
package config

import (
	"errors"
	"runtime"

	"github.com/entanglement/entanglement/internal/gc"
	"github.com/entanglement/entanglement/internal/packstore"
)

var (
	// ErrStorageBaseRequired is returned when no storage directory is set.
	ErrStorageBaseRequired = errors.New("storage base path is required")
	// ErrInvalidGCThreshold is returned when GCThreshold falls outside (0, 1].
	ErrInvalidGCThreshold = errors.New("gc threshold must be in (0, 1]")
	// ErrInvalidSealBytes reports a non-positive seal size. Validate does not
	// return it: a zero ContainerSealBytes is replaced with the default.
	ErrInvalidSealBytes = errors.New("container seal bytes must be positive")
)

// Options configures a running entanglementd instance.
type Options struct {
	// StorageBase is the root directory for packfile containers and
	// legacy standalone blobs.
	StorageBase string

	// DatabasePath is the SQLite file path. Defaults to
	// StorageBase/entanglement.db when empty.
	DatabasePath string

	// ContainerSealBytes bounds how large an open packfile container
	// grows before it is sealed (spec §4.4).
	// Default: packstore.SealThreshold (64 MiB).
	ContainerSealBytes uint64

	// ChangeBusBuffer is the per-subscriber buffered channel capacity
	// for the change bus (spec §4.8).
	// Default: changebus.DefaultBufferSize (256).
	ChangeBusBuffer int

	// ChunkCacheCapacity bounds the chunk index's in-memory existence
	// cache (spec §4.5). 0 means unbounded.
	// Default: chunkindex.DefaultCacheCapacity (100000).
	ChunkCacheCapacity int

	// GCThreshold is the live-chunk fraction below which a sealed
	// container becomes a compaction candidate (spec §4.12).
	// Default: gc.CompactionThreshold (0.5).
	GCThreshold float64

	// GCBatchSize bounds how many zero-refcount chunks a single GC pass
	// reclaims.
	// Default: gc.BatchSize (500).
	GCBatchSize int

	// MaxWorkers bounds concurrent upload/download processing.
	// Default: runtime.NumCPU().
	MaxWorkers int

	// Verbose enables debug-level logging.
	Verbose bool
}

// DefaultOptions returns options with sensible defaults for local use.
func DefaultOptions() *Options {
	return &Options{
		StorageBase:        "./entanglement-data",
		ContainerSealBytes: packstore.SealThreshold,
		ChangeBusBuffer:    256,
		ChunkCacheCapacity: 100_000,
		GCThreshold:        gc.CompactionThreshold,
		GCBatchSize:        gc.BatchSize,
		MaxWorkers:         runtime.NumCPU(),
	}
}

// Validate checks options for consistency and fills in any zero-valued
// fields that have a sensible default, mutating o in place.
func (o *Options) Validate() error {
	if o.StorageBase == "" {
		return ErrStorageBaseRequired
	}
	if o.DatabasePath == "" {
		o.DatabasePath = o.StorageBase + "/entanglement.db"
	}
	if o.ContainerSealBytes == 0 {
		o.ContainerSealBytes = packstore.SealThreshold
	}
	if o.ChangeBusBuffer <= 0 {
		o.ChangeBusBuffer = 256
	}
	if o.GCThreshold == 0 {
		o.GCThreshold = gc.CompactionThreshold
	}
	if o.GCThreshold < 0 || o.GCThreshold > 1 {
		return ErrInvalidGCThreshold
	}
	if o.GCBatchSize <= 0 {
		o.GCBatchSize = gc.BatchSize
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = runtime.NumCPU()
	}
	return nil
}
