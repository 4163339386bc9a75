package store

import "time"

// File mirrors the files table (spec §3, §6).
type File struct {
	ID              string
	Path            string
	CurrentVersion  string // empty if none
	OwnerID         string
	IsDeleted       bool
	OriginalHashID  string // empty if this File was never a materialized virtual directory
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Version mirrors the versions table.
type Version struct {
	ID         string
	FileID     string
	Blake3Hash string
	SizeBytes  uint64
	TierID     int
	CreatedBy  string
	CreatedAt  time.Time
}

// ManifestEntry mirrors one version_chunks row. A tier-0 (Inline) entry
// carries its content directly in InlineData and leaves ChunkHash empty,
// bypassing the chunk store entirely (spec §4.2, §3 Version invariant).
type ManifestEntry struct {
	VersionID   string
	Index       int
	ChunkHash   string
	ChunkOffset uint64
	InlineData  []byte
}

// IsInline reports whether this entry stores its content directly rather
// than referencing a chunk-store hash.
func (e ManifestEntry) IsInline() bool {
	return e.ChunkHash == ""
}

// Chunk mirrors the chunks table.
type Chunk struct {
	Hash         string
	LengthBytes  uint64
	Refcount     uint64
	ContainerID  string // empty for legacy standalone blobs
	Offset       uint64
	StoredLength uint64 // on-disk length, may differ from LengthBytes when compressed
	CreatedAt    time.Time
}

// HasContainerLocation reports whether this chunk lives in a packfile
// container, as opposed to the legacy standalone-blob layout (spec §4.4,
// §9) or not having been written yet.
func (c Chunk) HasContainerLocation() bool {
	return c.ContainerID != ""
}

// Container mirrors the blob_containers table.
type Container struct {
	ID         string
	DiskPath   string
	TotalSize  uint64
	ChunkCount int
	IsSealed   bool
	CreatedAt  time.Time
	SealedAt   *time.Time
}

// Conflict mirrors the sync_conflicts table.
type Conflict struct {
	ID            string
	FileID        string
	LocalVersion  string
	RemoteVersion string
	Kind          string
	DetectedAt    time.Time
	Resolution    string
	ResolvedAt    *time.Time
	ResolvedBy    string
}

// ShareLink mirrors the share_links table.
type ShareLink struct {
	ID             string
	FileID         string
	Token          string
	PasswordHash   string
	Permissions    string // comma-joined subset of {view,download}
	ExpiresAt      *time.Time
	MaxUses        *int
	UsedCount      int
	IsActive       bool
	CreatedAt      time.Time
	LastAccessedAt *time.Time
}

// SelectiveRule mirrors the selective_sync_rules table.
type SelectiveRule struct {
	ID       string
	UserID   string
	Kind     string // include | exclude
	Pattern  string
	Priority int
	IsActive bool
}

// DeviceSyncState mirrors the device_sync_state table.
type DeviceSyncState struct {
	UserID       string
	DeviceID     string
	LastCursor   time.Time
	SyncedBytes  uint64
	MaxSyncBytes *uint64
}
