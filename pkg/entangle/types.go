// Package entangle is the transport-agnostic facade over the core-facing
// API surface (spec §6): every operation a transport layer (HTTP, gRPC,
// or an in-process caller) needs, expressed as plain Go
// methods on Client taking a context.Context first.
package entangle

import (
	"io"

	"github.com/entanglement/entanglement/internal/sharetoken"
	"github.com/entanglement/entanglement/internal/store"
	"github.com/entanglement/entanglement/internal/versiongraph"
)

// CommitRequest mirrors versiongraph.CommitRequest at the facade boundary,
// so callers outside internal/ never need to import it directly.
type CommitRequest = versiongraph.CommitRequest

// Entry mirrors versiongraph.Entry at the facade boundary.
type Entry = versiongraph.Entry

// ShareOptions mirrors sharetoken.CreateOptions at the facade boundary.
type ShareOptions = sharetoken.CreateOptions

// UploadRequest describes a whole-file upload driven through the facade;
// it carries the same fields as syncengine.UploadRequest, so callers
// outside internal/ never need to import that package.
type UploadRequest struct {
	Path            string
	OwnerID         string
	ParentVersionID string
	Content         io.Reader
	FileSize        uint64
	Extension       string
	Actor           string
}

// UploadResult is returned by Upload.
type UploadResult struct {
	Version store.Version
}
