// Package store reads and conditionally writes the content document in its
// backing repository.
package store

import "context"

// Blob is a stored document at a path/branch together with its revision marker
type Blob struct {
	Path    string
	Branch  string
	Content []byte
	SHA     string
}

// WriteRequest describes one conditional write. SHA must be the revision
// marker of the most recent read of the same path and branch.
type WriteRequest struct {
	Path    string
	Branch  string
	Content []byte
	SHA     string
	Message string
}

// Commit is the outcome of a successful write
type Commit struct {
	SHA       string // revision marker of the new blob
	CommitSHA string
	URL       string
	Message   string
}

// Store is the two-step protocol every backend implements: read the current
// blob and its marker, then write conditioned on that marker.
type Store interface {
	// ReadBlob returns the document at path on branch.
	ReadBlob(ctx context.Context, path, branch string) (*Blob, error)

	// WriteBlob commits new content if req.SHA is still current. A stale
	// marker yields an error matching ErrConflict and leaves the document untouched.
	WriteBlob(ctx context.Context, req WriteRequest) (*Commit, error)
}
