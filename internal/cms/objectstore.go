package cms

import (
	"context"
	"io"
	"time"
)

// ObjectStore holds binary blobs addressed by slash-separated keys.
// Implementations stream through io.Reader/io.Writer so large documents are
// never buffered whole.
type ObjectStore interface {
	// Put stores size bytes read from r under key. A short read is an error
	// and leaves no object behind.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Get writes the object at key to w. A missing key wraps ErrNotFound.
	Get(ctx context.Context, key string, w io.Writer) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// PublicURL returns the stable public URL for key. It does not check
	// that the object exists.
	PublicURL(key string) string

	// ValidateSetup verifies that the store is reachable and writable.
	ValidateSetup(ctx context.Context) error
}

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}
