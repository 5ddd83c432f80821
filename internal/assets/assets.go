// Package assets stores document blobs: uploaded sources, enhanced
// outputs, and thumbnails. Keys are opaque slash-separated paths chosen
// by the caller (for example "jobs/<id>/enhanced.pdf").
package assets

import (
	"context"
	"io"
)

// Store is the blob contract the pipeline writes enhancement artifacts to.
type Store interface {
	// Put streams content under key, replacing any existing blob.
	// It returns a URL the gateway can hand back to clients.
	Put(ctx context.Context, key string, content io.Reader) (string, error)
	// Get opens the blob at key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the blob at key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
	// URL resolves a key to its external URL without touching the blob.
	URL(key string) string
}
