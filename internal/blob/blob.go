// Package blob defines the interface for export artifact storage. The
// abstraction keeps the export path independent of where the CSV lands
// (Google Cloud Storage or the local filesystem).
package blob

import (
	"context"
	"io"
)

// Store writes export artifacts and returns a URI for the stored object.
type Store interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// NoOpStore discards artifacts. Useful for dry runs where leads are crawled
// but never exported.
type NoOpStore struct{}

// PutObject drains the reader and reports an empty URI.
func (NoOpStore) PutObject(_ context.Context, _ string, _ string, r io.Reader) (string, error) {
	_, err := io.Copy(io.Discard, r)
	return "", err
}
