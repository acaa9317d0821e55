package storage

import (
	"context"
	"io"
)

// ProgressFunc receives upload progress as a 0–100 percentage.
type ProgressFunc func(percent int)

// BlobStore is path-addressed object storage for study uploads. The export
// pipeline and file service depend on this interface, not on GCS directly.
type BlobStore interface {
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string, progress ProgressFunc) error
	Download(ctx context.Context, path string) (io.ReadCloser, error)
	ResolveURL(ctx context.Context, path string) (string, error)
	Delete(ctx context.Context, path string) error
}
