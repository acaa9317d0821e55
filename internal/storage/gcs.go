package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"costseg/pkg/apperror"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore backs BlobStore with a Google Cloud Storage bucket. Bucket name
// comes from STUDY_GCS_BUCKET; credentials resolve the usual GCS way
// (GOOGLE_APPLICATION_CREDENTIALS or ambient service account).
type GCSStore struct {
	client *storage.Client
	bucket string
}

func NewGCSStore(ctx context.Context) (*GCSStore, error) {
	bucket := os.Getenv("STUDY_GCS_BUCKET")
	if bucket == "" {
		return nil, apperror.ErrNotConfigured
	}

	var opts []option.ClientOption
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Upload streams r into the bucket in chunks, reporting percentage progress
// after each chunk. A size of 0 reports only the terminal 100.
func (s *GCSStore) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string, progress ProgressFunc) error {
	w := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	// Chunked writes give the resumable-upload behavior and progress points.
	w.ChunkSize = 256 * 1024

	var written int64
	buf := make([]byte, 256*1024)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				_ = w.Close()
				return fmt.Errorf("upload %s: %w", path, err)
			}
			written += int64(n)
			if progress != nil && size > 0 {
				pct := int(written * 100 / size)
				if pct > 100 {
					pct = 100
				}
				progress(pct)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = w.Close()
			return fmt.Errorf("read upload body: %w", readErr)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload %s: %w", path, err)
	}
	if progress != nil {
		progress(100)
	}
	return nil
}

func (s *GCSStore) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(path).NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, apperror.ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return r, nil
}

// ResolveURL returns a V4 signed URL valid for one hour.
func (s *GCSStore) ResolveURL(ctx context.Context, path string) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(path, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(time.Hour),
	})
	if err != nil {
		return "", fmt.Errorf("sign url for %s: %w", path, err)
	}
	return url, nil
}

func (s *GCSStore) Delete(ctx context.Context, path string) error {
	err := s.client.Bucket(s.bucket).Object(path).Delete(ctx)
	if err == storage.ErrObjectNotExist {
		return apperror.ErrNotFound
	}
	return err
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
