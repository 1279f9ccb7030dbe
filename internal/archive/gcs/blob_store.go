// Package gcs archives run snapshots in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config locates the snapshot bucket.
type Config struct {
	Bucket string
}

// BlobStore uploads run snapshots to one GCS bucket. A single store serves
// every run; the archiver supplies the dated object paths.
type BlobStore struct {
	bucket     *storage.BucketHandle
	bucketName string
}

// New wraps an existing GCS client. The bucket must already exist; the
// store never creates it.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("gcs client is required")
	}
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, fmt.Errorf("snapshot bucket is required")
	}
	return &BlobStore{
		bucket:     client.Bucket(name),
		bucketName: name,
	}, nil
}

// PutObject streams one snapshot into the bucket and returns its gs:// URI.
// A failed copy still closes the writer so the resumable upload is abandoned
// rather than left half-finalized.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("snapshot path is required")
	}

	w := s.bucket.Object(path).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return "", fmt.Errorf("upload snapshot %s: %w (abandon upload: %v)", path, err, closeErr)
		}
		return "", fmt.Errorf("upload snapshot %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize snapshot %s: %w", path, err)
	}
	return objectURI(s.bucketName, path), nil
}

func objectURI(bucket, path string) string {
	return "gs://" + bucket + "/" + strings.TrimPrefix(path, "/")
}
