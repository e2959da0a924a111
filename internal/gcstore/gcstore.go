// Package gcstore moves pipeline inputs and exports between memory and
// Google Cloud Storage. It assumes Application Default Credentials are
// configured (gcloud auth application-default login).
package gcstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Store is the storage capability the pipeline collaborators depend on.
type Store interface {
	// Fetch downloads the object behind a gs:// URI.
	Fetch(ctx context.Context, gcsURI string) ([]byte, error)

	// Upload writes data to bucket/object.
	Upload(ctx context.Context, bucketName, objectName string, data []byte) error
}

// GCS is the concrete Store backed by Google Cloud Storage.
type GCS struct{}

// New creates a GCS store.
func New() *GCS {
	return &GCS{}
}

// IsURI reports whether s looks like a GCS object URI.
func IsURI(s string) bool {
	return strings.HasPrefix(s, "gs://")
}

// Fetch downloads the object bytes behind a gs:// URI.
func (s *GCS) Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	bucketName, objectPath, err := splitURI(gcsURI)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch: creating storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("fetch: reading bytes: %w", err)
	}
	return data, nil
}

// Upload writes data to bucket/object, finalizing the object before returning.
func (s *GCS) Upload(ctx context.Context, bucketName, objectName string, data []byte) error {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("upload: creating storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload: copying to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload: finalizing object: %w", err)
	}
	return nil
}

// Filename extracts the object's base name from a GCS URI.
// e.g. "gs://bucket/runs/abc/bronze.csv" → "bronze.csv"
func Filename(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

func splitURI(gcsURI string) (bucket, object string, err error) {
	if !IsURI(gcsURI) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}
	trimmed := strings.TrimPrefix(gcsURI, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

var _ Store = (*GCS)(nil)
