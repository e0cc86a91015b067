// Package gcs archives pages to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// WriterFunc opens a writer for one object in the bucket.
type WriterFunc func(ctx context.Context, object, contentType string) io.WriteCloser

// BlobStore uploads objects to a single bucket.
type BlobStore struct {
	bucket    string
	newWriter WriterFunc
	client    *storage.Client
}

// Dial creates a storage client using application default credentials.
func Dial(ctx context.Context, bucket string) (*BlobStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	store, err := New(client, bucket)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing storage client.
func New(client *storage.Client, bucket string) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	handle := client.Bucket(bucket)
	store, err := NewWithWriter(bucket, func(ctx context.Context, object, contentType string) io.WriteCloser {
		w := handle.Object(object).NewWriter(ctx)
		if contentType != "" {
			w.ContentType = contentType
		}
		return w
	})
	if err != nil {
		return nil, err
	}
	store.client = client
	return store, nil
}

// NewWithWriter builds a store around a custom writer factory (primarily for testing).
func NewWithWriter(bucket string, fn WriterFunc) (*BlobStore, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("writer factory is required")
	}
	return &BlobStore{bucket: bucket, newWriter: fn}, nil
}

// PutObject uploads data and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error) {
	path = strings.TrimLeft(path, "/")
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("object path is required")
	}
	w := s.newWriter(ctx, path, contentType)
	if _, err := io.Copy(w, r); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}

// Close releases the storage client when the store owns one.
func (s *BlobStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
