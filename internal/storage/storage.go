// Package storage holds challenge email bodies too large or too shared to
// live inline in a challenge row. Backends: MinIO and Google Cloud Storage.
package storage

import (
	"bytes"
	"context"
	"io"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// AssetStore wraps an ObjectStorage backend with challenge-asset helpers.
type AssetStore struct {
	backend ObjectStorage
}

// NewAssetStore constructs an AssetStore over the provided backend.
func NewAssetStore(backend ObjectStorage) *AssetStore {
	return &AssetStore{backend: backend}
}

// EnsureBucket ensures the configured bucket exists.
func (s *AssetStore) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// PutBody stores an HTML challenge body under the given key.
func (s *AssetStore) PutBody(ctx context.Context, key string, html []byte) error {
	return s.backend.Put(ctx, key, bytes.NewReader(html), int64(len(html)), "text/html")
}

// GetBody loads the HTML challenge body stored under the given key.
func (s *AssetStore) GetBody(ctx context.Context, key string) (string, error) {
	r, err := s.backend.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Delete removes the object stored under the given key.
func (s *AssetStore) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *AssetStore) Bucket() string {
	return s.backend.Bucket()
}
