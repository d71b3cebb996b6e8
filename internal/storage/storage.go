// Package storage persists generated artifacts. Two implementations exist: a
// local filesystem store for development and tests, and a MinIO-backed object
// store for deployments.
package storage

import "context"

// BlobStore is the interface handlers use to persist and retrieve artifacts.
// Write returns the canonical key under which the blob is retrievable.
type BlobStore interface {
	Write(ctx context.Context, key, contentType string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
}
