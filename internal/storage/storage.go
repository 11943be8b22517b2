package storage

import (
	"context"
	"errors"
	"time"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

// ErrObjectNotFound is returned when a key does not exist.
var ErrObjectNotFound = errors.New("object not found in storage")

// ObjectStorage defines the object store used for catalog feeds and their archive.
type ObjectStorage interface {
	// GetObject reads a whole object. Missing keys yield ErrObjectNotFound.
	GetObject(ctx context.Context, objectKey string) ([]byte, error)

	PutObject(ctx context.Context, objectKey string, contentType string, body []byte) error

	// GeneratePresignedDownloadURL creates a temporary URL that allows GET requests
	// for downloading an object directly from the storage provider.
	GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)

	// ObjectExists reports whether a key is present without reading its body.
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}
