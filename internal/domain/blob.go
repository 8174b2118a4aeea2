package domain

import (
	"context"
	"io"
)

// ObjectStore is the blob-storage collaborator holding uploaded files.
// Keys map to object keys directly; per-object string tags carry the
// upload metadata (idp, username, processing options).
type ObjectStore interface {
	// Put stores an object with its tags.
	Put(ctx context.Context, key string, r io.Reader, tags map[string]string) error

	// Get returns the object's byte stream. The caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Tags returns the object's tag set.
	Tags(ctx context.Context, key string) (map[string]string, error)

	// Move relocates an object under the given folder prefix, keeping its
	// base name, and returns the new key.
	Move(ctx context.Context, key string, folder string) (string, error)

	// Lifecycle
	Close() error
}

// Storage areas a processed file is relocated to, chosen by the
// orchestrator's terminal state.
const (
	FolderSuccess = "success"
	FolderError   = "error"
)

// ObjectStoreConfig holds configuration for object store initialization.
type ObjectStoreConfig struct {
	// Driver is the store type: "memory" or "s3"
	Driver string

	// S3 settings (MinIO-compatible)
	S3Bucket    string
	S3Region    string
	S3Endpoint  string // optional custom endpoint
	S3PathStyle bool

	// Static credentials, optional; the default chain applies when absent.
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3SessionToken    string
}
