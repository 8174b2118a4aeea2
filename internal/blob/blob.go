// Package blob provides object store implementations for uploaded files.
package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/opensource-identity/harrier/internal/domain"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("object not found")

// New creates an object store based on configuration.
func New(ctx context.Context, cfg domain.ObjectStoreConfig) (domain.ObjectStore, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil

	case "s3":
		return NewS3Store(ctx, cfg)

	default:
		return nil, fmt.Errorf("unsupported object store driver: %s", cfg.Driver)
	}
}
