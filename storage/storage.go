// Package storage defines the object-store contract the pipeline depends on
// and ships a minio-backed implementation plus an in-memory one for tests
// and development.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrConflict is returned by Upload when the object already exists and
// upsert was not requested.
var ErrConflict = errors.New("object already exists")

// ObjectStore is the single source of truth for model and package files.
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) error
	Download(ctx context.Context, path string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Remove(ctx context.Context, paths ...string) error
	PublicURL(path string) string
}

// Upsert uploads with overwrite semantics and retries exactly once after a
// forced delete when the first attempt reports a conflict. The retry lives
// here, at the contract boundary, so call sites don't each grow their own
// loop.
func Upsert(ctx context.Context, s ObjectStore, path string, data []byte, contentType string) error {
	err := s.Upload(ctx, path, data, contentType, true)
	if err == nil {
		return nil
	}
	// only a conflict justifies a forced delete; any other fault is the
	// caller's to handle
	if !errors.Is(err, ErrConflict) {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	if rmErr := s.Remove(ctx, path); rmErr != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	if err := s.Upload(ctx, path, data, contentType, true); err != nil {
		return fmt.Errorf("upload %s after forced delete: %w", path, err)
	}
	return nil
}
