package service

import (
	"context"
	"io"
)

// FileStorage persists objects under caller-chosen keys.
type FileStorage interface {
	// Upload stores the object and returns the URL it is served from.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
	// Delete removes the object. Deleting a missing object succeeds.
	Delete(ctx context.Context, key string) error
}
