package storage

import (
	"context"
	"errors"
	"io"
)

// ErrDisabled is returned when no object storage is configured.
var ErrDisabled = errors.New("object storage is disabled")

// ErrObjectNotFound is returned by Download for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage stores exported campaign reports.
type ObjectStorage interface {
	// Upload writes an object, replacing any previous one under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object. Callers close the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL an uploaded object is reachable at.
	GetURL(key string) string

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)
}
