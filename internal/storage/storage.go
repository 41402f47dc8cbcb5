package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"streamify/internal/media"
)

// Package storage contains the media blob store abstraction and its backends
// (local filesystem and S3-compatible object storage).

// ErrNotFound is returned when no regular object exists under a key.
var ErrNotFound = errors.New("object not found")

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the implementation
// will buffer/chunk as supported by the backend.
// ContentType and Metadata are optional.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Range selects an inclusive byte interval of an object.
type Range = media.ByteRange

// Storage is the media blob store. Keys are media filenames and are validated
// with media.CleanKey; an unsafe key fails with media.ErrInvalidPath before any
// backend access.
type Storage interface {
	// Put stores the content of r under key. The object becomes visible only
	// once it has been written completely.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Stat returns the object's info without opening it.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Get opens the object, or only rng of it when rng is not nil. The reader
	// streams from the backend and must be closed by the caller. Readers also
	// implement io.Seeker where the backend allows it.
	Get(ctx context.Context, key string, rng *Range) (io.ReadCloser, ObjectInfo, error)
	// Delete removes an object by key.
	Delete(ctx context.Context, key string) error
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}
