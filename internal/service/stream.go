package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"streamify/internal/media"
	"streamify/internal/storage"
)

// ErrMediaNotFound is returned when no stored file matches the requested filename.
var ErrMediaNotFound = errors.New("media not found")

// Stream is an opened media file, or the slice of it selected by a Range header.
// Body is nil for streams returned by Inspect; otherwise the caller must close it.
type Stream struct {
	Filename    string
	ContentType string
	TotalSize   int64
	Range       *media.ByteRange
	Body        io.ReadCloser
}

// Partial reports whether only a byte range is served.
func (s *Stream) Partial() bool {
	return s.Range != nil
}

// Length is the number of body bytes that will be sent.
func (s *Stream) Length() int64 {
	if s.Range != nil {
		return s.Range.Length()
	}
	return s.TotalSize
}

// StreamService resolves streaming requests against the media store.
//
// Errors:
//   - media.ErrInvalidPath for filenames that would escape the media root
//   - ErrMediaNotFound when the file does not exist
//   - *media.UnsatisfiableRangeError (matches media.ErrRangeNotSatisfiable) for ranges outside the file
//
// A malformed Range header is ignored and the whole file is served.
type StreamService interface {
	// Inspect validates the request and resolves the range without opening the file.
	Inspect(ctx context.Context, filename, rangeHeader string) (*Stream, error)
	// Open is Inspect followed by opening a reader over exactly the selected bytes.
	Open(ctx context.Context, filename, rangeHeader string) (*Stream, error)
}

type streamService struct {
	store storage.Storage
}

// NewStreamService constructs a new StreamService.
func NewStreamService(store storage.Storage) StreamService {
	return &streamService{store: store}
}

func (s *streamService) Inspect(ctx context.Context, filename, rangeHeader string) (*Stream, error) {
	key, err := media.CleanKey(filename)
	if err != nil {
		return nil, err
	}
	info, err := s.store.Stat(ctx, key)
	if err != nil {
		return nil, s.mapErr(key, "stat", err)
	}

	rng, err := media.ParseRange(rangeHeader, info.Size)
	if err != nil {
		if !errors.Is(err, media.ErrMalformedRange) {
			return nil, err
		}
		rng = nil
	}

	return &Stream{
		Filename:    key,
		ContentType: media.ContentTypeFor(key),
		TotalSize:   info.Size,
		Range:       rng,
	}, nil
}

func (s *streamService) Open(ctx context.Context, filename, rangeHeader string) (*Stream, error) {
	st, err := s.Inspect(ctx, filename, rangeHeader)
	if err != nil {
		return nil, err
	}
	body, _, err := s.store.Get(ctx, st.Filename, st.Range)
	if err != nil {
		return nil, s.mapErr(st.Filename, "open", err)
	}
	st.Body = body
	return st, nil
}

func (s *streamService) mapErr(key, op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrMediaNotFound, key)
	case errors.Is(err, media.ErrInvalidPath):
		return err
	default:
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
}
