package repository

import (
	"context"
	"errors"

	"streamify/internal/model"
)

// ErrNotFound is returned when no row matches the lookup.
var ErrNotFound = errors.New("record not found")

// VideoRepository defines data access for the video catalog using SQL queries only.
// Visibility rules are expressed in the queries; everything else belongs to the service layer.
type VideoRepository interface {
	// Create inserts a new video row and returns the stored record.
	Create(ctx context.Context, v *model.Video) (*model.Video, error)

	// FindByID returns a video by its ID, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*model.Video, error)

	// FindByFilename returns the video stored under filename, or ErrNotFound.
	FindByFilename(ctx context.Context, filename string) (*model.Video, error)

	// List returns a page of videos visible to pq.ViewerID, newest first, and the total count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Video], error)

	// IncrementViews adds one view to the video, or returns ErrNotFound.
	IncrementViews(ctx context.Context, id string) error

	// ToggleLike likes the video for userID, or removes an existing like, in one transaction.
	ToggleLike(ctx context.Context, videoID, userID string) (*model.LikeResult, error)

	// Delete removes a video row by ID. It returns nil if the row was deleted or did not exist.
	Delete(ctx context.Context, id string) error
}

// PageQuery holds limit/offset pagination parameters and the listing filter.
// ViewerID sees their own private videos; UploaderID, when set, restricts the page to one uploader.
type PageQuery struct {
	Limit      int
	Offset     int
	ViewerID   string
	UploaderID string
}

// PageResult is a generic pagination result wrapper.
type PageResult[T any] struct {
	Items []T
	Total int
}
