package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"streamify/internal/logger"
	"streamify/internal/media"
	"streamify/internal/model"
	"streamify/internal/repository"
	"streamify/internal/storage"
)

var (
	ErrIDRequired       = errors.New("id is required")
	ErrNotFound         = errors.New("video not found")
	ErrReaderNil        = errors.New("reader is nil")
	ErrUserRequired     = errors.New("user is required")
	ErrForbidden        = errors.New("only the uploader may do this")
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 50
)

// UploadInput carries an uploaded file and the catalog fields sent with it.
type UploadInput struct {
	Reader       io.Reader
	OriginalName string
	ContentType  string
	Size         int64
	Title        string
	Description  string
	IsPublic     bool
	UploaderID   string
}

// ListQuery selects a feed page. ViewerID is empty for anonymous callers.
type ListQuery struct {
	Limit      int
	Offset     int
	ViewerID   string
	UploaderID string
}

// VideoListResult is the service-level DTO for paginated videos.
type VideoListResult struct {
	Items  []model.Video `json:"data"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// VideoService defines the catalog use cases around uploaded videos.
type VideoService interface {
	// Upload stores the file under a generated name, probes its metadata and saves the catalog row.
	// The stored file is removed again when the row cannot be saved.
	Upload(ctx context.Context, in UploadInput) (*model.Video, error)

	// List returns the videos visible to the viewer, newest first.
	List(ctx context.Context, q ListQuery) (*VideoListResult, error)

	// Get returns a single video. Private videos of other users are reported as ErrNotFound.
	Get(ctx context.Context, id, viewerID string) (*model.Video, error)

	// Delete removes the stored file and then the row. Only the uploader may delete.
	Delete(ctx context.Context, id, userID string) error

	// RecordView counts one view of a visible video.
	RecordView(ctx context.Context, id, viewerID string) error

	// ToggleLike likes or unlikes a visible video for userID.
	ToggleLike(ctx context.Context, id, userID string) (*model.LikeResult, error)

	// StreamAllowed reports whether viewerID may stream filename. Files without a catalog row are allowed.
	StreamAllowed(ctx context.Context, filename, viewerID string) (bool, error)
}

type videoService struct {
	store  storage.Storage
	repo   repository.VideoRepository
	prober media.Prober
	log    *slog.Logger
}

// NewVideoService constructs a new VideoService. A nil prober skips metadata probing.
func NewVideoService(store storage.Storage, repo repository.VideoRepository, prober media.Prober, log *slog.Logger) VideoService {
	if log == nil {
		log = logger.Discard()
	}
	return &videoService{store: store, repo: repo, prober: prober, log: log}
}

func (s *videoService) Upload(ctx context.Context, in UploadInput) (*model.Video, error) {
	if in.Reader == nil {
		return nil, ErrReaderNil
	}
	if in.UploaderID == "" {
		return nil, ErrUserRequired
	}
	ct := media.NormalizeContentType(in.ContentType)
	if !media.AllowedUpload(ct) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMedia, in.ContentType)
	}

	id := uuid.New().String()
	ext := media.ExtensionFor(ct)
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(in.OriginalName))
	}
	key := id + ext

	objInfo, err := s.store.Put(ctx, key, in.Reader, storage.PutObjectOptions{
		Size:        in.Size,
		ContentType: ct,
		Metadata: map[string]string{
			"original-filename": in.OriginalName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(in.OriginalName), filepath.Ext(in.OriginalName))
	}
	v := &model.Video{
		ID:           id,
		Filename:     objInfo.Key,
		OriginalName: in.OriginalName,
		Title:        title,
		Description:  strings.TrimSpace(in.Description),
		ContentType:  ct,
		Size:         objInfo.Size,
		UploaderID:   in.UploaderID,
		IsPublic:     in.IsPublic,
		CreatedAt:    time.Now().UTC(),
	}
	applyMetadata(v, s.probe(ctx, objInfo.Key, ct))

	stored, err := s.repo.Create(ctx, v)
	if err != nil {
		if delErr := s.store.Delete(ctx, objInfo.Key); delErr != nil {
			return nil, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}
	return withURL(stored), nil
}

// probe never fails the upload; unknown metadata is stored as NULL.
func (s *videoService) probe(ctx context.Context, key, contentType string) media.Metadata {
	if s.prober == nil || media.KindOf(contentType) != media.KindVideo {
		return media.Metadata{}
	}
	rc, _, err := s.store.Get(ctx, key, nil)
	if err != nil {
		s.log.Warn("video_probe_failed", "filename", key, "error_message", err.Error())
		return media.Metadata{}
	}
	defer rc.Close()

	rs, ok := rc.(io.ReadSeeker)
	if !ok {
		return media.Metadata{}
	}
	md, err := s.prober.Probe(ctx, rs, contentType)
	if err != nil {
		s.log.Warn("video_probe_failed", "filename", key, "error_message", err.Error())
		return media.Metadata{}
	}
	return md
}

func applyMetadata(v *model.Video, md media.Metadata) {
	if !md.Known {
		return
	}
	if md.Duration > 0 {
		ms := md.Duration.Milliseconds()
		v.DurationMs = &ms
	}
	if md.Width > 0 && md.Height > 0 {
		w, h := md.Width, md.Height
		v.Width, v.Height = &w, &h
	}
}

func (s *videoService) List(ctx context.Context, q ListQuery) (*VideoListResult, error) {
	if q.Limit <= 0 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{
		Limit:      q.Limit,
		Offset:     q.Offset,
		ViewerID:   q.ViewerID,
		UploaderID: q.UploaderID,
	})
	if err != nil {
		return nil, err
	}
	for i := range res.Items {
		res.Items[i].URL = model.StreamURL(res.Items[i].Filename)
	}
	return &VideoListResult{Items: res.Items, Total: res.Total, Limit: q.Limit, Offset: q.Offset}, nil
}

func (s *videoService) Get(ctx context.Context, id, viewerID string) (*model.Video, error) {
	v, err := s.findVisible(ctx, id, viewerID)
	if err != nil {
		return nil, err
	}
	return withURL(v), nil
}

// Delete removes the stored file first; if that fails the row stays so the file is not orphaned.
func (s *videoService) Delete(ctx context.Context, id, userID string) error {
	if userID == "" {
		return ErrUserRequired
	}
	v, err := s.findVisible(ctx, id, userID)
	if err != nil {
		return err
	}
	if v.UploaderID != userID {
		return ErrForbidden
	}
	if err := s.store.Delete(ctx, v.Filename); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete storage: %w", err)
	}
	return s.repo.Delete(ctx, v.ID)
}

func (s *videoService) RecordView(ctx context.Context, id, viewerID string) error {
	v, err := s.findVisible(ctx, id, viewerID)
	if err != nil {
		return err
	}
	if err := s.repo.IncrementViews(ctx, v.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *videoService) ToggleLike(ctx context.Context, id, userID string) (*model.LikeResult, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	v, err := s.findVisible(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	res, err := s.repo.ToggleLike(ctx, v.ID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return res, nil
}

func (s *videoService) StreamAllowed(ctx context.Context, filename, viewerID string) (bool, error) {
	v, err := s.repo.FindByFilename(ctx, filename)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	return v.VisibleTo(viewerID), nil
}

// findVisible hides both missing and foreign private videos behind ErrNotFound.
func (s *videoService) findVisible(ctx context.Context, id, viewerID string) (*model.Video, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	// ids are UUIDs; anything else cannot match a row
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	v, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !v.VisibleTo(viewerID) {
		return nil, ErrNotFound
	}
	return v, nil
}

func withURL(v *model.Video) *model.Video {
	v.URL = model.StreamURL(v.Filename)
	return v
}
