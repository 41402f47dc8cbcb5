package model

import (
	"net/url"
	"strings"
	"time"
)

// Video is a catalog entry for an uploaded media file.
// Filename is the storage key the streaming endpoint serves; it never changes after upload.
// DurationMs, Width and Height stay nil when the file could not be probed.
type Video struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	DurationMs   *int64    `json:"duration_ms"`
	Width        *int      `json:"width"`
	Height       *int      `json:"height"`
	UploaderID   string    `json:"uploader_id"`
	IsPublic     bool      `json:"is_public"`
	Views        int64     `json:"views"`
	LikesCount   int64     `json:"likes_count"`
	CreatedAt    time.Time `json:"created_at"`
	URL          string    `json:"url"`
}

// StreamURL returns the path of the streaming endpoint for filename.
// Each segment is escaped on its own so sharded names keep their slashes.
func StreamURL(filename string) string {
	segs := strings.Split(filename, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return "/videos/" + strings.Join(segs, "/")
}

// VisibleTo reports whether viewerID may see v. An empty viewerID is anonymous.
func (v *Video) VisibleTo(viewerID string) bool {
	return v.IsPublic || (viewerID != "" && v.UploaderID == viewerID)
}

// LikeResult is the outcome of toggling a like.
type LikeResult struct {
	Liked bool  `json:"liked"`
	Likes int64 `json:"likes"`
}
