package media

import (
	"context"
	"fmt"
	"io"
	"time"

	mp4 "github.com/abema/go-mp4"
)

// Metadata describes playback properties of a video. Known is false when
// the file could not be inspected.
type Metadata struct {
	Known    bool
	Duration time.Duration
	Width    int
	Height   int
}

// Prober extracts Metadata from stored media.
type Prober interface {
	Probe(ctx context.Context, r io.ReadSeeker, contentType string) (Metadata, error)
}

// NoopProber reports every file as unknown.
type NoopProber struct{}

func (NoopProber) Probe(context.Context, io.ReadSeeker, string) (Metadata, error) {
	return Metadata{}, nil
}

// MP4Prober reads duration and picture size from ISO base media files
// (mp4, m4v, mov). Other content types are reported as unknown.
type MP4Prober struct{}

var isoBMFF = map[string]bool{
	"video/mp4":       true,
	"video/x-m4v":     true,
	"video/quicktime": true,
}

func (MP4Prober) Probe(ctx context.Context, r io.ReadSeeker, contentType string) (Metadata, error) {
	if !isoBMFF[NormalizeContentType(contentType)] {
		return Metadata{}, nil
	}
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Metadata{}, fmt.Errorf("seek: %w", err)
	}

	info, err := mp4.Probe(r)
	if err != nil {
		return Metadata{}, fmt.Errorf("probe mp4: %w", err)
	}

	var md Metadata
	if info.Timescale > 0 {
		md.Duration = time.Duration(float64(info.Duration) / float64(info.Timescale) * float64(time.Second))
		md.Known = true
	}
	for _, tr := range info.Tracks {
		if tr.AVC != nil && tr.AVC.Width > 0 {
			md.Width = int(tr.AVC.Width)
			md.Height = int(tr.AVC.Height)
			md.Known = true
			break
		}
	}
	return md, nil
}
