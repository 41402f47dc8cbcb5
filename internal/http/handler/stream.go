package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"streamify/internal/media"
	"streamify/internal/service"
)

const (
	outcomeCompleted = "completed"
	outcomeAborted   = "aborted"
)

// StreamObserver receives the outcome of every media body once it is closed.
type StreamObserver interface {
	ObserveStream(outcome string, bytes int64)
}

// StreamOptions configures StreamVideo.
type StreamOptions struct {
	Log *slog.Logger
	// IdleTimeout cuts a client that accepts no data for this long. Zero disables it.
	IdleTimeout time.Duration
	Observer    StreamObserver
}

// mediaFilename returns the decoded wildcard part of /videos/*.
// Fiber hands route params over undecoded, so "..%2F" arrives here as-is.
func mediaFilename(c *fiber.Ctx) (string, error) {
	return url.PathUnescape(c.Params("*"))
}

// StreamVideo serves a stored media file with single-range support.
//
// @Summary      Stream a video
// @Description  Serves the file in full (200) or the byte range given in the Range header (206).
// @Description  Ranges outside the file yield 416 with "Content-Range: bytes */<size>". Malformed or multi-range headers are ignored.
// @Tags         media
// @Produce      octet-stream
// @Param        filename  path    string  true   "Stored filename"
// @Param        Range     header  string  false  "bytes=<start>-[<end>]"
// @Success      200
// @Success      206
// @Failure      400  {object}  errorPayload
// @Failure      404  {object}  errorPayload
// @Failure      416
// @Failure      500  {object}  errorPayload
// @Router       /videos/{filename} [get]
func StreamVideo(svc service.StreamService, opts StreamOptions) fiber.Handler {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	return func(c *fiber.Ctx) error {
		rid := requestIDFromCtx(c)
		rangeHeader := c.Get(fiber.HeaderRange)
		hasRange := rangeHeader != ""

		name, err := mediaFilename(c)
		if err != nil {
			logStream(log, rid, c.Params("*"), hasRange, fiber.StatusBadRequest)
			return writeError(c, fiber.StatusBadRequest, "INVALID_PATH", "invalid filename")
		}

		head := c.Method() == fiber.MethodHead
		var st *service.Stream
		if head {
			st, err = svc.Inspect(c.UserContext(), name, rangeHeader)
		} else {
			st, err = svc.Open(c.UserContext(), name, rangeHeader)
		}
		if err != nil {
			return streamError(c, log, rid, name, hasRange, err)
		}
		length, ok := bodyLength(st.Length())
		if !ok {
			if st.Body != nil {
				_ = st.Body.Close()
			}
			return streamError(c, log, rid, name, hasRange, fmt.Errorf("%w: %d bytes", errBodyLength, st.Length()))
		}

		status := fiber.StatusOK
		if st.Partial() {
			status = fiber.StatusPartialContent
			c.Set(fiber.HeaderContentRange, st.Range.ContentRange(st.TotalSize))
		}
		c.Set(fiber.HeaderAcceptRanges, "bytes")
		c.Set(fiber.HeaderContentType, st.ContentType)
		c.Status(status)

		logStream(log, rid, st.Filename, hasRange, status)
		trace.SpanFromContext(c.UserContext()).SetAttributes(
			attribute.String("media.filename", st.Filename),
			attribute.Bool("media.range", st.Partial()),
			attribute.Int64("media.total_size", st.TotalSize),
			attribute.Int64("media.length", st.Length()),
		)

		if head {
			c.Response().Header.SetContentLength(length)
			return nil
		}

		body := &trackedBody{
			r:        st.Body,
			conn:     c.Context().Conn(),
			idle:     opts.IdleTimeout,
			expected: st.Length(),
			start:    time.Now(),
			log:      log.With("request_id", rid, "filename", st.Filename),
			observer: opts.Observer,
		}
		// fasthttp copies the body in bounded chunks after the handler returns
		// and closes it once done, whether or not the client stayed.
		return c.SendStream(body, length)
	}
}

var errBodyLength = errors.New("body length out of range")

// bodyLength converts a body length to the int fasthttp takes.
// It fails for negative lengths and, on 32-bit targets, for files of 2 GiB and up.
func bodyLength(n int64) (int, bool) {
	if n < 0 || uint64(n) > math.MaxInt {
		return 0, false
	}
	return int(n), true
}

func streamError(c *fiber.Ctx, log *slog.Logger, rid, name string, hasRange bool, err error) error {
	var unsat *media.UnsatisfiableRangeError
	switch {
	case errors.As(err, &unsat):
		logStream(log, rid, name, hasRange, fiber.StatusRequestedRangeNotSatisfiable)
		c.Set(fiber.HeaderContentRange, "bytes */"+strconv.FormatInt(unsat.Size, 10))
		c.Set(fiber.HeaderAcceptRanges, "bytes")
		c.Status(fiber.StatusRequestedRangeNotSatisfiable)
		c.Response().ResetBody()
		return nil
	case errors.Is(err, media.ErrInvalidPath):
		logStream(log, rid, name, hasRange, fiber.StatusBadRequest)
		return writeError(c, fiber.StatusBadRequest, "INVALID_PATH", "invalid filename")
	case errors.Is(err, service.ErrMediaNotFound):
		logStream(log, rid, name, hasRange, fiber.StatusNotFound)
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", fmt.Sprintf("video %q not found", name))
	default:
		logStream(log, rid, name, hasRange, fiber.StatusInternalServerError)
		log.Error("stream_open_failed", "request_id", rid, "filename", name, "error_message", err.Error())
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func logStream(log *slog.Logger, rid, name string, hasRange bool, status int) {
	log.Info("video_stream",
		"request_id", rid,
		"filename", name,
		"range", hasRange,
		"status", status,
	)
}

// trackedBody wraps a media reader for the duration of one response.
// Each Read pushes the connection's write deadline forward, so a client that
// stops reading is disconnected after the idle timeout instead of pinning the
// file handle.
type trackedBody struct {
	r        io.ReadCloser
	conn     net.Conn
	idle     time.Duration
	expected int64
	start    time.Time
	log      *slog.Logger
	observer StreamObserver

	n        int64
	readErr  error
	writeErr error
	once     sync.Once
}

func (b *trackedBody) Read(p []byte) (int, error) {
	if b.conn != nil && b.idle > 0 {
		_ = b.conn.SetWriteDeadline(time.Now().Add(b.idle))
	}
	n, err := b.r.Read(p)
	b.n += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		b.readErr = err
	}
	return n, err
}

// CloseWithError is used by fasthttp when it knows why the copy ended.
func (b *trackedBody) CloseWithError(err error) error {
	b.writeErr = err
	return b.Close()
}

func (b *trackedBody) Close() error {
	var err error
	b.once.Do(func() {
		err = b.r.Close()
		if b.conn != nil && b.idle > 0 {
			_ = b.conn.SetWriteDeadline(time.Time{})
		}
		b.finish()
	})
	return err
}

func (b *trackedBody) finish() {
	outcome := outcomeCompleted
	if b.readErr != nil || b.writeErr != nil || b.n != b.expected {
		outcome = outcomeAborted
	}

	attrs := []any{
		"bytes_sent", b.n,
		"bytes_expected", b.expected,
		"duration_ms", time.Since(b.start).Milliseconds(),
	}
	if outcome == outcomeCompleted {
		b.log.Info("stream_completed", attrs...)
	} else {
		switch {
		case b.readErr != nil:
			attrs = append(attrs, "error_message", b.readErr.Error())
		case b.writeErr != nil:
			attrs = append(attrs, "error_message", b.writeErr.Error())
		}
		b.log.Warn("stream_aborted", attrs...)
	}

	if b.observer != nil {
		b.observer.ObserveStream(outcome, b.n)
	}
}
